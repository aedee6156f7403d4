package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/trex-ayush/4-Dot-Game/internal/obslog"
)

// All timer expiry handlers run on timer goroutines and must revalidate
// state under the owning lock before acting: a Stop that loses the race
// against firing makes the handler a no-op, never a double transition.

// stopMoveClockLocked disarms the session's move clock; caller holds s.mu.
func (s *Session) stopMoveClockLocked() {
	if s.moveTimer != nil {
		s.moveTimer.Stop()
		s.moveTimer = nil
	}
	s.moveSlot = 0
}

// armMoveClock starts the per-move deadline for the slot on turn. Bot
// slots never get a clock; their reply is scheduled instead.
func (r *Registry) armMoveClock(s *Session, slot int) {
	s.mu.Lock()
	if s.Status != StatusActive || s.Turn != slot || s.Slots[slotIndex(slot)].IsBot {
		s.mu.Unlock()
		return
	}
	s.stopMoveClockLocked()
	deadline := time.Now().Add(r.cfg.MoveTimeout)
	s.moveDeadline = deadline
	s.moveSlot = slot
	s.moveTimer = time.AfterFunc(r.cfg.MoveTimeout, func() { r.handleMoveExpiry(s, slot) })
	username := s.Slots[slotIndex(slot)].Username
	recipients := s.recipientsLocked()
	s.mu.Unlock()

	r.sink.Emit(recipients, Event{Type: EventMoveClock, Data: MoveClockPayload{
		SessionID: s.ID,
		Slot:      slot,
		Username:  username,
		Deadline:  deadline,
		Seconds:   int(r.cfg.MoveTimeout / time.Second),
	}})
}

// handleMoveExpiry converts an expired move clock into a bot takeover of
// the slow slot. The takeover happens at most once per slot; control never
// returns to the original player.
func (r *Registry) handleMoveExpiry(s *Session, slot int) {
	s.mu.Lock()
	sl := &s.Slots[slotIndex(slot)]
	if s.Status != StatusActive || s.Turn != slot || s.moveSlot != slot || sl.IsBot {
		s.mu.Unlock()
		return
	}
	s.stopMoveClockLocked()
	sl.OriginalUsername = sl.Username
	sl.Username = BotName
	sl.ConnRef = ""
	sl.IsBot = true
	sl.TakenOver = true
	original := sl.OriginalUsername
	recipients := s.recipientsLocked()
	s.mu.Unlock()

	notice := r.notice("session.takeover", map[string]any{"Username": original}, original+" timed out. The bot takes over.")
	r.sink.Emit(recipients, Event{Type: EventPlayerTakeover, Data: PlayerTakeoverPayload{
		SessionID:        s.ID,
		Slot:             slot,
		OriginalUsername: original,
		Notice:           notice,
	}})
	obslog.L().Info("session_takeover",
		zap.String("session_id", s.ID),
		zap.Int("slot", slot),
		zap.String("original_username", original))

	r.scheduleBotMove(s, slot)
}

// scheduleBotMove answers for a bot-controlled slot after a short delay.
// The search runs on a board snapshot outside any lock; the commit path
// revalidates turn and status, so a stale result is simply dropped.
func (r *Registry) scheduleBotMove(s *Session, slot int) {
	time.AfterFunc(r.cfg.BotMoveDelay, func() {
		s.mu.Lock()
		if s.Status != StatusActive || s.Turn != slot || !s.Slots[slotIndex(slot)].IsBot {
			s.mu.Unlock()
			return
		}
		snapshot := s.Board
		s.mu.Unlock()

		col := r.bot.ChooseMove(snapshot, cellForSlot(slot))
		if col < 0 {
			return
		}
		if err := r.applyMoveSlot(s, col, slot, true); err != nil {
			obslog.L().Warn("bot_move_fail",
				zap.String("session_id", s.ID),
				zap.Int("column", col),
				zap.Error(err))
		}
	})
}

// armQueueDeadlineLocked starts the matchmaking fallback clock for a lone
// waiter; caller holds r.mu.
func (r *Registry) armQueueDeadlineLocked(username string) {
	r.stopQueueTimerLocked(username)
	r.queueTimers[username] = time.AfterFunc(r.cfg.QueueTimeout, func() { r.handleQueueExpiry(username) })
}

// stopQueueTimerLocked disarms a waiter's deadline; caller holds r.mu.
func (r *Registry) stopQueueTimerLocked(username string) {
	if t, ok := r.queueTimers[username]; ok {
		t.Stop()
		delete(r.queueTimers, username)
	}
}

// handleQueueExpiry converts a still-waiting player into a bot game.
func (r *Registry) handleQueueExpiry(username string) {
	r.mu.Lock()
	delete(r.queueTimers, username)
	if r.closed {
		r.mu.Unlock()
		return
	}
	var entry *QueueEntry
	for i, e := range r.queue {
		if e.Username == username {
			entry = e
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	if entry == nil {
		return
	}

	notice := r.notice("queue.bot_fallback", nil, "No opponent found. Starting a bot game.")
	r.sink.Emit([]string{username}, Event{Type: EventQueueUpdate, Data: QueueUpdatePayload{Position: 0, Notice: notice}})
	obslog.L().Info("queue_bot_fallback", zap.String("username", username))
	r.createSession(entry, nil, true)
}

// armChallengeExpiryLocked starts the challenge TTL; caller holds r.mu.
func (r *Registry) armChallengeExpiryLocked(ch *Challenge) {
	id := ch.ID
	ch.expiry = time.AfterFunc(r.cfg.ChallengeTTL, func() { r.handleChallengeExpiry(id) })
}

// handleChallengeExpiry lapses a still-pending challenge and tells the
// sender.
func (r *Registry) handleChallengeExpiry(id string) {
	r.mu.Lock()
	ch, ok := r.challenges[id]
	if !ok || ch.Status != ChallengePending {
		r.mu.Unlock()
		return
	}
	ch.Status = ChallengeExpired
	delete(r.challenges, id)
	view := ch.view()
	r.mu.Unlock()

	notice := r.notice("challenge.expired", map[string]any{"To": ch.To}, "Your challenge to "+ch.To+" expired.")
	r.sink.Emit([]string{ch.From}, Event{Type: EventChallengeResolved, Data: ChallengeResolvedPayload{Challenge: view, Notice: notice}})
	obslog.L().Info("challenge_expire", zap.String("challenge_id", id), zap.String("from", ch.From), zap.String("to", ch.To))
}

// handleGraceExpiry forfeits the session of a player whose reconnection
// window lapsed. The remaining side wins immediately.
func (r *Registry) handleGraceExpiry(username string) {
	r.mu.Lock()
	rec, ok := r.disconnects[username]
	delete(r.disconnects, username)
	delete(r.graceTimers, username)
	if !ok || r.closed {
		r.mu.Unlock()
		return
	}
	s := r.sessions[rec.SessionID]
	r.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.Status != StatusActive {
		s.mu.Unlock()
		return
	}
	loser := 0
	for i := range s.Slots {
		sl := s.Slots[i]
		if !sl.IsBot && sl.Username == username {
			if sl.ConnRef != "" {
				// reconnected after the record was read; nothing to forfeit
				s.mu.Unlock()
				return
			}
			loser = i + 1
		}
	}
	if loser == 0 {
		s.mu.Unlock()
		return
	}
	winner := otherSlot(loser)
	s.Status = StatusFinished
	s.stopMoveClockLocked()
	s.mu.Unlock()

	obslog.L().Info("session_forfeit",
		zap.String("session_id", s.ID),
		zap.String("username", username))
	r.finishSession(s, ResultForfeit, winner, nil)
}

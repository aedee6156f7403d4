package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trex-ayush/4-Dot-Game/internal/board"
	"github.com/trex-ayush/4-Dot-Game/internal/bot"
	"github.com/trex-ayush/4-Dot-Game/internal/domain"
	"github.com/trex-ayush/4-Dot-Game/internal/msgcat"
	"github.com/trex-ayush/4-Dot-Game/internal/obslog"
)

// Recorder receives finished games and per-player outcomes. Implementations
// must tolerate being called from registry goroutines; failures are logged
// and never surfaced to players.
type Recorder interface {
	RecordCompletedGame(ctx context.Context, g *domain.CompletedGame) error
	RecordOutcome(ctx context.Context, username string, outcome domain.Outcome) error
}

// Config carries the registry's timing knobs. Zero values fall back to the
// production defaults so tests only set what they exercise.
type Config struct {
	MoveTimeout  time.Duration
	GraceTimeout time.Duration
	QueueTimeout time.Duration
	ChallengeTTL time.Duration
	BotMoveDelay time.Duration
	MaxSessions  int // 0 means unlimited
}

func (c *Config) applyDefaults() {
	if c.MoveTimeout <= 0 {
		c.MoveTimeout = 30 * time.Second
	}
	if c.GraceTimeout <= 0 {
		c.GraceTimeout = 30 * time.Second
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = 10 * time.Second
	}
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = 60 * time.Second
	}
	if c.BotMoveDelay < 0 {
		c.BotMoveDelay = 0
	}
}

// Deps are the registry's collaborators. Sink, Recorder and Catalog may be
// nil; Bot must be set.
type Deps struct {
	Sink     EventSink
	Recorder Recorder
	Catalog  *msgcat.Catalog
	Bot      *bot.Engine
}

// Registry owns every live session, the matchmaking queue, pending
// challenges and the disconnect ledger. Its mutex guards only the
// collections; each session serializes its own mutation so games progress
// independently.
type Registry struct {
	cfg      Config
	sink     EventSink
	recorder Recorder
	cat      *msgcat.Catalog
	bot      *bot.Engine

	mu          sync.RWMutex
	closed      bool
	sessions    map[string]*Session
	byUser      map[string]string // username -> session ID
	queue       []*QueueEntry
	queueTimers map[string]*time.Timer // username -> matchmaking deadline
	challenges  map[string]*Challenge
	disconnects map[string]*DisconnectRecord
	graceTimers map[string]*time.Timer
	connIndex   map[string]string // connRef -> username
	userConns   map[string]string // username -> latest connRef
}

func New(cfg Config, deps Deps) *Registry {
	cfg.applyDefaults()
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	return &Registry{
		cfg:         cfg,
		sink:        deps.Sink,
		recorder:    deps.Recorder,
		cat:         deps.Catalog,
		bot:         deps.Bot,
		sessions:    make(map[string]*Session),
		byUser:      make(map[string]string),
		queueTimers: make(map[string]*time.Timer),
		challenges:  make(map[string]*Challenge),
		disconnects: make(map[string]*DisconnectRecord),
		graceTimers: make(map[string]*time.Timer),
		connIndex:   make(map[string]string),
		userConns:   make(map[string]string),
	}
}

// SetSink replaces the event sink. The gateway is built after the
// registry, so wiring happens in two steps; call this before traffic
// starts.
func (r *Registry) SetSink(sink EventSink) {
	if sink == nil {
		sink = NopSink{}
	}
	r.sink = sink
}

// Close stops every pending timer. Sessions are left in place so late
// lookups still resolve; no further transitions fire.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, t := range r.queueTimers {
		t.Stop()
	}
	for _, t := range r.graceTimers {
		t.Stop()
	}
	for _, c := range r.challenges {
		if c.expiry != nil {
			c.expiry.Stop()
		}
	}
	for _, s := range r.sessions {
		s.mu.Lock()
		s.stopMoveClockLocked()
		s.mu.Unlock()
	}
}

func (r *Registry) notice(key string, data any, fallback string) string {
	if r.cat == nil {
		return fallback
	}
	return r.cat.RenderOr(key, data, fallback)
}

// RegisterConnection binds a connection reference to a username, detaching
// any previous connection of the same player. If the player has a live
// active session the snapshot and slot are returned for resumption.
func (r *Registry) RegisterConnection(username, connRef string) (*SessionView, int) {
	username = Normalize(username)
	if username == "" || connRef == "" {
		return nil, 0
	}

	r.mu.Lock()
	if old, ok := r.userConns[username]; ok && old != connRef {
		delete(r.connIndex, old)
	}
	r.userConns[username] = connRef
	r.connIndex[connRef] = username
	// refresh stale refs held by queue entries and outgoing challenges
	for _, e := range r.queue {
		if e.Username == username {
			e.ConnRef = connRef
		}
	}
	for _, c := range r.challenges {
		if c.From == username && c.Status == ChallengePending {
			c.FromConnRef = connRef
		}
	}
	r.mu.Unlock()

	return r.resume(username, connRef)
}

// resume re-binds a returning player to their active session, cancelling any
// pending grace clock, and notifies the opponent.
func (r *Registry) resume(username, connRef string) (*SessionView, int) {
	r.mu.Lock()
	if t, ok := r.graceTimers[username]; ok {
		t.Stop()
		delete(r.graceTimers, username)
	}
	delete(r.disconnects, username)
	s := r.sessions[r.byUser[username]]
	r.mu.Unlock()
	if s == nil {
		return nil, 0
	}

	s.mu.Lock()
	if s.Status != StatusActive {
		s.mu.Unlock()
		return nil, 0
	}
	slot := 0
	for i := range s.Slots {
		sl := &s.Slots[i]
		if sl.IsBot {
			if sl.OriginalUsername == username {
				slot = i + 1 // spectating their taken-over seat
			}
			continue
		}
		if sl.Username == username {
			sl.ConnRef = connRef
			slot = i + 1
		}
	}
	if slot == 0 {
		s.mu.Unlock()
		return nil, 0
	}
	recipients := s.recipientsLocked()
	view := s.viewLocked()
	s.mu.Unlock()

	notice := r.notice("session.opponent_reconnected", map[string]any{"Username": username}, username+" reconnected.")
	for _, rcpt := range recipients {
		if rcpt == username {
			continue
		}
		r.sink.Emit([]string{rcpt}, Event{Type: EventOpponentReconnected, Data: PresencePayload{
			SessionID: s.ID, Username: username, Notice: notice,
		}})
	}
	obslog.L().Info("session_resume", zap.String("session_id", s.ID), zap.String("username", username))
	return view, slot
}

// JoinStatus describes the outcome of a queue join.
type JoinStatus string

const (
	JoinWaiting     JoinStatus = "waiting"
	JoinMatched     JoinStatus = "matched"
	JoinReconnected JoinStatus = "reconnected"
)

// JoinResult is returned from JoinQueue so the gateway can answer the
// caller directly; the matched opponent learns via the event sink.
type JoinResult struct {
	Status   JoinStatus
	Position int
	Session  *SessionView
	YourSlot int
}

// JoinQueue enters matchmaking. A player with a live active session is
// resumed instead of queued; two waiting players are paired oldest-first;
// a lone player gets a matchmaking deadline that falls back to a bot game.
func (r *Registry) JoinQueue(username, connRef string) (JoinResult, error) {
	username = Normalize(username)
	if username == "" {
		return JoinResult{}, ErrInvalidArgs
	}
	if view, slot := r.RegisterConnection(username, connRef); view != nil {
		return JoinResult{Status: JoinReconnected, Session: view, YourSlot: slot}, nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return JoinResult{}, ErrSessionNotActive
	}
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return JoinResult{}, ErrServerFull
	}
	for i, e := range r.queue {
		if e.Username == username {
			e.ConnRef = connRef
			pos := i + 1
			r.mu.Unlock()
			r.emitQueuePosition(username, pos)
			return JoinResult{Status: JoinWaiting, Position: pos}, nil
		}
	}
	entry := &QueueEntry{Username: username, ConnRef: connRef, JoinedAt: time.Now()}
	r.queue = append(r.queue, entry)
	if len(r.queue) >= 2 {
		a, b := r.queue[0], r.queue[1]
		r.queue = r.queue[2:]
		r.stopQueueTimerLocked(a.Username)
		r.stopQueueTimerLocked(b.Username)
		r.mu.Unlock()

		view := r.createSession(a, b, false)
		slot := 2 // the new joiner is always the younger entry
		if a.Username == username {
			slot = 1
		}
		return JoinResult{Status: JoinMatched, Session: view, YourSlot: slot}, nil
	}
	pos := len(r.queue)
	r.armQueueDeadlineLocked(username)
	r.mu.Unlock()

	r.emitQueuePosition(username, pos)
	obslog.L().Info("queue_join", zap.String("username", username), zap.Int("position", pos))
	return JoinResult{Status: JoinWaiting, Position: pos}, nil
}

func (r *Registry) emitQueuePosition(username string, pos int) {
	notice := r.notice("queue.waiting", map[string]any{"Position": pos}, "Waiting for an opponent...")
	r.sink.Emit([]string{username}, Event{Type: EventQueueUpdate, Data: QueueUpdatePayload{Position: pos, Notice: notice}})
}

// LeaveQueue removes the player from matchmaking. Unknown players are a
// no-op so the gateway can call it unconditionally on disconnect.
func (r *Registry) LeaveQueue(username string) {
	username = Normalize(username)
	r.mu.Lock()
	removed := r.removeFromQueueLocked(username)
	r.mu.Unlock()
	if removed {
		obslog.L().Info("queue_leave", zap.String("username", username))
	}
}

// removeFromQueueLocked drops the entry and its deadline; caller holds r.mu.
func (r *Registry) removeFromQueueLocked(username string) bool {
	for i, e := range r.queue {
		if e.Username == username {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			r.stopQueueTimerLocked(username)
			return true
		}
	}
	return false
}

// createSession builds and indexes a new session. Slot 1 is always a human;
// slot 2 is the bot when vsBot is set.
func (r *Registry) createSession(a, b *QueueEntry, vsBot bool) *SessionView {
	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		IsAgainstBot: vsBot,
		StartedAt:    now,
		Turn:         1,
		Status:       StatusActive,
		LastMoveAt:   now,
	}
	s.Slots[0] = Slot{Username: a.Username, ConnRef: a.ConnRef}
	if vsBot {
		s.Slots[1] = Slot{Username: BotName, IsBot: true}
	} else {
		s.Slots[1] = Slot{Username: b.Username, ConnRef: b.ConnRef}
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.byUser[a.Username] = s.ID
	if !vsBot {
		r.byUser[b.Username] = s.ID
	}
	r.mu.Unlock()

	s.mu.Lock()
	view := s.viewLocked()
	s.mu.Unlock()

	notice := r.notice("session.started", map[string]any{
		"PlayerA": view.Players[0].Username, "PlayerB": view.Players[1].Username,
	}, "Game on!")
	r.sink.Emit([]string{a.Username}, Event{Type: EventSessionStarted, Data: SessionStartedPayload{Session: view, YourSlot: 1, Notice: notice}})
	if !vsBot {
		r.sink.Emit([]string{b.Username}, Event{Type: EventSessionStarted, Data: SessionStartedPayload{Session: view, YourSlot: 2, Notice: notice}})
	}
	obslog.L().Info("session_create",
		zap.String("session_id", s.ID),
		zap.String("player_a", view.Players[0].Username),
		zap.String("player_b", view.Players[1].Username),
		zap.Bool("vs_bot", vsBot))

	r.armMoveClock(s, 1)
	return view
}

// SendChallenge creates a direct invitation from one named player to
// another. Both must be free of active sessions and the pair must not
// already have a pending challenge in this direction.
func (r *Registry) SendChallenge(from, to, fromConn string) (ChallengeView, error) {
	from, to = Normalize(from), Normalize(to)
	if from == "" || to == "" {
		return ChallengeView{}, ErrInvalidArgs
	}
	if from == to {
		return ChallengeView{}, ErrSelfChallenge
	}

	r.mu.Lock()
	if r.activeSessionLocked(from) != nil {
		r.mu.Unlock()
		return ChallengeView{}, ErrAlreadyInGame
	}
	if r.activeSessionLocked(to) != nil {
		r.mu.Unlock()
		return ChallengeView{}, ErrOpponentInGame
	}
	for _, c := range r.challenges {
		if c.Status == ChallengePending && c.From == from && c.To == to {
			r.mu.Unlock()
			return ChallengeView{}, ErrDuplicateChallenge
		}
	}
	ch := &Challenge{
		ID:          uuid.NewString(),
		From:        from,
		To:          to,
		FromConnRef: fromConn,
		CreatedAt:   time.Now(),
		Status:      ChallengePending,
	}
	r.challenges[ch.ID] = ch
	r.armChallengeExpiryLocked(ch)
	view := ch.view()
	r.mu.Unlock()

	notice := r.notice("challenge.received", map[string]any{"From": from}, from+" challenged you!")
	r.sink.Emit([]string{to}, Event{Type: EventChallengeReceived, Data: ChallengeReceivedPayload{Challenge: view, Notice: notice}})
	obslog.L().Info("challenge_send", zap.String("challenge_id", ch.ID), zap.String("from", from), zap.String("to", to))
	return view, nil
}

// activeSessionLocked reports the player's active session, if any; caller
// holds r.mu. Finished sessions that have not been swept yet do not count.
func (r *Registry) activeSessionLocked(username string) *Session {
	s := r.sessions[r.byUser[username]]
	if s == nil {
		return nil
	}
	s.mu.Lock()
	active := s.Status == StatusActive
	s.mu.Unlock()
	if !active {
		return nil
	}
	return s
}

// AcceptChallenge consumes a pending challenge and starts the session. Both
// players are pulled out of the matchmaking queue first.
func (r *Registry) AcceptChallenge(id, by, byConn string) (*SessionView, error) {
	by = Normalize(by)

	r.mu.Lock()
	ch, ok := r.challenges[id]
	if !ok || ch.Status != ChallengePending {
		r.mu.Unlock()
		return nil, ErrChallengeNotFound
	}
	if ch.To != by {
		r.mu.Unlock()
		return nil, ErrChallengeNotAddressee
	}
	if r.activeSessionLocked(by) != nil {
		r.mu.Unlock()
		return nil, ErrAlreadyInGame
	}
	if r.activeSessionLocked(ch.From) != nil {
		r.mu.Unlock()
		return nil, ErrOpponentInGame
	}
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, ErrServerFull
	}
	ch.Status = ChallengeAccepted
	if ch.expiry != nil {
		ch.expiry.Stop()
	}
	delete(r.challenges, id)
	r.removeFromQueueLocked(ch.From)
	r.removeFromQueueLocked(by)
	fromConn := ch.FromConnRef
	if ref, ok := r.userConns[ch.From]; ok {
		fromConn = ref
	}
	view := ch.view()
	r.mu.Unlock()

	notice := r.notice("challenge.accepted", map[string]any{"To": by}, by+" accepted your challenge.")
	r.sink.Emit([]string{ch.From}, Event{Type: EventChallengeResolved, Data: ChallengeResolvedPayload{Challenge: view, Notice: notice}})
	sv := r.createSession(
		&QueueEntry{Username: ch.From, ConnRef: fromConn, JoinedAt: ch.CreatedAt},
		&QueueEntry{Username: by, ConnRef: byConn, JoinedAt: time.Now()},
		false,
	)
	return sv, nil
}

// RejectChallenge lets the addressee decline; the sender is notified.
func (r *Registry) RejectChallenge(id, by string) error {
	return r.resolveChallenge(id, Normalize(by), ChallengeRejected)
}

// CancelChallenge lets the sender withdraw; the addressee is notified.
func (r *Registry) CancelChallenge(id, by string) error {
	return r.resolveChallenge(id, Normalize(by), ChallengeCancelled)
}

func (r *Registry) resolveChallenge(id, by string, status ChallengeStatus) error {
	r.mu.Lock()
	ch, ok := r.challenges[id]
	if !ok || ch.Status != ChallengePending {
		r.mu.Unlock()
		return ErrChallengeNotFound
	}
	switch status {
	case ChallengeRejected:
		if ch.To != by {
			r.mu.Unlock()
			return ErrChallengeNotAddressee
		}
	case ChallengeCancelled:
		if ch.From != by {
			r.mu.Unlock()
			return ErrChallengeNotSender
		}
	}
	ch.Status = status
	if ch.expiry != nil {
		ch.expiry.Stop()
	}
	delete(r.challenges, id)
	view := ch.view()
	r.mu.Unlock()

	var recipient, notice string
	if status == ChallengeRejected {
		recipient = ch.From
		notice = r.notice("challenge.rejected", map[string]any{"To": ch.To}, ch.To+" declined your challenge.")
	} else {
		recipient = ch.To
		notice = r.notice("challenge.cancelled", map[string]any{"From": ch.From}, ch.From+" withdrew the challenge.")
	}
	r.sink.Emit([]string{recipient}, Event{Type: EventChallengeResolved, Data: ChallengeResolvedPayload{Challenge: view, Notice: notice}})
	obslog.L().Info("challenge_resolve", zap.String("challenge_id", id), zap.String("status", string(status)))
	return nil
}

// PendingChallenges lists the player's incoming and outgoing pending
// challenges, oldest first.
func (r *Registry) PendingChallenges(username string) (received, sent []ChallengeView) {
	username = Normalize(username)
	r.mu.RLock()
	for _, c := range r.challenges {
		if c.Status != ChallengePending {
			continue
		}
		switch username {
		case c.To:
			received = append(received, c.view())
		case c.From:
			sent = append(sent, c.view())
		}
	}
	r.mu.RUnlock()
	sortChallenges(received)
	sortChallenges(sent)
	return received, sent
}

func sortChallenges(cs []ChallengeView) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].CreatedAt.Before(cs[j].CreatedAt) })
}

// ApplyMove validates and applies a human move. Bot replies and move-clock
// handling are driven from the shared commit path.
func (r *Registry) ApplyMove(sessionID string, column int, username string) error {
	username = Normalize(username)
	r.mu.RLock()
	s := r.sessions[sessionID]
	r.mu.RUnlock()
	if s == nil {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	slot := 0
	for i := range s.Slots {
		sl := s.Slots[i]
		if sl.IsBot {
			if sl.OriginalUsername == username {
				s.mu.Unlock()
				return ErrBotControlled
			}
			continue
		}
		if sl.Username == username {
			slot = i + 1
		}
	}
	s.mu.Unlock()
	if slot == 0 {
		return ErrNotInSession
	}
	return r.applyMoveSlot(s, column, slot, false)
}

// applyMoveSlot is the single commit path for human and bot moves. The
// board transition, win/draw detection and turn hand-off happen under the
// session lock; events, clocks and persistence run after release.
func (r *Registry) applyMoveSlot(s *Session, column, slot int, byBot bool) error {
	s.mu.Lock()
	if s.Status != StatusActive {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	if s.Turn != slot {
		s.mu.Unlock()
		return ErrWrongTurn
	}
	if !byBot && s.Slots[slotIndex(slot)].IsBot {
		s.mu.Unlock()
		return ErrBotControlled
	}
	player := cellForSlot(slot)
	row, next, err := s.Board.Drop(column, player)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, board.ErrColumnOutOfRange) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	mover := s.Slots[slotIndex(slot)].Username
	now := time.Now()
	s.Board = next
	s.LastMoveAt = now
	s.Moves = append(s.Moves, domain.Move{Username: mover, Column: column, Row: row, At: now})
	s.stopMoveClockLocked()

	var result string
	winnerSlot := 0
	switch {
	case next.DetectWin(row, column, player):
		s.Status = StatusFinished
		winnerSlot = slot
		if slot == 1 {
			result = ResultSlotAWin
		} else {
			result = ResultSlotBWin
		}
	case next.IsFull():
		s.Status = StatusFinished
		result = ResultDraw
	default:
		s.Turn = otherSlot(slot)
	}
	nextTurn := 0
	if s.Status == StatusActive {
		nextTurn = s.Turn
	}
	nextIsBot := nextTurn != 0 && s.Slots[slotIndex(nextTurn)].IsBot
	recipients := s.recipientsLocked()
	snapshot := s.Board
	s.mu.Unlock()

	r.sink.Emit(recipients, Event{Type: EventMoveApplied, Data: MoveAppliedPayload{
		SessionID: s.ID,
		Column:    column,
		Row:       row,
		Slot:      slot,
		Username:  mover,
		ByBot:     byBot,
		Board:     snapshot,
		NextTurn:  nextTurn,
	}})
	obslog.L().Debug("move_apply",
		zap.String("session_id", s.ID),
		zap.String("username", mover),
		zap.Int("column", column),
		zap.Int("row", row),
		zap.Bool("by_bot", byBot))

	if result != "" {
		r.finishSession(s, result, winnerSlot, &WinningCell{Row: row, Col: column})
		return nil
	}
	if nextIsBot {
		r.scheduleBotMove(s, nextTurn)
	} else {
		r.armMoveClock(s, nextTurn)
	}
	return nil
}

// HandleDisconnect reacts to a dropped connection: the player leaves the
// matchmaking queue, and if they are in an active session a reconnection
// grace clock starts toward forfeit.
func (r *Registry) HandleDisconnect(connRef string) {
	r.mu.Lock()
	username, ok := r.connIndex[connRef]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.connIndex, connRef)
	if r.userConns[username] == connRef {
		delete(r.userConns, username)
	}
	r.removeFromQueueLocked(username)
	s := r.sessions[r.byUser[username]]
	r.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.Status != StatusActive {
		s.mu.Unlock()
		return
	}
	present := false
	for i := range s.Slots {
		sl := &s.Slots[i]
		if !sl.IsBot && sl.Username == username {
			if sl.ConnRef != connRef && sl.ConnRef != "" {
				// a newer connection already took over this seat
				s.mu.Unlock()
				return
			}
			sl.ConnRef = ""
			present = true
		}
	}
	recipients := s.recipientsLocked()
	s.mu.Unlock()
	if !present {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.disconnects[username] = &DisconnectRecord{Username: username, SessionID: s.ID, DisconnectedAt: time.Now()}
	if t, ok := r.graceTimers[username]; ok {
		t.Stop()
	}
	r.graceTimers[username] = time.AfterFunc(r.cfg.GraceTimeout, func() { r.handleGraceExpiry(username) })
	r.mu.Unlock()

	notice := r.notice("session.opponent_disconnected", map[string]any{
		"Username": username,
		"Seconds":  int(r.cfg.GraceTimeout / time.Second),
	}, username+" disconnected.")
	for _, rcpt := range recipients {
		if rcpt == username {
			continue
		}
		r.sink.Emit([]string{rcpt}, Event{Type: EventOpponentDisconnected, Data: PresencePayload{
			SessionID: s.ID, Username: username, Notice: notice,
		}})
	}
	obslog.L().Info("session_disconnect", zap.String("session_id", s.ID), zap.String("username", username))
}

// SessionByID returns a snapshot of a live session.
func (r *Registry) SessionByID(id string) (*SessionView, bool) {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	view := s.viewLocked()
	s.mu.Unlock()
	return view, true
}

// SessionByUsername returns the player's current session snapshot and slot.
func (r *Registry) SessionByUsername(username string) (*SessionView, int, bool) {
	username = Normalize(username)
	r.mu.RLock()
	s := r.sessions[r.byUser[username]]
	r.mu.RUnlock()
	if s == nil {
		return nil, 0, false
	}
	s.mu.Lock()
	view := s.viewLocked()
	s.mu.Unlock()
	for i, p := range view.Players {
		if p.Username == username || p.OriginalUsername == username {
			return view, i + 1, true
		}
	}
	return nil, 0, false
}

// Stats reports live collection sizes for health reporting.
type Stats struct {
	Sessions   int `json:"sessions"`
	Queue      int `json:"queue"`
	Challenges int `json:"challenges"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Sessions: len(r.sessions), Queue: len(r.queue), Challenges: len(r.challenges)}
}

// finishSession tears a finished session out of every index, notifies both
// sides and hands the completed game to the recorder. The session's Status
// must already be Finished and its move clock stopped.
func (r *Registry) finishSession(s *Session, result string, winnerSlot int, lastMove *WinningCell) {
	s.mu.Lock()
	winner := ""
	if winnerSlot != 0 {
		winner = s.Slots[slotIndex(winnerSlot)].Username
	}
	recipients := s.recipientsLocked()
	completed := r.buildCompletedLocked(s, result, winnerSlot)
	snapshot := s.Board
	s.mu.Unlock()

	r.mu.Lock()
	delete(r.sessions, s.ID)
	for _, sl := range s.Slots {
		for _, name := range []string{sl.Username, sl.OriginalUsername} {
			if name == "" || name == BotName {
				continue
			}
			if r.byUser[name] == s.ID {
				delete(r.byUser, name)
			}
			if t, ok := r.graceTimers[name]; ok {
				t.Stop()
				delete(r.graceTimers, name)
			}
			delete(r.disconnects, name)
		}
	}
	r.mu.Unlock()

	notice := r.finishNotice(result, winner)
	r.sink.Emit(recipients, Event{Type: EventSessionFinished, Data: SessionFinishedPayload{
		SessionID: s.ID,
		Result:    result,
		Winner:    winner,
		Board:     snapshot,
		LastMove:  lastMove,
		Notice:    notice,
	}})
	obslog.L().Info("session_finish",
		zap.String("session_id", s.ID),
		zap.String("result", result),
		zap.String("winner", winner),
		zap.Duration("duration", completed.Duration))

	go r.record(completed)
}

func (r *Registry) finishNotice(result, winner string) string {
	switch result {
	case ResultDraw:
		return r.notice("session.draw", nil, "It's a draw!")
	case ResultForfeit:
		return r.notice("session.forfeit", map[string]any{"Winner": winner}, winner+" wins by forfeit.")
	default:
		return r.notice("session.win", map[string]any{"Winner": winner}, winner+" wins!")
	}
}

// buildCompletedLocked assembles the archival record; caller holds s.mu.
func (r *Registry) buildCompletedLocked(s *Session, result string, winnerSlot int) *domain.CompletedGame {
	now := time.Now()
	winner := ""
	if winnerSlot != 0 {
		winner = s.Slots[slotIndex(winnerSlot)].identity()
	}
	return &domain.CompletedGame{
		ID:           s.ID,
		PlayerA:      s.Slots[0].identity(),
		PlayerB:      s.Slots[1].identity(),
		Winner:       winner,
		Result:       result,
		Moves:        append([]domain.Move(nil), s.Moves...),
		FinalBoard:   s.Board,
		IsAgainstBot: s.IsAgainstBot,
		TakenOverA:   s.Slots[0].TakenOver,
		TakenOverB:   s.Slots[1].TakenOver,
		StartedAt:    s.StartedAt,
		EndedAt:      now,
		Duration:     now.Sub(s.StartedAt),
	}
}

// record persists the game and per-player outcomes. A slot that was taken
// over counts as a loss for its original player regardless of how the
// session ended.
func (r *Registry) record(g *domain.CompletedGame) {
	if r.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.recorder.RecordCompletedGame(ctx, g); err != nil {
		obslog.L().Warn("record_game_fail", zap.String("game_id", g.ID), zap.Error(err))
	}
	type seat struct {
		name      string
		wasBot    bool
		takenOver bool
		winTag    string
	}
	seats := []seat{
		{name: g.PlayerA, wasBot: g.PlayerA == BotName, takenOver: g.TakenOverA, winTag: ResultSlotAWin},
		{name: g.PlayerB, wasBot: g.PlayerB == BotName, takenOver: g.TakenOverB, winTag: ResultSlotBWin},
	}
	for _, st := range seats {
		if st.wasBot && !st.takenOver {
			continue
		}
		var outcome domain.Outcome
		switch {
		case st.takenOver:
			outcome = domain.OutcomeLoss
		case g.Result == ResultDraw:
			outcome = domain.OutcomeDraw
		case g.Winner == st.name:
			outcome = domain.OutcomeWin
		default:
			outcome = domain.OutcomeLoss
		}
		if err := r.recorder.RecordOutcome(ctx, st.name, outcome); err != nil {
			obslog.L().Warn("record_outcome_fail", zap.String("username", st.name), zap.Error(err))
		}
	}
}

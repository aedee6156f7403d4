package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/trex-ayush/4-Dot-Game/internal/board"
	"github.com/trex-ayush/4-Dot-Game/internal/domain"
)

// BotName is the display name for bot-controlled slots. Role decisions are
// always made from the IsBot flag, never from the name.
const BotName = "BOT"

// Normalize lowercases and trims a username. Applied at every entry point
// so usernames stay unique join keys across all collections.
func Normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Status represents a session lifecycle state.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
)

// Result tags for finished sessions.
const (
	ResultSlotAWin = "slotA_win"
	ResultSlotBWin = "slotB_win"
	ResultDraw     = "draw"
	ResultForfeit  = "forfeit"
)

// Slot binds one of the two turn positions to a player identity.
type Slot struct {
	Username         string
	ConnRef          string // empty while bot-controlled or disconnected
	IsBot            bool
	TakenOver        bool
	OriginalUsername string // identity before a takeover, for records and routing
}

// identity returns the username outcomes are recorded under.
func (sl Slot) identity() string {
	if sl.TakenOver && sl.OriginalUsername != "" {
		return sl.OriginalUsername
	}
	return sl.Username
}

// Session is one game in progress or finished. The registry owns the maps
// it lives in; the session's own mutex serializes all mutation so unrelated
// sessions progress in parallel.
type Session struct {
	ID           string
	IsAgainstBot bool
	StartedAt    time.Time

	mu         sync.Mutex
	Board      board.Board
	Slots      [2]Slot
	Turn       int // 1 or 2
	Status     Status
	Moves      []domain.Move
	LastMoveAt time.Time

	moveTimer    *time.Timer
	moveDeadline time.Time
	moveSlot     int // slot the armed clock belongs to
}

func cellForSlot(slot int) board.Cell {
	if slot == 1 {
		return board.PlayerA
	}
	return board.PlayerB
}

func otherSlot(slot int) int {
	if slot == 1 {
		return 2
	}
	return 1
}

// slotIndex converts a 1-based slot number into a Slots index.
func slotIndex(slot int) int { return slot - 1 }

// QueueEntry is one waiting player in the FIFO matchmaking list.
type QueueEntry struct {
	Username string
	ConnRef  string
	JoinedAt time.Time
}

// ChallengeStatus tracks the challenge state machine; everything after
// Pending is terminal.
type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "PENDING"
	ChallengeAccepted  ChallengeStatus = "ACCEPTED"
	ChallengeRejected  ChallengeStatus = "REJECTED"
	ChallengeCancelled ChallengeStatus = "CANCELLED"
	ChallengeExpired   ChallengeStatus = "EXPIRED"
)

// Challenge is a direct, named invitation to play.
type Challenge struct {
	ID          string
	From        string
	To          string
	FromConnRef string
	CreatedAt   time.Time
	Status      ChallengeStatus

	expiry *time.Timer
}

// ChallengeView is the immutable snapshot handed to callers and events.
type ChallengeView struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Status    ChallengeStatus `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (c *Challenge) view() ChallengeView {
	return ChallengeView{ID: c.ID, From: c.From, To: c.To, Status: c.Status, CreatedAt: c.CreatedAt}
}

// DisconnectRecord exists only during the reconnection grace window.
type DisconnectRecord struct {
	Username       string
	SessionID      string
	DisconnectedAt time.Time
}

// PlayerView is the per-slot part of a session snapshot.
type PlayerView struct {
	Username         string `json:"username"`
	IsBot            bool   `json:"isBot"`
	Connected        bool   `json:"connected"`
	TakenOver        bool   `json:"takenOver,omitempty"`
	OriginalUsername string `json:"originalUsername,omitempty"`
}

// SessionView is an immutable snapshot safe to hand outside the registry.
type SessionView struct {
	ID           string        `json:"id"`
	Board        board.Board   `json:"board"`
	Players      [2]PlayerView `json:"players"`
	Turn         int           `json:"turn"`
	Status       Status        `json:"status"`
	IsAgainstBot bool          `json:"isAgainstBot"`
	Moves        []domain.Move `json:"moves"`
	StartedAt    time.Time     `json:"startedAt"`
	LastMoveAt   time.Time     `json:"lastMoveAt"`
}

// viewLocked snapshots the session; caller holds s.mu.
func (s *Session) viewLocked() *SessionView {
	v := &SessionView{
		ID:           s.ID,
		Board:        s.Board,
		Turn:         s.Turn,
		Status:       s.Status,
		IsAgainstBot: s.IsAgainstBot,
		Moves:        append([]domain.Move(nil), s.Moves...),
		StartedAt:    s.StartedAt,
		LastMoveAt:   s.LastMoveAt,
	}
	for i, sl := range s.Slots {
		v.Players[i] = PlayerView{
			Username:         sl.Username,
			IsBot:            sl.IsBot,
			Connected:        sl.ConnRef != "",
			TakenOver:        sl.TakenOver,
			OriginalUsername: sl.OriginalUsername,
		}
	}
	return v
}

// recipientsLocked lists the usernames session events are routed to: every
// human slot plus original identities after takeover. Caller holds s.mu.
func (s *Session) recipientsLocked() []string {
	seen := make(map[string]bool, 4)
	var out []string
	add := func(name string) {
		if name == "" || name == BotName || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, sl := range s.Slots {
		if !sl.IsBot {
			add(sl.Username)
		}
		add(sl.OriginalUsername)
	}
	return out
}

// Operation errors. Timer-driven transitions (takeover, forfeit) are not
// errors; they are logged state transitions with their own events.
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionNotActive      = errors.New("session is not active")
	ErrWrongTurn             = errors.New("not your turn")
	ErrIllegalMove           = errors.New("illegal move")
	ErrNotInSession          = errors.New("player is not part of this session")
	ErrBotControlled         = errors.New("slot is bot-controlled")
	ErrSelfChallenge         = errors.New("cannot challenge yourself")
	ErrAlreadyInGame         = errors.New("player already in a game")
	ErrOpponentInGame        = errors.New("target player already in a game")
	ErrDuplicateChallenge    = errors.New("challenge already pending for this pair")
	ErrChallengeNotFound     = errors.New("challenge not found or no longer pending")
	ErrChallengeNotAddressee = errors.New("challenge is addressed to someone else")
	ErrChallengeNotSender    = errors.New("challenge was sent by someone else")
	ErrInvalidArgs           = errors.New("invalid arguments")
	ErrServerFull            = errors.New("session capacity reached")
)

// ErrorKind classifies operation failures for outbound rejection events.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindStateConflict ErrorKind = "state_conflict"
	KindNotFound      ErrorKind = "not_found"
	KindInternal      ErrorKind = "internal"
)

// Kind maps an operation error onto the error taxonomy.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrChallengeNotFound):
		return KindNotFound
	case errors.Is(err, ErrWrongTurn), errors.Is(err, ErrSessionNotActive),
		errors.Is(err, ErrIllegalMove), errors.Is(err, ErrNotInSession),
		errors.Is(err, ErrBotControlled), errors.Is(err, ErrSelfChallenge),
		errors.Is(err, ErrAlreadyInGame), errors.Is(err, ErrOpponentInGame),
		errors.Is(err, ErrDuplicateChallenge), errors.Is(err, ErrChallengeNotAddressee),
		errors.Is(err, ErrChallengeNotSender), errors.Is(err, ErrServerFull):
		return KindStateConflict
	case errors.Is(err, ErrInvalidArgs), errors.Is(err, board.ErrColumnOutOfRange):
		return KindValidation
	default:
		return KindInternal
	}
}

// MessageKey returns the msgcat key for a user-facing rejection message.
func MessageKey(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "errors.session_not_found"
	case errors.Is(err, ErrSessionNotActive):
		return "errors.session_not_active"
	case errors.Is(err, ErrWrongTurn):
		return "errors.wrong_turn"
	case errors.Is(err, ErrIllegalMove), errors.Is(err, board.ErrColumnOutOfRange), errors.Is(err, board.ErrColumnFull):
		return "errors.illegal_move"
	case errors.Is(err, ErrNotInSession), errors.Is(err, ErrBotControlled):
		return "errors.not_in_session"
	case errors.Is(err, ErrSelfChallenge):
		return "errors.self_challenge"
	case errors.Is(err, ErrAlreadyInGame):
		return "errors.already_in_game"
	case errors.Is(err, ErrOpponentInGame):
		return "errors.opponent_in_game"
	case errors.Is(err, ErrDuplicateChallenge):
		return "errors.duplicate_challenge"
	case errors.Is(err, ErrChallengeNotFound):
		return "errors.challenge_not_found"
	case errors.Is(err, ErrChallengeNotAddressee):
		return "errors.challenge_not_yours"
	case errors.Is(err, ErrChallengeNotSender):
		return "errors.challenge_not_sender"
	case errors.Is(err, ErrServerFull):
		return "errors.server_full"
	default:
		return ""
	}
}

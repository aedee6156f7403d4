package session

import (
	"time"

	"github.com/trex-ayush/4-Dot-Game/internal/board"
)

// Event is one outbound notification. Data is an event-specific payload
// struct; the sink serializes it as-is.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventSink delivers events to the connections currently bound to the given
// usernames. Delivery is best effort; usernames without a live connection
// are skipped.
type EventSink interface {
	Emit(usernames []string, ev Event)
}

// NopSink drops every event. Used in tests and as the default sink.
type NopSink struct{}

func (NopSink) Emit([]string, Event) {}

// Outbound event types.
const (
	EventQueueUpdate          = "queue_update"
	EventSessionStarted       = "session_started"
	EventMoveApplied          = "move_applied"
	EventMoveClock            = "move_clock"
	EventPlayerTakeover       = "player_takeover"
	EventOpponentDisconnected = "opponent_disconnected"
	EventOpponentReconnected  = "opponent_reconnected"
	EventSessionFinished      = "session_finished"
	EventChallengeReceived    = "challenge_received"
	EventChallengeResolved    = "challenge_resolved"
)

// QueueUpdatePayload reports a waiting player's 1-based queue position.
type QueueUpdatePayload struct {
	Position int    `json:"position"`
	Notice   string `json:"notice,omitempty"`
}

// SessionStartedPayload is personalized per recipient with their slot.
type SessionStartedPayload struct {
	Session  *SessionView `json:"session"`
	YourSlot int          `json:"yourSlot"`
	Notice   string       `json:"notice,omitempty"`
}

type MoveAppliedPayload struct {
	SessionID string      `json:"sessionId"`
	Column    int         `json:"column"`
	Row       int         `json:"row"`
	Slot      int         `json:"slot"`
	Username  string      `json:"username"`
	ByBot     bool        `json:"byBot"`
	Board     board.Board `json:"board"`
	NextTurn  int         `json:"nextTurn"` // 0 once the session is finished
}

// MoveClockPayload announces the armed move deadline for the slot on turn.
type MoveClockPayload struct {
	SessionID string    `json:"sessionId"`
	Slot      int       `json:"slot"`
	Username  string    `json:"username"`
	Deadline  time.Time `json:"deadline"`
	Seconds   int       `json:"seconds"`
}

type PlayerTakeoverPayload struct {
	SessionID        string `json:"sessionId"`
	Slot             int    `json:"slot"`
	OriginalUsername string `json:"originalUsername"`
	Notice           string `json:"notice,omitempty"`
}

type PresencePayload struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
	Notice    string `json:"notice,omitempty"`
}

// WinningCell marks one end of the detected winning line.
type WinningCell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type SessionFinishedPayload struct {
	SessionID string       `json:"sessionId"`
	Result    string       `json:"result"`
	Winner    string       `json:"winner,omitempty"`
	Board     board.Board  `json:"board"`
	LastMove  *WinningCell `json:"lastMove,omitempty"`
	Notice    string       `json:"notice,omitempty"`
}

type ChallengeReceivedPayload struct {
	Challenge ChallengeView `json:"challenge"`
	Notice    string        `json:"notice,omitempty"`
}

type ChallengeResolvedPayload struct {
	Challenge ChallengeView `json:"challenge"`
	Notice    string        `json:"notice,omitempty"`
}

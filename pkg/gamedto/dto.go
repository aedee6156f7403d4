// Package gamedto defines the wire shapes shared by the gateway and its
// clients.
package gamedto

import "encoding/json"

// Command is the inbound envelope. Data carries the action-specific
// payload and may be empty for actions without arguments.
type Command struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Inbound actions.
const (
	ActionRegister        = "register"
	ActionJoinQueue       = "join_queue"
	ActionLeaveQueue      = "leave_queue"
	ActionMove            = "move"
	ActionChallenge       = "challenge"
	ActionChallengeAccept = "challenge_accept"
	ActionChallengeReject = "challenge_reject"
	ActionChallengeCancel = "challenge_cancel"
	ActionChallengeList   = "challenge_list"
	ActionSessionState    = "session_state"
)

type RegisterRequest struct {
	Username string `json:"username"`
}

type MoveRequest struct {
	SessionID string `json:"sessionId"`
	Column    int    `json:"column"`
}

type ChallengeRequest struct {
	To string `json:"to"`
}

type ChallengeActionRequest struct {
	ChallengeID string `json:"challengeId"`
}

// Rejection is the payload of an operation_rejected event; Action echoes
// the inbound action that failed.
type Rejection struct {
	Action  string `json:"action"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

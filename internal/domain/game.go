package domain

import (
	"time"

	"github.com/trex-ayush/4-Dot-Game/internal/board"
)

// Outcome is the per-player result recorded for statistics.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Move is one entry of a session's append-only move log.
type Move struct {
	Username string    `json:"username"`
	Column   int       `json:"column"`
	Row      int       `json:"row"`
	At       time.Time `json:"at"`
}

// CompletedGame is the terminal snapshot handed to the persistence
// collaborator once a session finishes. Usernames are the original
// identities, even after a bot takeover.
type CompletedGame struct {
	ID           string
	PlayerA      string
	PlayerB      string
	Winner       string // empty on draw
	Result       string // slotA_win | slotB_win | draw | forfeit
	Moves        []Move
	FinalBoard   board.Board
	IsAgainstBot bool
	TakenOverA   bool
	TakenOverB   bool
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
}

// PlayerStats is the aggregate win/loss record for one username.
type PlayerStats struct {
	Username    string  `json:"username"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Draws       int     `json:"draws"`
	GamesPlayed int     `json:"gamesPlayed"`
	WinRate     float64 `json:"winRate"`
}

// Rate returns the win percentage for played games.
func (s PlayerStats) Rate() float64 {
	if s.GamesPlayed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.GamesPlayed) * 100
}

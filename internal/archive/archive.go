// Package archive persists finished games and per-player aggregates.
// Postgres backs production; an in-memory repository serves development
// and tests when no DATABASE_URL is configured.
package archive

import (
	"context"
	"errors"

	"github.com/trex-ayush/4-Dot-Game/internal/domain"
)

var ErrDuplicateGame = errors.New("game already archived")

type Repository interface {
	InsertGame(ctx context.Context, game *domain.CompletedGame) error
	GetGame(ctx context.Context, id string) (*domain.CompletedGame, error)
	GetRecentGames(ctx context.Context, username string, limit int) ([]*domain.CompletedGame, error)
	GetStats(ctx context.Context, username string) (*domain.PlayerStats, error)
	BumpStats(ctx context.Context, username string, outcome domain.Outcome) error
	Close() error
}

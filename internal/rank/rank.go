// Package rank keeps the public leaderboard on a Redis sorted set so it
// survives restarts and can be shared by multiple server instances.
package rank

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/trex-ayush/4-Dot-Game/internal/domain"
)

const leaderboardKey = "rank:leaderboard"

// Points awarded per recorded outcome.
const (
	winPoints  = 3
	drawPoints = 1
)

// Entry is one leaderboard row; Rank is 1-based.
type Entry struct {
	Rank     int     `json:"rank"`
	Username string  `json:"username"`
	Points   float64 `json:"points"`
}

type Board struct {
	rdb *redis.Client
}

// New connects to Redis and pings it before returning the board.
func New(redisURL string) (*Board, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Board{rdb: rdb}, nil
}

// NewWithClient wraps an existing client; the caller keeps ownership.
func NewWithClient(rdb *redis.Client) *Board {
	return &Board{rdb: rdb}
}

func (b *Board) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// Record applies one outcome to the player's score. Losses still touch the
// key so every player who finished a game appears on the board.
func (b *Board) Record(ctx context.Context, username string, outcome domain.Outcome) error {
	if b == nil || b.rdb == nil {
		return nil
	}
	var pts float64
	switch outcome {
	case domain.OutcomeWin:
		pts = winPoints
	case domain.OutcomeDraw:
		pts = drawPoints
	case domain.OutcomeLoss:
		pts = 0
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	if err := b.rdb.ZIncrBy(ctx, leaderboardKey, pts, username).Err(); err != nil {
		return fmt.Errorf("leaderboard incr: %w", err)
	}
	return nil
}

// Top returns the highest-scoring players, best first.
func (b *Board) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	zs, err := b.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard range: %w", err)
	}
	entries := make([]Entry, 0, len(zs))
	for i, z := range zs {
		name, _ := z.Member.(string)
		entries = append(entries, Entry{Rank: i + 1, Username: name, Points: z.Score})
	}
	return entries, nil
}

// PositionOf reports a single player's rank and score. The second return
// is false when the player has never finished a game.
func (b *Board) PositionOf(ctx context.Context, username string) (Entry, bool, error) {
	rank, err := b.rdb.ZRevRank(ctx, leaderboardKey, username).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("leaderboard rank: %w", err)
	}
	score, err := b.rdb.ZScore(ctx, leaderboardKey, username).Result()
	if err != nil && err != redis.Nil {
		return Entry{}, false, fmt.Errorf("leaderboard score: %w", err)
	}
	return Entry{Rank: int(rank) + 1, Username: username, Points: score}, true, nil
}

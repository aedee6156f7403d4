package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/trex-ayush/4-Dot-Game/internal/board"
	"github.com/trex-ayush/4-Dot-Game/internal/domain"
)

type pgRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens and pings a Postgres pool. The games and
// player_stats tables are created if missing.
func NewPostgresRepository(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &pgRepository{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS games (
			game_id      TEXT PRIMARY KEY,
			player_a     TEXT NOT NULL,
			player_b     TEXT NOT NULL,
			winner       TEXT NOT NULL DEFAULT '',
			result       TEXT NOT NULL,
			moves        JSONB NOT NULL,
			final_board  JSONB NOT NULL,
			vs_bot       BOOLEAN NOT NULL DEFAULT FALSE,
			taken_over_a BOOLEAN NOT NULL DEFAULT FALSE,
			taken_over_b BOOLEAN NOT NULL DEFAULT FALSE,
			started_at   TIMESTAMPTZ NOT NULL,
			ended_at     TIMESTAMPTZ NOT NULL,
			duration_ms  BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS games_player_a_idx ON games (player_a, ended_at DESC);
		CREATE INDEX IF NOT EXISTS games_player_b_idx ON games (player_b, ended_at DESC);
		CREATE TABLE IF NOT EXISTS player_stats (
			username TEXT PRIMARY KEY,
			wins     INT NOT NULL DEFAULT 0,
			losses   INT NOT NULL DEFAULT 0,
			draws    INT NOT NULL DEFAULT 0
		)`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (r *pgRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *pgRepository) InsertGame(ctx context.Context, game *domain.CompletedGame) error {
	if game == nil {
		return fmt.Errorf("nil game payload")
	}
	moves, err := json.Marshal(game.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	finalBoard, err := json.Marshal(game.FinalBoard)
	if err != nil {
		return fmt.Errorf("marshal board: %w", err)
	}

	const query = `
		INSERT INTO games (
			game_id, player_a, player_b, winner, result,
			moves, final_board, vs_bot, taken_over_a, taken_over_b,
			started_at, ended_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (game_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		game.ID,
		game.PlayerA, game.PlayerB,
		game.Winner, game.Result,
		moves, finalBoard,
		game.IsAgainstBot, game.TakenOverA, game.TakenOverB,
		game.StartedAt, game.EndedAt, game.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateGame
	}
	return nil
}

const gameColumns = `
	game_id, player_a, player_b, winner, result,
	moves, final_board, vs_bot, taken_over_a, taken_over_b,
	started_at, ended_at, duration_ms`

func scanGame(row interface{ Scan(...any) error }) (*domain.CompletedGame, error) {
	var (
		game       domain.CompletedGame
		movesJSON  []byte
		boardJSON  []byte
		durationMS sql.NullInt64
	)
	if err := row.Scan(
		&game.ID,
		&game.PlayerA,
		&game.PlayerB,
		&game.Winner,
		&game.Result,
		&movesJSON,
		&boardJSON,
		&game.IsAgainstBot,
		&game.TakenOverA,
		&game.TakenOverB,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
	); err != nil {
		return nil, err
	}
	if durationMS.Valid {
		game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesJSON, &game.Moves); err != nil {
		return nil, fmt.Errorf("unmarshal moves: %w", err)
	}
	var b board.Board
	if err := json.Unmarshal(boardJSON, &b); err != nil {
		return nil, fmt.Errorf("unmarshal board: %w", err)
	}
	game.FinalBoard = b
	return &game, nil
}

func (r *pgRepository) GetGame(ctx context.Context, id string) (*domain.CompletedGame, error) {
	query := `SELECT` + gameColumns + ` FROM games WHERE game_id = $1`
	game, err := scanGame(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	return game, nil
}

func (r *pgRepository) GetRecentGames(ctx context.Context, username string, limit int) ([]*domain.CompletedGame, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT` + gameColumns + `
		FROM games
		WHERE player_a = $1 OR player_b = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.CompletedGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

func (r *pgRepository) GetStats(ctx context.Context, username string) (*domain.PlayerStats, error) {
	const query = `SELECT wins, losses, draws FROM player_stats WHERE username = $1`
	stats := domain.PlayerStats{Username: username}
	err := r.db.QueryRowContext(ctx, query, username).Scan(&stats.Wins, &stats.Losses, &stats.Draws)
	if err == sql.ErrNoRows {
		return &stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	stats.GamesPlayed = stats.Wins + stats.Losses + stats.Draws
	stats.WinRate = stats.Rate()
	return &stats, nil
}

func (r *pgRepository) BumpStats(ctx context.Context, username string, outcome domain.Outcome) error {
	var col string
	switch outcome {
	case domain.OutcomeWin:
		col = "wins"
	case domain.OutcomeLoss:
		col = "losses"
	case domain.OutcomeDraw:
		col = "draws"
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	query := fmt.Sprintf(`
		INSERT INTO player_stats (username, %[1]s) VALUES ($1, 1)
		ON CONFLICT (username) DO UPDATE SET %[1]s = player_stats.%[1]s + 1`, col)
	if _, err := r.db.ExecContext(ctx, query, username); err != nil {
		return fmt.Errorf("bump stats: %w", err)
	}
	return nil
}

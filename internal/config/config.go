package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	APIAddr string
	WSAddr  string

	RedisURL    string
	DatabaseURL string

	MoveTimeout      time.Duration
	GraceTimeout     time.Duration
	QueueTimeout     time.Duration
	ChallengeTTL     time.Duration
	BotMoveDelay     time.Duration
	BotSearchDepth   int
	MaxSessionsTotal int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		APIAddr:          ":8080",
		WSAddr:           ":8081",
		MoveTimeout:      30 * time.Second,
		GraceTimeout:     30 * time.Second,
		QueueTimeout:     10 * time.Second,
		ChallengeTTL:     60 * time.Second,
		BotMoveDelay:     1 * time.Second,
		BotSearchDepth:   5,
		MaxSessionsTotal: 500,
	}

	if v := strings.TrimSpace(os.Getenv("API_ADDR")); v != "" {
		cfg.APIAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("MOVE_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MoveTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("GRACE_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.GraceTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("QUEUE_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.QueueTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHALLENGE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ChallengeTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOT_MOVE_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.BotMoveDelay = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOT_SEARCH_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BotSearchDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_SESSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSessionsTotal = n
		}
	}

	return cfg, nil
}

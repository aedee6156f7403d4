package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/trex-ayush/4-Dot-Game/internal/api"
	"github.com/trex-ayush/4-Dot-Game/internal/archive"
	"github.com/trex-ayush/4-Dot-Game/internal/boardimg"
	"github.com/trex-ayush/4-Dot-Game/internal/bot"
	"github.com/trex-ayush/4-Dot-Game/internal/config"
	"github.com/trex-ayush/4-Dot-Game/internal/domain"
	"github.com/trex-ayush/4-Dot-Game/internal/gateway"
	"github.com/trex-ayush/4-Dot-Game/internal/msgcat"
	"github.com/trex-ayush/4-Dot-Game/internal/obslog"
	"github.com/trex-ayush/4-Dot-Game/internal/rank"
	"github.com/trex-ayush/4-Dot-Game/internal/session"
)

// recorder fans finished-game data out to the archive and the leaderboard.
type recorder struct {
	repo  archive.Repository
	ranks *rank.Board
}

func (r *recorder) RecordCompletedGame(ctx context.Context, g *domain.CompletedGame) error {
	return r.repo.InsertGame(ctx, g)
}

func (r *recorder) RecordOutcome(ctx context.Context, username string, outcome domain.Outcome) error {
	if err := r.repo.BumpStats(ctx, username, outcome); err != nil {
		return err
	}
	if r.ranks == nil {
		return nil
	}
	return r.ranks.Record(ctx, username, outcome)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	cat, err := msgcat.New(os.Getenv("MSG_DIR"))
	if err != nil {
		logger.Fatal("msgcat init error", zap.Error(err))
	}

	var repo archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive init error", zap.Error(err))
		}
	} else {
		logger.Warn("archive_memory_fallback")
		repo = archive.NewMemoryRepository()
	}
	defer repo.Close()

	var ranks *rank.Board
	if cfg.RedisURL != "" {
		ranks, err = rank.New(cfg.RedisURL)
		if err != nil {
			logger.Fatal("rank init error", zap.Error(err))
		}
		defer ranks.Close()
	} else {
		logger.Warn("rank_disabled_no_redis")
	}

	registry := session.New(session.Config{
		MoveTimeout:  cfg.MoveTimeout,
		GraceTimeout: cfg.GraceTimeout,
		QueueTimeout: cfg.QueueTimeout,
		ChallengeTTL: cfg.ChallengeTTL,
		BotMoveDelay: cfg.BotMoveDelay,
		MaxSessions:  cfg.MaxSessionsTotal,
	}, session.Deps{
		Recorder: &recorder{repo: repo, ranks: ranks},
		Catalog:  cat,
		Bot:      bot.New(cfg.BotSearchDepth),
	})
	defer registry.Close()

	gw := gateway.New(registry, cat)
	registry.SetSink(gw)

	restSrv := api.New(registry, repo, ranks, boardimg.NewSVGRenderer())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- gw.Serve(ctx, cfg.WSAddr) }()
	go func() { errCh <- restSrv.Serve(ctx, cfg.APIAddr) }()
	logger.Info("server_start",
		zap.String("ws_addr", cfg.WSAddr),
		zap.String("api_addr", cfg.APIAddr),
		zap.Int("bot_depth", cfg.BotSearchDepth))

	select {
	case <-ctx.Done():
		logger.Info("server_shutdown_signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("server_fail", zap.Error(err))
		}
		cancel()
	}
	<-errCh
	logger.Info("server_stopped")
}

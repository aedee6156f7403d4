// Package api exposes the read-only REST surface: health, leaderboard,
// player stats and history, and archived or live game lookups including a
// PNG snapshot of the board.
package api

import (
	"context"
	"encoding/json"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/trex-ayush/4-Dot-Game/internal/archive"
	"github.com/trex-ayush/4-Dot-Game/internal/board"
	"github.com/trex-ayush/4-Dot-Game/internal/boardimg"
	"github.com/trex-ayush/4-Dot-Game/internal/obslog"
	"github.com/trex-ayush/4-Dot-Game/internal/rank"
	"github.com/trex-ayush/4-Dot-Game/internal/session"
)

const (
	defaultHistoryLimit   = 20
	defaultLeaderboardTop = 10
	requestTimeout        = 5 * time.Second
)

type Server struct {
	registry *session.Registry
	repo     archive.Repository
	ranks    *rank.Board
	renderer boardimg.Renderer
}

func New(registry *session.Registry, repo archive.Repository, ranks *rank.Board, renderer boardimg.Renderer) *Server {
	return &Server{registry: registry, repo: repo, ranks: ranks, renderer: renderer}
}

func (s *Server) Handler() fasthttp.RequestHandler {
	return s.route
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "GET only")
		return
	}
	path := string(ctx.Path())
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case path == "/health":
		s.handleHealth(ctx)
	case path == "/leaderboard":
		s.handleLeaderboard(ctx)
	case len(parts) == 3 && parts[0] == "players" && parts[2] == "stats":
		s.handlePlayerStats(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "players" && parts[2] == "games":
		s.handlePlayerGames(ctx, parts[1])
	case len(parts) == 2 && parts[0] == "games":
		s.handleGame(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "games" && parts[2] == "board.png":
		s.handleBoardImage(ctx, parts[1])
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	stats := s.registry.Stats()
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"status":     "ok",
		"sessions":   stats.Sessions,
		"queue":      stats.Queue,
		"challenges": stats.Challenges,
	})
}

func (s *Server) handleLeaderboard(ctx *fasthttp.RequestCtx) {
	if s.ranks == nil {
		writeJSON(ctx, fasthttp.StatusOK, []rank.Entry{})
		return
	}
	limit := queryInt(ctx, "limit", defaultLeaderboardTop)
	if limit > defaultLeaderboardTop {
		limit = defaultLeaderboardTop
	}
	rctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	entries, err := s.ranks.Top(rctx, limit)
	if err != nil {
		obslog.L().Warn("leaderboard_fail", zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "leaderboard unavailable")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, entries)
}

func (s *Server) handlePlayerStats(ctx *fasthttp.RequestCtx, username string) {
	username = session.Normalize(username)
	rctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	stats, err := s.repo.GetStats(rctx, username)
	if err != nil {
		obslog.L().Warn("stats_fail", zap.String("username", username), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "stats unavailable")
		return
	}
	resp := map[string]any{"stats": stats}
	if s.ranks != nil {
		if entry, ok, err := s.ranks.PositionOf(rctx, username); err == nil && ok {
			resp["rank"] = entry
		}
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handlePlayerGames(ctx *fasthttp.RequestCtx, username string) {
	username = session.Normalize(username)
	limit := queryInt(ctx, "limit", defaultHistoryLimit)
	rctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	games, err := s.repo.GetRecentGames(rctx, username, limit)
	if err != nil {
		obslog.L().Warn("history_fail", zap.String("username", username), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, games)
}

// handleGame serves live sessions first, then the archive.
func (s *Server) handleGame(ctx *fasthttp.RequestCtx, id string) {
	if view, ok := s.registry.SessionByID(id); ok {
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{"live": true, "session": view})
		return
	}
	rctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	game, err := s.repo.GetGame(rctx, id)
	if err != nil {
		obslog.L().Warn("game_lookup_fail", zap.String("game_id", id), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "lookup failed")
		return
	}
	if game == nil {
		writeError(ctx, fasthttp.StatusNotFound, "game not found")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"live": false, "game": game})
}

func (s *Server) handleBoardImage(ctx *fasthttp.RequestCtx, id string) {
	opts := boardimg.RenderOptions{}
	if view, ok := s.registry.SessionByID(id); ok {
		if n := len(view.Moves); n > 0 {
			last := view.Moves[n-1]
			opts.LastMove = &image.Point{X: last.Column, Y: last.Row}
		}
		s.renderBoard(ctx, view.Board, opts)
		return
	}

	rctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	game, err := s.repo.GetGame(rctx, id)
	if err != nil || game == nil {
		writeError(ctx, fasthttp.StatusNotFound, "game not found")
		return
	}
	opts.Wins = game.FinalBoard.EnumerateWins()
	if n := len(game.Moves); n > 0 {
		last := game.Moves[n-1]
		opts.LastMove = &image.Point{X: last.Column, Y: last.Row}
	}
	s.renderBoard(ctx, game.FinalBoard, opts)
}

func (s *Server) renderBoard(ctx *fasthttp.RequestCtx, b board.Board, opts boardimg.RenderOptions) {
	rctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	raw, err := s.renderer.RenderPNG(rctx, b, opts)
	if err != nil {
		obslog.L().Warn("board_render_fail", zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "render failed")
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("image/png")
	ctx.SetBody(raw)
}

func queryInt(ctx *fasthttp.RequestCtx, key string, def int) int {
	raw := string(ctx.QueryArgs().Peek(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "encode failed")
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	raw, _ := json.Marshal(map[string]string{"error": msg})
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(raw)
}

// Serve runs the REST listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()
	obslog.L().Info("api_listen", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		return srv.Shutdown()
	case err := <-errCh:
		return err
	}
}

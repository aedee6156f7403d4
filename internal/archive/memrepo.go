package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/trex-ayush/4-Dot-Game/internal/domain"
)

// memrepo is the in-memory repository used when no DB is configured.
type memrepo struct {
	mu sync.RWMutex

	gamesByID   map[string]*domain.CompletedGame
	gamesByUser map[string][]*domain.CompletedGame
	stats       map[string]*domain.PlayerStats
}

func NewMemoryRepository() Repository {
	return &memrepo{
		gamesByID:   make(map[string]*domain.CompletedGame),
		gamesByUser: make(map[string][]*domain.CompletedGame),
		stats:       make(map[string]*domain.PlayerStats),
	}
}

func (m *memrepo) Close() error { return nil }

func (m *memrepo) InsertGame(_ context.Context, game *domain.CompletedGame) error {
	if game == nil {
		return ErrDuplicateGame
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.gamesByID[game.ID]; exists {
		return ErrDuplicateGame
	}
	cp := *game
	cp.Moves = append([]domain.Move(nil), game.Moves...)
	m.gamesByID[cp.ID] = &cp
	for _, name := range []string{cp.PlayerA, cp.PlayerB} {
		m.gamesByUser[name] = append(m.gamesByUser[name], &cp)
	}
	return nil
}

func (m *memrepo) GetGame(_ context.Context, id string) (*domain.CompletedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gamesByID[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *memrepo) GetRecentGames(_ context.Context, username string, limit int) ([]*domain.CompletedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.gamesByUser[username]
	items := append([]*domain.CompletedGame(nil), list...)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit <= 0 {
		limit = 20
	}
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]*domain.CompletedGame, len(items))
	for i, g := range items {
		cp := *g
		out[i] = &cp
	}
	return out, nil
}

func (m *memrepo) GetStats(_ context.Context, username string) (*domain.PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[username]
	if !ok {
		return &domain.PlayerStats{Username: username}, nil
	}
	cp := *s
	cp.GamesPlayed = cp.Wins + cp.Losses + cp.Draws
	cp.WinRate = cp.Rate()
	return &cp, nil
}

func (m *memrepo) BumpStats(_ context.Context, username string, outcome domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[username]
	if !ok {
		s = &domain.PlayerStats{Username: username}
		m.stats[username] = s
	}
	switch outcome {
	case domain.OutcomeWin:
		s.Wins++
	case domain.OutcomeLoss:
		s.Losses++
	case domain.OutcomeDraw:
		s.Draws++
	}
	return nil
}

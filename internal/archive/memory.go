package archive

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository keeps games in process memory. Used when no
// DATABASE_URL is configured and in tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	games  map[string]Game
	byUser map[string][]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		games:  make(map[string]Game),
		byUser: make(map[string][]string),
	}
}

func (m *MemoryRepository) SaveGame(_ context.Context, g Game) error {
	g.ID = strings.TrimSpace(g.ID)
	if g.ID == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.games[g.ID]; !exists {
		for _, uid := range []string{g.WhiteID, g.BlackID} {
			m.byUser[uid] = append(m.byUser[uid], g.ID)
		}
	}
	m.games[g.ID] = cloneGame(g)
	return nil
}

func (m *MemoryRepository) LoadGame(_ context.Context, id string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	cp := cloneGame(g)
	return &cp, nil
}

// RecentGames lists the user's games, most recently updated first.
func (m *MemoryRepository) RecentGames(_ context.Context, userID string, limit int) ([]Game, error) {
	m.mu.RLock()
	ids := m.byUser[strings.TrimSpace(userID)]
	items := make([]Game, 0, len(ids))
	for _, id := range ids {
		items = append(items, cloneGame(m.games[id]))
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

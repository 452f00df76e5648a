package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/playludo/backend/internal/models"
)

// Memory is the in-process UserStore fallback. Single-writer via a shared
// RWMutex; values are copied on the way in and out so callers cannot alias
// stored state.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]models.User
	wins     map[string]int
	sessions map[string]memorySession
}

type memorySession struct {
	data      []byte
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]models.User),
		wins:     make(map[string]int),
		sessions: make(map[string]memorySession),
	}
}

func (m *Memory) Connected(ctx context.Context) bool { return true }

func (m *Memory) GetUser(ctx context.Context, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := u
	return &out, nil
}

func (m *Memory) PutUser(ctx context.Context, user *models.User) error {
	user.LastUpdate = time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = *user
	return nil
}

// UpdateUser runs fn against the stored user while holding the write lock,
// so the read-modify-write cannot interleave with any other mutation.
func (m *Memory) UpdateUser(ctx context.Context, userID string, fn func(*models.User) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	u.LastUpdate = time.Now()
	m.users[userID] = u
	return nil
}

func (m *Memory) DeleteUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	delete(m.wins, userID)
	return nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		out := u
		users = append(users, &out)
	}
	return users, nil
}

func (m *Memory) LeaderboardUpsert(ctx context.Context, userID string, winCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wins[userID] = winCount
	return nil
}

// ranked returns all leaderboard entries, win count descending, user id
// ascending on ties (matches Redis ZREVRANGE ordering closely enough for the
// fallback path).
func (m *Memory) ranked() []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(m.wins))
	for id, w := range m.wins {
		entries = append(entries, models.LeaderboardEntry{UserID: id, WinCount: w})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].WinCount != entries[j].WinCount {
			return entries[i].WinCount > entries[j].WinCount
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}

func (m *Memory) LeaderboardTop(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.ranked()
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (m *Memory) LeaderboardRank(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.wins[userID]; !ok {
		return 0, nil
	}
	for i, e := range m.ranked() {
		if e.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (m *Memory) SessionPut(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.sessions[sessionID] = memorySession{data: cp, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) SessionGet(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(s.expiresAt) {
		delete(m.sessions, sessionID)
		return nil, ErrNotFound
	}
	cp := make([]byte, len(s.data))
	copy(cp, s.data)
	return cp, nil
}

func (m *Memory) SessionDelete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

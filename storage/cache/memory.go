package cache

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/sala/core"
)

type counter struct {
	count   int
	expires time.Time
}

// Memory is the in-process twin of Redis. Expired revoked tokens stay until Purge runs.
type Memory struct {
	mu       sync.Mutex
	revoked  map[string]time.Time
	attempts map[string]counter
	now      func() time.Time
}

var (
	_ core.TokenBlacklist = (*Memory)(nil)
	_ core.AttemptCounter = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		revoked:  make(map[string]time.Time),
		attempts: make(map[string]counter),
		now:      time.Now,
	}
}

func (m *Memory) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until.After(m.now()) {
		m.revoked[tokenID] = until
	}
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[tokenID]
	return ok && until.After(m.now()), nil
}

// Purge drops the expired revoked tokens and attempt counters and returns how many tokens were dropped.
func (m *Memory) Purge(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	purged := 0
	for id, until := range m.revoked {
		if !until.After(now) {
			delete(m.revoked, id)
			purged++
		}
	}
	for key, c := range m.attempts {
		if !c.expires.After(now) {
			delete(m.attempts, key)
		}
	}
	return purged, nil
}

func (m *Memory) Hit(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	c, ok := m.attempts[key]
	if !ok || !c.expires.After(now) {
		c = counter{expires: now.Add(window)}
	}
	c.count++
	m.attempts[key] = c
	return c.count, nil
}

func (m *Memory) Count(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.attempts[key]
	if !ok || !c.expires.After(m.now()) {
		return 0, nil
	}
	return c.count, nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, key)
	return nil
}

package cache

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	"sync"
	"time"
)

var _ interfaces.SessionCache = (*MemoryCache)(nil)

type memoryEntry struct {
	session   domain.PaymentSession
	expiresAt time.Time
}

// MemoryCache mirrors RedisCache for single-process runs and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryCache) GetSession(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[sessionID]
	if !ok || m.now().After(entry.expiresAt) {
		return nil, nil
	}
	session := entry.session
	return &session, nil
}

func (m *MemoryCache) SetSession(ctx context.Context, session *domain.PaymentSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.entries[session.SessionID]; ok && m.now().Before(current.expiresAt) {
		if session.Status == domain.SessionOpen && current.session.Status != domain.SessionOpen {
			return nil
		}
	}
	m.entries[session.SessionID] = memoryEntry{session: *session, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCache) Health(ctx context.Context) error {
	return nil
}

func (m *MemoryCache) Close() error {
	return nil
}

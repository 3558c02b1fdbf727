package idempotency

import (
	"context"
	"sync"
	"time"
)

// Record holds a stored response for a replayed request.
type Record struct {
	StatusCode int       `json:"statusCode"`
	Response   []byte    `json:"response"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Pending reports whether the record is a reservation for a request that
// has not been answered yet.
func (r *Record) Pending() bool {
	return r.StatusCode == 0
}

// Store abstracts idempotency persistence. Get returns nil for missing or
// expired keys. Reserve claims a free key until the given time and reports
// false when the key is already held or answered. Release drops a
// reservation that was never answered; answered keys are left alone.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Reserve(ctx context.Context, key string, until time.Time) (bool, error)
	Save(ctx context.Context, key string, record Record) error
	Release(ctx context.Context, key string) error
}

// MemoryStore is used with the memory backend and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
		now:  time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.RLock()
	rec, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if m.now().After(rec.ExpiresAt) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Reserve(_ context.Context, key string, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if rec, ok := m.data[key]; ok && !now.After(rec.ExpiresAt) {
		return false, nil
	}
	m.data[key] = Record{CreatedAt: now, ExpiresAt: until}
	return true, nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.data[key]; ok && rec.Pending() {
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryStore) Save(_ context.Context, key string, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = record
	return nil
}

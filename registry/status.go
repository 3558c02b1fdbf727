package registry

import (
	"context"
	"sort"
	"sync"

	"ckbridge/types"
)

// StatusStore keeps the reconciler's latest outcome per claimed hash. It
// lives next to the hash lists but never alters them.
type StatusStore interface {
	SetHashStatus(ctx context.Context, asset string, status types.HashStatus) error
	HashStatuses(ctx context.Context, asset string) ([]types.HashStatus, error)
}

type MemoryStatusStore struct {
	mu       sync.Mutex
	statuses map[string]map[string]types.HashStatus
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[string]map[string]types.HashStatus)}
}

func (m *MemoryStatusStore) SetHashStatus(_ context.Context, asset string, status types.HashStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses[asset] == nil {
		m.statuses[asset] = make(map[string]types.HashStatus)
	}
	m.statuses[asset][status.Hash] = status
	return nil
}

func (m *MemoryStatusStore) HashStatuses(_ context.Context, asset string) ([]types.HashStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.HashStatus, 0, len(m.statuses[asset]))
	for _, s := range m.statuses[asset] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

package registry

import (
	"context"
	"sync"

	"ckbridge/types"
)

// Store persists hash lists. Append must keep insertion order per asset.
type Store interface {
	Append(ctx context.Context, asset, hash string) error
	List(ctx context.Context, asset string) ([]string, error)
}

// HashRegistry is the append-only record of claimed transaction hashes per
// asset. Recording a hash asserts nothing about its validity.
type HashRegistry struct {
	store  Store
	assets map[string]struct{}
	onAdd  func(asset string)
}

func New(store Store, assets []string) *HashRegistry {
	known := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		known[a] = struct{}{}
	}
	return &HashRegistry{store: store, assets: known}
}

// OnRecord registers a hook run after every successful Record.
func (r *HashRegistry) OnRecord(f func(asset string)) {
	r.onAdd = f
}

func (r *HashRegistry) Assets() []string {
	out := make([]string, 0, len(r.assets))
	for a := range r.assets {
		out = append(out, a)
	}
	return out
}

// Record appends hash to the asset's list as given. The hash is not
// validated and duplicates are kept.
func (r *HashRegistry) Record(ctx context.Context, asset, hash string) error {
	if _, ok := r.assets[asset]; !ok {
		return types.Errorf(types.ErrCodeUnknownAsset, "unknown asset %q", asset)
	}
	if err := r.store.Append(ctx, asset, hash); err != nil {
		return types.NewError(types.ErrCodeStorage, "cannot record hash", err).WithAsset(asset)
	}
	if r.onAdd != nil {
		r.onAdd(asset)
	}
	return nil
}

// List returns a snapshot in insertion order.
func (r *HashRegistry) List(ctx context.Context, asset string) ([]string, error) {
	if _, ok := r.assets[asset]; !ok {
		return nil, types.Errorf(types.ErrCodeUnknownAsset, "unknown asset %q", asset)
	}
	hashes, err := r.store.List(ctx, asset)
	if err != nil {
		return nil, types.NewError(types.ErrCodeStorage, "cannot list hashes", err).WithAsset(asset)
	}
	if hashes == nil {
		hashes = []string{}
	}
	return hashes, nil
}

// MemoryStore keeps lists in process memory; contents are lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	hashes map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hashes: make(map[string][]string)}
}

func (m *MemoryStore) Append(_ context.Context, asset, hash string) error {
	m.mu.Lock()
	m.hashes[asset] = append(m.hashes[asset], hash)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context, asset string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.hashes[asset]))
	copy(out, m.hashes[asset])
	return out, nil
}

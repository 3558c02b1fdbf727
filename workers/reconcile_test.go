package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ckbridge/registry"
	"ckbridge/types"
)

type scriptedVerifier struct {
	mu      sync.Mutex
	results map[string]error
	calls   map[string]int
}

func (s *scriptedVerifier) Verify(_ context.Context, _ types.Asset, hash string) (*types.VerifiedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[hash]++
	if err := s.results[hash]; err != nil {
		return nil, err
	}
	return &types.VerifiedTransaction{TransactionHash: hash, Status: "1"}, nil
}

func (s *scriptedVerifier) count(hash string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[hash]
}

func newTestReconciler(t *testing.T, v Verifier, hashes ...string) (*Reconciler, *registry.MemoryStatusStore) {
	t.Helper()
	reg := registry.New(registry.NewMemoryStore(), []string{"ckSepoliaETH"})
	for _, h := range hashes {
		require.NoError(t, reg.Record(context.Background(), "ckSepoliaETH", h))
	}
	statuses := registry.NewMemoryStatusStore()
	assets := map[string]types.Asset{"ckSepoliaETH": {Symbol: "ckSepoliaETH", Kind: types.NativeWrappedAsset}}
	r := NewReconciler(reg, statuses, v, assets, NewMetrics(), zerolog.Nop())
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	return r, statuses
}

func resultsByHash(t *testing.T, s registry.StatusStore) map[string]types.HashStatus {
	t.Helper()
	got, err := s.HashStatuses(context.Background(), "ckSepoliaETH")
	require.NoError(t, err)
	out := make(map[string]types.HashStatus, len(got))
	for _, st := range got {
		out[st.Hash] = st
	}
	return out
}

// observedVerifier reports each outcome the way the receipt verifier does.
type observedVerifier struct {
	scriptedVerifier
	observe func(result string)
}

func (o *observedVerifier) Verify(ctx context.Context, asset types.Asset, hash string) (*types.VerifiedTransaction, error) {
	tx, err := o.scriptedVerifier.Verify(ctx, asset, hash)
	result := "verified"
	if err != nil {
		result = string(types.CodeOf(err))
	}
	o.observe(result)
	return tx, err
}

func TestVerificationSourcesAreCountedApart(t *testing.T) {
	metrics := NewMetrics()
	v := &observedVerifier{observe: metrics.VerificationObserver(SourceReconcile)}
	r, _ := newTestReconciler(t, v, "0x01", "0x02")
	r.metrics = metrics

	require.NoError(t, r.ReconcileAsset(context.Background(), "ckSepoliaETH"))
	metrics.VerificationObserver(SourceAPI)("verified")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `ckbridge_verifications_total{result="verified",source="api"} 1`)
	assert.Contains(t, body, `ckbridge_verifications_total{result="verified",source="reconcile"} 2`)
}

func TestReconcileRecordsOutcomes(t *testing.T) {
	v := &scriptedVerifier{results: map[string]error{
		"0xbad":  types.Errorf(types.ErrCodeTransactionFailed, "transaction reverted"),
		"0xlate": types.Errorf(types.ErrCodeReceiptNotFound, "receipt not found"),
	}}
	r, statuses := newTestReconciler(t, v, "0xok", "0xbad", "0xlate", "0xok")

	require.NoError(t, r.ReconcileAsset(context.Background(), "ckSepoliaETH"))

	got := resultsByHash(t, statuses)
	require.Len(t, got, 3)
	assert.Equal(t, "verified", got["0xok"].Result)
	assert.Equal(t, "TRANSACTION_FAILED", got["0xbad"].Result)
	assert.Equal(t, "RECEIPT_NOT_FOUND", got["0xlate"].Result)
	assert.Equal(t, int64(1700000000), got["0xok"].CheckedAt)
	assert.Contains(t, got["0xbad"].Message, "reverted")

	// duplicates in the registry are verified once per round
	assert.Equal(t, 1, v.count("0xok"))
}

func TestReconcileSkipsSettledHashes(t *testing.T) {
	v := &scriptedVerifier{results: map[string]error{
		"0xbad":  types.Errorf(types.ErrCodeDestinationMismatch, "wrong destination"),
		"0xlate": types.Errorf(types.ErrCodeInconsistentSources, "providers disagree"),
	}}
	r, statuses := newTestReconciler(t, v, "0xok", "0xbad", "0xlate")

	require.NoError(t, r.ReconcileAsset(context.Background(), "ckSepoliaETH"))
	v.mu.Lock()
	delete(v.results, "0xlate")
	v.mu.Unlock()
	require.NoError(t, r.ReconcileAsset(context.Background(), "ckSepoliaETH"))

	assert.Equal(t, 1, v.count("0xok"))
	assert.Equal(t, 1, v.count("0xbad"))
	assert.Equal(t, 2, v.count("0xlate"))
	assert.Equal(t, "verified", resultsByHash(t, statuses)["0xlate"].Result)
}

func TestReconcileUnknownErrorCountsAsTransport(t *testing.T) {
	v := &scriptedVerifier{results: map[string]error{"0x01": context.DeadlineExceeded}}
	r, statuses := newTestReconciler(t, v, "0x01")

	require.NoError(t, r.ReconcileAsset(context.Background(), "ckSepoliaETH"))
	assert.Equal(t, "TRANSPORT_FAILURE", resultsByHash(t, statuses)["0x01"].Result)
}

func TestReconcileStopsOnCancel(t *testing.T) {
	v := &scriptedVerifier{}
	r, _ := newTestReconciler(t, v, "0x01", "0x02")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.ReconcileAsset(ctx, "ckSepoliaETH"), context.Canceled)
	assert.Equal(t, 0, v.count("0x01"))
}

func TestWorkerExitsWhenContextDone(t *testing.T) {
	v := &scriptedVerifier{}
	r, statuses := newTestReconciler(t, v, "0x01")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Worker_reconcileHashes(ctx, r, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := statuses.HashStatuses(context.Background(), "ckSepoliaETH")
		return err == nil && len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}

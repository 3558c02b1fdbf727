package idempotency

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)

	record := Record{
		StatusCode: 201,
		Response:   []byte("ok"),
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	require.NoError(t, store.Save(ctx, "abc", record))

	got, _ := store.Get(ctx, "abc")
	require.NotNil(t, got)
	assert.Equal(t, "ok", string(got.Response))
}

func TestMemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", Record{StatusCode: 200, ExpiresAt: now.Add(time.Second)}))
	got, _ := store.Get(ctx, "k")
	assert.NotNil(t, got)

	now = now.Add(2 * time.Second)
	got, _ = store.Get(ctx, "k")
	assert.Nil(t, got)
}

func TestMiddlewareReplays(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, calls)
	})
	m := &Middleware{
		Store:  NewMemoryStore(),
		Window: time.Minute,
		Scope:  func(r *http.Request) string { return r.Header.Get("X-Caller-Principal") },
		Log:    zerolog.Nop(),
	}
	h := m.Handler(next)

	do := func(key, caller string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/withdraw/ckSepoliaUSDC", strings.NewReader(`{}`))
		if key != "" {
			req.Header.Set(HeaderKey, key)
		}
		req.Header.Set("X-Caller-Principal", caller)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do("k1", "2vxsx-fae")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.JSONEq(t, `{"call":1}`, first.Body.String())

	replay := do("k1", "2vxsx-fae")
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.JSONEq(t, `{"call":1}`, replay.Body.String())
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	other := do("k1", "aaaaa-aa")
	assert.JSONEq(t, `{"call":2}`, other.Body.String(), "keys are scoped per caller")

	do("", "2vxsx-fae")
	do("", "2vxsx-fae")
	assert.Equal(t, 4, calls, "requests without a key are never replayed")
}

func TestMiddlewareSkipsServerErrors(t *testing.T) {
	calls := 0
	h := (&Middleware{Store: NewMemoryStore(), Window: time.Minute, Log: zerolog.Nop()}).Handler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadGateway)
		}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/transfer/ckSepoliaETH", nil)
		req.Header.Set(HeaderKey, "k")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestMemoryStoreReservation(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k", now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = store.Reserve(ctx, "k", now.Add(time.Second))
	assert.False(t, ok)
	got, _ := store.Get(ctx, "k")
	require.NotNil(t, got)
	assert.True(t, got.Pending())

	require.NoError(t, store.Release(ctx, "k"))
	got, _ = store.Get(ctx, "k")
	assert.Nil(t, got)

	ok, _ = store.Reserve(ctx, "k", now.Add(time.Second))
	require.True(t, ok)
	require.NoError(t, store.Save(ctx, "k", Record{StatusCode: 200, ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Release(ctx, "k"))
	got, _ = store.Get(ctx, "k")
	require.NotNil(t, got)
	assert.Equal(t, 200, got.StatusCode)

	// a lapsed reservation frees the key
	ok, _ = store.Reserve(ctx, "lapsed", now.Add(time.Second))
	require.True(t, ok)
	now = now.Add(2 * time.Second)
	ok, _ = store.Reserve(ctx, "lapsed", now.Add(time.Second))
	assert.True(t, ok)
}

func TestMiddlewareRunsConcurrentDuplicatesOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"blockIndex":"31"}`))
	})
	h := (&Middleware{Store: NewMemoryStore(), Window: time.Minute, Log: zerolog.Nop()}).Handler(next)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/withdraw/ckSepoliaUSDC", strings.NewReader(`{}`))
		req.Header.Set(HeaderKey, "same")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() { firstDone <- do() }()
	<-entered

	busy := do()
	assert.Equal(t, http.StatusConflict, busy.Code)
	assert.Equal(t, "1", busy.Header().Get("Retry-After"))

	close(release)
	first := <-firstDone
	require.Equal(t, http.StatusOK, first.Code)

	replay := do()
	assert.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), replay.Body.String())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestMiddlewareReleasesKeyAfterServerError(t *testing.T) {
	store := NewMemoryStore()
	h := (&Middleware{Store: store, Window: time.Minute, Log: zerolog.Nop()}).Handler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

	req := httptest.NewRequest(http.MethodPost, "/withdraw/ckSepoliaUSDC", nil)
	req.Header.Set(HeaderKey, "k")
	h.ServeHTTP(httptest.NewRecorder(), req)

	got, err := store.Get(context.Background(), "|POST /withdraw/ckSepoliaUSDC|k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

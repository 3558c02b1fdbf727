package idempotency

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const HeaderKey = "X-Idempotency-Key"

// DefaultWindow is how long an answered key is replayed.
const DefaultWindow = 24 * time.Hour

// DefaultLease bounds how long an unanswered key stays reserved, so a
// crashed request does not hold the key for the whole window.
const DefaultLease = 2 * time.Minute

// Middleware replays the stored response when a request carries an
// X-Idempotency-Key that was already answered. Keys are scoped by caller
// and path. Requests without the header pass through untouched. A second
// request arriving while the first is still running gets 409.
type Middleware struct {
	Store  Store
	Window time.Duration
	// Lease is how long a key stays reserved while its request runs.
	Lease time.Duration
	// Scope returns the caller part of the key, usually the principal.
	Scope func(r *http.Request) string
	Log   zerolog.Logger
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderKey))
		if key == "" || m.Store == nil {
			next.ServeHTTP(w, r)
			return
		}
		scope := ""
		if m.Scope != nil {
			scope = m.Scope(r)
		}
		fullKey := scope + "|" + r.Method + " " + r.URL.Path + "|" + key
		ctx := r.Context()
		// bookkeeping after the answer must survive a client hang-up
		bg := context.WithoutCancel(ctx)

		lease := m.Lease
		if lease <= 0 {
			lease = DefaultLease
		}
		reserved, err := m.Store.Reserve(ctx, fullKey, time.Now().Add(lease))
		if err != nil {
			m.Log.Warn().Err(err).Msg("idempotency reservation failed")
			next.ServeHTTP(w, r)
			return
		}
		if !reserved {
			existing, err := m.Store.Get(ctx, fullKey)
			if err != nil {
				m.Log.Warn().Err(err).Msg("idempotency lookup failed")
			}
			if existing != nil && !existing.Pending() {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.StatusCode)
				_, _ = w.Write(existing.Response)
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"status":"error","message":"a request with this idempotency key is in progress"}`))
			return
		}

		rec := &recorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		// only settled answers are remembered; a transport failure may be retried
		if rec.status >= 500 || rec.status == 0 {
			if err := m.Store.Release(bg, fullKey); err != nil {
				m.Log.Warn().Err(err).Msg("idempotency release failed")
			}
			return
		}
		now := time.Now()
		record := Record{
			StatusCode: rec.status,
			Response:   rec.body.Bytes(),
			CreatedAt:  now,
			ExpiresAt:  now.Add(m.Window),
		}
		if err := m.Store.Save(bg, fullKey, record); err != nil {
			m.Log.Warn().Err(err).Msg("idempotency save failed")
		}
	})
}

package hmacauth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ckbridge/identity"
)

const (
	HeaderSignature = "X-Request-Signature"
	HeaderTimestamp = "X-Request-Timestamp"
	HeaderPrincipal = "X-Caller-Principal"
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrMissingTimestamp = errors.New("missing request timestamp")
	ErrMissingPrincipal = errors.New("missing caller principal")
	ErrStaleTimestamp   = errors.New("stale request timestamp")
	ErrInvalidSignature = errors.New("invalid request signature")
)

type callerKey struct{}

// Verifier authenticates the caller principal carried by a request. The
// signature is HMAC-SHA256 over timestamp, principal and body.
type Verifier struct {
	Secret  string
	MaxSkew time.Duration
	Now     func() time.Time
}

// Middleware rejects badly signed requests. With no secret configured the
// request proceeds without a caller identity.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v.Secret == "" {
			next.ServeHTTP(w, r)
			return
		}
		caller, err := v.verify(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (v *Verifier) verify(r *http.Request) (identity.Principal, error) {
	sig := r.Header.Get(HeaderSignature)
	if sig == "" {
		return nil, ErrMissingSignature
	}
	tsHeader := r.Header.Get(HeaderTimestamp)
	if tsHeader == "" {
		return nil, ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return nil, ErrMissingTimestamp
	}
	principalText := r.Header.Get(HeaderPrincipal)
	if principalText == "" {
		return nil, ErrMissingPrincipal
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	reqTime := time.Unix(ts, 0)
	if now.Sub(reqTime) > v.MaxSkew || reqTime.Sub(now) > v.MaxSkew {
		return nil, ErrStaleTimestamp
	}

	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	expected := Sign(v.Secret, tsHeader, principalText, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return nil, ErrInvalidSignature
	}

	caller, err := identity.ParsePrincipal(principalText)
	if err != nil {
		return nil, err
	}
	return caller, nil
}

// Sign computes the signature a client must send.
func Sign(secret, timestamp, principal string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(principal))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func WithCaller(ctx context.Context, caller identity.Principal) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(callerKey{}).(identity.Principal)
	return p, ok && len(p) > 0
}

package workers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"

	"ckbridge/hmacauth"
	"ckbridge/idempotency"
	"ckbridge/workers/handlers"
)

const shutdownTimeout = 5 * time.Second

type HTTPOptions struct {
	Port   int
	UseSSL bool
	// PEM files used when UseSSL is set
	CertFile string
	KeyFile  string
}

// NewRouter wires every bridge route. Mutating routes sit behind request
// signing and idempotency keys; the rest is public.
func NewRouter(api *handlers.API, auth *hmacauth.Verifier, idem *idempotency.Middleware, metrics *Metrics, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(log))

	r.Options("/*", CORSHeaders)

	r.Get("/state", handlers.State)
	r.Get("/health", api.HealthCheck)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Get("/identity", api.ListIdentities)
	r.Get("/identity/{name}", api.GetIdentity)
	r.Get("/deposit-address", api.DepositAddress)

	r.Get("/balance/{asset}", api.ServiceBalance)
	r.Get("/balance/{asset}/{principal}", api.Balance)

	r.Get("/verify/{hash}", api.Verify)
	r.Get("/receipt/{hash}", api.Receipt)

	r.Get("/hashes/{asset}", api.ListHashes)
	r.Post("/hashes/{asset}", api.RecordHash)
	r.Get("/hashes/{asset}/status", api.HashStatuses)

	r.Get("/stats/{status}", api.GetOperations)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		if idem != nil {
			r.Use(idem.Handler)
		}
		r.Post("/transfer/{asset}", api.Transfer)
		r.Post("/approve/{asset}", api.Approve)
		r.Post("/withdraw/{asset}", api.Withdraw)
	})

	return r
}

// CallerScope keys idempotency records by the authenticated principal.
func CallerScope(r *http.Request) string {
	if caller, ok := hmacauth.CallerFromContext(r.Context()); ok {
		return caller.String()
	}
	return ""
}

// Worker_HTTP serves handler until ctx is cancelled, then shuts the server
// down gracefully.
func Worker_HTTP(ctx context.Context, opts HTTPOptions, handler http.Handler, log zerolog.Logger) error {
	log.Info().Int("port", opts.Port).Bool("ssl", opts.UseSSL).Msg("starting HTTP service")

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if opts.UseSSL {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return fmt.Errorf("load TLS key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	errc := make(chan error, 1)
	go func() {
		var err error
		if opts.UseSSL {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	log.Info().Msg("HTTP service started")

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("error listening: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("HTTP service stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP service shutdown: %w", err)
	}
	log.Info().Msg("HTTP service shutdown normal")
	return nil
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Origin, X-Requested-With, "+
		hmacauth.HeaderSignature+", "+hmacauth.HeaderTimestamp+", "+hmacauth.HeaderPrincipal+", "+idempotency.HeaderKey)
}

func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

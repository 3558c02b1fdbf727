package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 5 * time.Second

func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := &APIHealthResponse{Status: "ok", Checks: make(map[string]string, len(a.Health))}
	code := http.StatusOK
	for name, check := range a.Health {
		if err := check(ctx); err != nil {
			a.Log.Warn().Err(err).Str("check", name).Msg("health check failed")
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	responseJSON(w, resp, code)
}

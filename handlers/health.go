package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mbwilding/microkit/app"
	"github.com/mbwilding/microkit/utils"
	"go.uber.org/zap"
)

// readinessTimeout bounds the JWKS fetch a readiness check may trigger
const readinessTimeout = 2 * time.Second

// HealthResponse represents the health and readiness response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
}

// HealthCheck reports liveness. It always returns 200 while the process serves.
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// coldFetchInterval is the minimum gap between JWKS fetches started by
// readiness checks while the key cache is empty.
const coldFetchInterval = 10 * time.Second

// fetchLimiter allows one attempt per interval.
type fetchLimiter struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
}

func (l *fetchLimiter) allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		return false
	}
	l.last = now
	return true
}

// ReadinessCheck reports whether the service can authenticate requests: the
// key cache must hold a key set. While the cache is cold, at most one check
// per coldFetchInterval tries to fill it; the others report "cold".
// Register the returned handler once per readiness path set so they share
// the limit.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	limiter := &fetchLimiter{interval: coldFetchInterval}

	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    map[string]string{},
		}

		if deps.Auth == nil {
			response.Checks["auth"] = "disabled"
		} else {
			keys := deps.Auth.Keys()
			attempted := false
			if keys.Snapshot() == nil && limiter.allow(time.Now()) {
				attempted = true
				ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
				err := keys.Refresh(ctx)
				cancel()
				if err != nil {
					deps.Logger.Warn("readiness JWKS fetch failed", zap.Error(err))
				}
			}

			stats := keys.Stats()
			switch {
			case stats.Cached:
				response.Checks["jwks"] = "healthy"
			case attempted:
				response.Status = "not_ready"
				response.Checks["jwks"] = "unavailable"
			default:
				response.Status = "not_ready"
				response.Checks["jwks"] = "cold"
			}
			response.Details = map[string]any{"jwks": stats}
		}

		status := http.StatusOK
		if response.Status != "ready" {
			status = http.StatusServiceUnavailable
		}
		_ = utils.WriteJSON(w, status, response)
	}
}

// StatusHandler returns application status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, map[string]any{
			"service":      deps.Config.ServiceName,
			"description":  deps.Config.ServiceDesc,
			"environment":  deps.Config.Environment,
			"auth_enabled": deps.Auth != nil,
		})
	}
}

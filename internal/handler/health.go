package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency whose reachability decides liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles GET /health
// Reports 503 when the record store does not answer within two seconds.
func HealthCheck(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

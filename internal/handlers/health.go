package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kedevs/blogapi/internal/logger"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// Healthz reports whether the database is reachable.
func Healthz(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.FromContext(r.Context()).WarnContext(r.Context(), "health check failed", slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

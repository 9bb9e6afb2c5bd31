package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler responds with service health information. When DB is set the
// database must answer a ping for the service to report healthy.
type HealthHandler struct {
	DB Pinger
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	payload := map[string]string{
		"status": "ok",
	}

	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			payload["status"] = "unavailable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

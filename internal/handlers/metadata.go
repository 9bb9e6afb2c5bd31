package handlers

import (
	"net/http"

	"github.com/moolinks/backend/internal/linkurl"
	"github.com/moolinks/backend/internal/logging"
	"github.com/moolinks/backend/internal/metadata"
)

// MetadataHandler serves link previews.
type MetadataHandler struct {
	Provider MetadataProvider
	Limiter  RateLimiter
}

// Get handles GET /api/metadata?url=. Any valid http(s) URL yields 200 with
// the best available title and thumbnail.
func (h MetadataHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !allowRequest(h.Limiter, r, scopeMetadata) {
		logging.FromContext(ctx).Warn("metadata rate limit exceeded", "ip", clientIP(r))
		respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
		return
	}

	raw := r.URL.Query().Get("url")
	if raw == "" || !linkurl.IsHTTPURL(raw) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid URL")
		return
	}

	respondJSON(ctx, w, http.StatusOK, metadata.Resolve(ctx, h.Provider, linkurl.Canonicalize(raw)))
}

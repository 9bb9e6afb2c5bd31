package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/moolinks/backend/internal/auth"
	"github.com/moolinks/backend/internal/logging"
)

// Authenticator resolves an access token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// Authenticate rejects requests without a valid access token with 401 before
// the next handler runs. The token is read from the Authorization header or
// the named session cookie. Accepted requests carry an auth.Identity.
func Authenticate(authenticator Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := auth.TokenFromRequest(r, cookieName)
			if authenticator == nil || token == "" {
				unauthorized(w)
				return
			}

			userID, err := authenticator.Authenticate(ctx, token)
			if err != nil || userID == "" {
				logging.FromContext(ctx).Info("request rejected", "reason", "invalid session", "error", err)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(ctx, auth.Identity{UserID: userID})))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}

package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/amaumene/stremarr/internal/session"
	"github.com/sirupsen/logrus"
)

// SessionHeader carries the session token on authenticated requests
const SessionHeader = "X-Session-Token"

type contextKey struct{}

// WithUserID returns a context carrying the authenticated user id
func WithUserID(ctx context.Context, userID uint64) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID returns the authenticated user id stored by RequireSession
func UserID(ctx context.Context) (uint64, bool) {
	userID, ok := ctx.Value(contextKey{}).(uint64)
	return userID, ok
}

// RequireSession rejects requests without a valid session token
func RequireSession(next http.Handler, store *session.Store, logger *logrus.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := store.Lookup(r.Header.Get(SessionHeader))
		if !ok {
			logger.WithFields(logrus.Fields{
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			}).Debug("Rejected request without valid session")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid or missing session token"})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

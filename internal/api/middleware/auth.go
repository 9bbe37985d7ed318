package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agora-protocol/relay/internal/metrics"
	"github.com/agora-protocol/relay/internal/models"
	"github.com/agora-protocol/relay/internal/relay"
)

type contextKey string

const SessionContextKey contextKey = "session"

// Authenticator resolves bearer tokens to sessions.
type Authenticator interface {
	Authenticate(token string) (*models.Session, error)
}

// AuthMiddleware handles bearer token checks for authenticated endpoints.
type AuthMiddleware struct {
	sessions Authenticator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(sessions Authenticator) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// RequireAuth rejects requests without a live session token. Every accepted
// request refreshes the caller's presence.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			metrics.AuthFailures.WithLabelValues(string(relay.KindInvalidToken)).Inc()
			JSONError(w, http.StatusUnauthorized, string(relay.KindInvalidToken), "missing bearer token")
			return
		}

		session, err := m.sessions.Authenticate(token)
		if err != nil {
			kind := relay.KindOf(err)
			metrics.AuthFailures.WithLabelValues(string(kind)).Inc()
			JSONError(w, http.StatusUnauthorized, string(kind), err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// JSONError writes an error body carrying the relay error kind.
func JSONError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "kind": kind})
}

// GetSessionFromContext retrieves the authenticated session from the request context.
func GetSessionFromContext(ctx context.Context) *models.Session {
	session, ok := ctx.Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}

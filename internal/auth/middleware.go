package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Middleware provides HTTP authentication middleware around a TokenManager.
type Middleware struct {
	tokens *TokenManager
	logger zerolog.Logger
}

// NewMiddleware creates authentication middleware.
func NewMiddleware(tokens *TokenManager, logger zerolog.Logger) *Middleware {
	return &Middleware{
		tokens: tokens,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Authenticate resolves the caller identity when a bearer token is present.
// Requests without an Authorization header pass through anonymously; a
// present but invalid token is rejected with 401 rather than downgraded,
// so a client with an expired token learns about it instead of silently
// losing access to its private files.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := m.tokens.Validate(token)
		if err != nil {
			m.logger.Debug().Err(err).Msg("token rejected")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		identity := &Identity{UserID: userID, Username: claims.Username}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireAuth rejects anonymous requests with 401.
// Must be mounted after Authenticate.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pysugar/roleplay-nexus/internal/db/models"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

type contextKey string

const userKey contextKey = "user"

// Authenticator resolves a raw Authorization value to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.User, error)
}

// RequireUser rejects requests without a valid session token. The token is
// read from the Authorization header, or from the auth query parameter.
func RequireUser(auth Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				util.WriteError(w, http.StatusUnauthorized, "Unauthenticated")
				return
			}
			user, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				logging.FromContext(r.Context()).Debug("rejected session token", "error", err)
				util.WriteError(w, http.StatusUnauthorized, "Unauthenticated")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// BearerToken returns the raw token carried by r, without the Bearer prefix.
func BearerToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		return h
	}
	return strings.TrimSpace(strings.TrimPrefix(r.URL.Query().Get("auth"), "Bearer "))
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFrom returns the authenticated user, or nil outside RequireUser.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

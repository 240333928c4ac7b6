package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"shared-transactions/internal/auth"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// GetUserID returns the authenticated caller, or uuid.Nil.
func GetUserID(ctx context.Context) uuid.UUID {
	userID, _ := ctx.Value(UserIDKey).(uuid.UUID)
	return userID
}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// RequireAuth validates the Bearer token and stores the caller id in the
// request context. onError writes the rejection.
func RequireAuth(jwtManager *auth.JWTManager, onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				onError(w, auth.ErrMissingToken)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				onError(w, auth.ErrInvalidToken)
				return
			}

			userID, err := jwtManager.Validate(parts[1])
			if err != nil {
				onError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

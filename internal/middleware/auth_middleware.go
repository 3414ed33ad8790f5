package middleware

import (
	"context"
	"net/http"
	"strings"

	"venture-plan-server/pkg/jwt"
	"venture-plan-server/pkg/response"
)

type contextKey string

const (
	UserIDKey      contextKey = "userID"
	requestUserKey contextKey = "requestUser"
)

// requestUser lets outer middleware see the user resolved further in.
type requestUser struct {
	id string
}

func AuthMiddleware(jwtSecret, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateTokenWithIssuer(parts[1], jwtSecret, issuer)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

// WithUserID attaches an authenticated user to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	if holder, ok := ctx.Value(requestUserKey).(*requestUser); ok {
		holder.id = userID
	}
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

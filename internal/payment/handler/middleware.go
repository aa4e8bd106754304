package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/tair/course-payments/pkg/auth"
	"github.com/tair/course-payments/pkg/logger"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UsernameKey contextKey = "username"
	RoleKey     contextKey = "role"
)

// WebhookTokenHeader carries the shared secret on gateway notifications
const WebhookTokenHeader = "X-Webhook-Token"

// AuthMiddleware validates the bearer session token
func AuthMiddleware(validator *auth.Validator) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Authorization header required"})
				return
			}

			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Invalid authorization header format"})
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				logger.Warn(r.Context()).Err(err).Msg("Invalid token")
				respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, UsernameKey, claims.Username)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		}
	}
}

// AdminMiddleware checks if user has admin role
func AdminMiddleware(validator *auth.Validator) func(http.HandlerFunc) http.HandlerFunc {
	authenticate := AuthMiddleware(validator)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return authenticate(func(w http.ResponseWriter, r *http.Request) {
			if !isAdmin(r.Context()) {
				respondJSON(w, http.StatusForbidden, Response{Success: false, Error: "Admin access required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WebhookMiddleware checks the shared webhook token.
// An empty configured token rejects every notification.
func WebhookMiddleware(token string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(WebhookTokenHeader)
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logger.Warn(r.Context()).Str("remote_addr", r.RemoteAddr).Msg("Webhook with invalid token rejected")
				respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Invalid webhook token"})
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

func userIDFrom(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(UserIDKey).(uint)
	return id, ok && id != 0
}

func isAdmin(ctx context.Context) bool {
	role, ok := ctx.Value(RoleKey).(string)
	return ok && role == auth.RoleAdmin
}

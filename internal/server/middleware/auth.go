// Package middleware содержит HTTP middleware сервера: аутентификацию,
// логирование запросов, ограничение частоты и восстановление после паник.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/finkeeper/internal/server/handlers"
)

// Auth создает middleware проверки JWT access token.
// Claims токена кладутся в контекст запроса: дальше по цепочке
// handlers.GetUserID и handlers.GetUsername достают их без повторного
// парсинга токена.
func Auth(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "missing authorization header",
					slog.String("path", r.URL.Path))
				unauthorized(w, "missing token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.WarnContext(r.Context(), "malformed authorization header",
					slog.String("path", r.URL.Path))
				unauthorized(w, "invalid token format")
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, parts[1])
			if err != nil {
				logger.WarnContext(r.Context(), "invalid access token",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), handlers.UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, handlers.UsernameKey, claims.Username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// unauthorized отвечает 401 в том же JSON-формате, что и handlers
func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}

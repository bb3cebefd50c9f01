package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type ctxKey string

// CtxUserID — ключ контекста с идентификатором пользователя консоли.
const CtxUserID ctxKey = "user_id"

// TokenValidator — контракт проверки токена доступа.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*Claims, error)
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CtxUserID, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

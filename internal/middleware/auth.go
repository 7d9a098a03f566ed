package middleware

import (
	"crypto/subtle"
	"net/http"
)

const apiKeyHeader = "X-Api-Key"

// AuthMiddleware закрывает операторские эндпоинты статическим API-ключом.
type AuthMiddleware struct {
	apiKey []byte
}

// NewAuthMiddleware создаёт middleware с указанным ключом. Пустой ключ
// означает, что операторские эндпоинты полностью закрыты.
func NewAuthMiddleware(apiKey string) *AuthMiddleware {
	return &AuthMiddleware{apiKey: []byte(apiKey)}
}

// Middleware проверяет заголовок X-Api-Key. Сравнение выполняется за
// постоянное время.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := []byte(r.Header.Get(apiKeyHeader))

		if len(a.apiKey) == 0 || subtle.ConstantTimeCompare(key, a.apiKey) != 1 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

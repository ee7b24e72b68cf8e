package middleware

import (
	"net/http"
	"strings"

	"p2pdesk/pkg/crypto"
)

// Auth - middleware операторской аутентификации
//
// Каждый запрос к API обязан нести заголовок Authorization: Bearer <token>.
// Токен сверяется с bcrypt-хэшем из конфигурации (API_TOKEN_HASH), сам токен
// на сервере не хранится. Сравнение через bcrypt устойчиво к timing-атакам.
//
// Ответы:
// - 401 Unauthorized: заголовок отсутствует, не Bearer или токен не совпал
func Auth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "Missing Authorization header")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "Authorization header must be Bearer token")
				return
			}

			if !crypto.CheckTokenMatch(token, tokenHash) {
				unauthorized(w, "Invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

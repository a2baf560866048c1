package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"oms/pkg/crypto"
)

// Auth - middleware для аутентификации запросов по статическому bearer токену.
//
// Токен задается при старте сервера (переменная окружения API_TOKEN).
// Пустой токен означает открытый доступ: удобно для локального
// развертывания, недопустимо в production.
//
// Использование:
//
//	api := router.PathPrefix("/api/v1").Subrouter()
//	api.Use(middleware.Auth(cfg.APIToken))
func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := bearerToken(r)
			if provided == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Constant-time сравнение для предотвращения timing attacks
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization или из
// query параметра token (для WebSocket клиентов, которым недоступны
// произвольные заголовки)
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Учетные данные для защиты debug endpoints.
// DEBUG_PASSWORD_HASH хранит bcrypt-хеш и имеет приоритет над
// DEBUG_PASSWORD с открытым паролем.
var (
	debugUsername     = os.Getenv("DEBUG_USERNAME")
	debugPassword     = os.Getenv("DEBUG_PASSWORD")
	debugPasswordHash = os.Getenv("DEBUG_PASSWORD_HASH")
)

// DebugAuth - middleware для защиты debug/pprof endpoints.
//
// Использует HTTP Basic Authentication. Если учетные данные не
// установлены, доступ открыт только в development.
func DebugAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if debugUsername == "" || (debugPassword == "" && debugPasswordHash == "") {
			if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD_HASH.", http.StatusForbidden)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Constant-time сравнение для предотвращения timing attacks
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(debugUsername)) == 1
		var passMatch bool
		if debugPasswordHash != "" {
			passMatch = crypto.CheckPasswordMatch(pass, debugPasswordHash)
		} else {
			passMatch = subtle.ConstantTimeCompare([]byte(pass), []byte(debugPassword)) == 1
		}
		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/render"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/logging"
)

// APIKeyAuth checks the X-API-Key header against the configured keys when
// cfg.RequireAPIKey is set. With no keys configured every request is rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			switch {
			case key == "":
				deny(w, r, http.StatusUnauthorized, "missing API key", "AU001")
			case !isValidAPIKey(key, cfg.APIKeys):
				deny(w, r, http.StatusForbidden, "invalid API key", "AU002")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	logging.FromContext(r.Context()).Warn("auth: "+message,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", r.RemoteAddr,
	)
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message, "message": message, "code": code})
}

// isValidAPIKey compares against every key in constant time, so timing does
// not reveal which key (if any) matched.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, k := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return valid == 1
}

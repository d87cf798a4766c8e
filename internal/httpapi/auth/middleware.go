// Package auth provides the bearer-token HTTP middleware gating the task
// queue and chat endpoints. It delegates all token/key validation to
// internal/auth.Service, wrapped in the net/http middleware shape chi
// expects.
package auth

import (
	"net/http"
	"strings"

	"github.com/haasonsaas/wizardd/internal/auth"
)

// Middleware builds a chi-compatible net/http middleware enforcing
// service's JWT/API-key checks. A nil or disabled service is a no-op,
// matching internal/auth's own Enabled()-gated behavior so a backend run
// without auth configured keeps working.
func Middleware(service *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil || !service.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			if token := bearerToken(r); token != "" {
				user, err := service.ValidateJWT(token)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
					return
				}
			}

			if apiKey := apiKeyHeader(r); apiKey != "" {
				user, err := service.ValidateAPIKey(apiKey)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
					return
				}
			}

			w.Header().Set("WWW-Authenticate", `Bearer realm="wizardd"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

func bearerToken(r *http.Request) string {
	value := r.Header.Get("Authorization")
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("Bearer "):])
}

func apiKeyHeader(r *http.Request) string {
	for _, key := range []string{"X-API-Key", "Api-Key"} {
		if v := strings.TrimSpace(r.Header.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

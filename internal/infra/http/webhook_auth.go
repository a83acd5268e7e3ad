package http

import (
	"crypto/subtle"
	"net/http"
)

// WebhookSecretHeader содержит общий секрет платёжного провайдера.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecretMiddleware сверяет секрет из заголовка или параметра token.
// Пустой secret отключает проверку.
func WebhookSecretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(WebhookSecretHeader)
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid webhook secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package httputil

import (
	"crypto/subtle"
	"net/http"
)

// WebhookTokenHeader carries the shared webhook token.
const WebhookTokenHeader = "X-Webhook-Token"

// WebhookTokenMiddleware rejects requests that do not carry the shared
// token in the X-Webhook-Token header or the "token" query parameter.
// An empty token disables the check.
func WebhookTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(WebhookTokenHeader)
			if got == "" {
				got = r.URL.Query().Get("token")
			}

			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				Error(w, http.StatusUnauthorized, "invalid webhook token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

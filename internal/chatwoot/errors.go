package chatwoot

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from Chatwoot.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Chatwoot %s %s → %d", e.Method, e.Path, e.StatusCode)
}

// IsRetryable reports whether repeating the request may succeed.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

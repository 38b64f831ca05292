package client

import (
	"fmt"
	"net/http"
	"time"
)

// StatusError reports a non-2xx response from the records API.
type StatusError struct {
	StatusCode int
	Message    string
	// RetryAfter is the server supplied delay for 429 and 503 responses.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if e.Message == "" {
		return fmt.Sprintf("records api: %d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("records api: %d %s: %s", e.StatusCode, text, e.Message)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

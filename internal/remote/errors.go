package remote

import (
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response from the leaderboard service.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports a missing document or collection.
func (e *HTTPError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsRetryable returns true for rate limits (429) and server errors (5xx).
// The client itself never retries; callers decide.
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AuthError indicates a missing or rejected API key.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote: authentication failed (HTTP %d): %s", e.StatusCode, e.Message)
}

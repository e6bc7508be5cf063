package spotify

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotAuthenticated indicates no stored token. Callers should send the
// user through the authorize flow.
var ErrNotAuthenticated = errors.New("spotify: not authenticated")

// RateLimitedError is returned when the API throttles a request past
// the single advised-delay retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("spotify: rate limited, retry after %s", e.RetryAfter)
}

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("spotify: unexpected status %d: %s", e.Code, e.Body)
}

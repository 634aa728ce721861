package xclient

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrUnauthorized means the platform rejected the access token. The token
// lifecycle manager branches on this to run its one refresh-and-retry.
var ErrUnauthorized = errors.New("x api: unauthorized")

// RateLimitError carries the platform's reset hint. Callers may use it to
// abandon the rest of the current tick's work; no token refresh applies.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return "x api: rate limited"
	}
	return fmt.Sprintf("x api: rate limited until %s", e.Reset.UTC().Format(time.RFC3339))
}

// statusError maps a non-2xx response to the error taxonomy.
func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		e := &RateLimitError{}
		if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
			if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
				e.Reset = time.Unix(secs, 0)
			}
		}
		return e
	default:
		return fmt.Errorf("x api status %d", resp.StatusCode)
	}
}

package remote

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitError reports a 429 from the remote together with how long the
// caller should wait before retrying.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return "rate limit"
	}
	if e.Message != "" {
		return e.Message
	}
	return "rate limit exceeded"
}

// retryAfterFromHeader parses a Retry-After header, in seconds or HTTP
// date form. Returns zero when absent or unparseable.
func retryAfterFromHeader(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

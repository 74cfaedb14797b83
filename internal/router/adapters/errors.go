package adapters

import (
	"fmt"
	"strings"
)

// FailureKind classifies an unsuccessful upstream attempt.
type FailureKind int

const (
	FailureTransport FailureKind = iota // no usable HTTP response
	FailureStatus                       // non-2xx HTTP response
)

// UpstreamError describes a failed attempt. Retryable failures advance the
// fallback chain; the rest terminate the turn.
type UpstreamError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Kind == FailureTransport {
		return fmt.Sprintf("upstream transport error: %v", e.Err)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

var invalidModelMarkers = []string{"not a valid model id", "invalid model id"}

// IsRetryableStatus reports whether a non-2xx status should advance to the
// next candidate. 400s naming an unknown model id are treated as stale
// mappings rather than bad requests.
func IsRetryableStatus(status int, message string) bool {
	if status == 429 || status >= 500 {
		return true
	}
	if status == 400 {
		lower := strings.ToLower(message)
		for _, m := range invalidModelMarkers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ouldcheikh/labconsole/internal/domain"
)

// Error classifies upstream call failures. Sentinel carries the matching
// domain error so callers can branch with errors.Is; Transient marks
// failures worth retrying from the operator's side.
type Error struct {
	StatusCode int
	Message    string
	Transient  bool
	Sentinel   error
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "upstream error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}

	wrapped := make([]error, 0, 2)
	if e.Sentinel != nil {
		wrapped = append(wrapped, e.Sentinel)
	}
	if e.Cause != nil {
		wrapped = append(wrapped, e.Cause)
	}
	return wrapped
}

// ServerMessage extracts the upstream's verbatim error text, if any.
func ServerMessage(err error) string {
	var upErr *Error
	if errors.As(err, &upErr) {
		return strings.TrimSpace(upErr.Message)
	}
	return ""
}

// IsTransient reports whether an error should be retried by the operator.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrUnreachable) {
		return true
	}

	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == 429 || (statusCode >= 500 && statusCode <= 599)
}

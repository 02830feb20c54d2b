package core

import (
	"context"
	"errors"
	"fmt"
)

// ClientError is a 4xx from the processor or the WHIP endpoint.
// Never retried.
type ClientError struct {
	Status int
	Body   string
}

func (e *ClientError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("client error: status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("client error: status %d", e.Status)
}

// TransientError covers non-2xx responses outside [400,500), timeouts and
// transport failures. Eligible for retry under the relevant policy.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient error: %v", e.Err)
	}
	return fmt.Sprintf("transient error: status %d", e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RetryExhaustedError is surfaced once a retry budget runs out.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// DeviceUnavailableError reports a denied or absent capture device. The
// pipeline degrades to the next fallback source instead of failing.
type DeviceUnavailableError struct {
	Device string
	Err    error
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("device unavailable: %s: %v", e.Device, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error { return e.Err }

// Retryable classifies an error for the backoff combinator. Client errors
// and context cancellation are terminal, everything else is worth retrying.
func Retryable(err error) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return false
	}
	var de *DeviceUnavailableError
	if errors.As(err, &de) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// ABOUTME: Terminal error types for the job poller
// ABOUTME: Distinguishes remote failure, cancellation, and overall deadline expiry

package genie

import (
	"errors"
	"fmt"
)

// ErrQueryCancelled is returned when the job reached the cancelled state
// or the caller cancelled the wait. Never retried.
var ErrQueryCancelled = errors.New("query cancelled")

// ErrDeadlineExceeded is returned when the overall wall-clock budget for
// a job elapsed before it reached a terminal state. This is the
// overall-deadline timeout variant; per-call timeouts are classified by
// the transport layer.
var ErrDeadlineExceeded = errors.New("query deadline exceeded")

// QueryFailedError is returned when the remote reports the job itself
// failed. The request reached the remote and the computation went wrong,
// so retrying the same question is pointless at this layer.
type QueryFailedError struct {
	Reason string
}

func (e *QueryFailedError) Error() string {
	if e.Reason == "" {
		return "query failed"
	}
	return fmt.Sprintf("query failed: %s", e.Reason)
}

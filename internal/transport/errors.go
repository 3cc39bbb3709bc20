// ABOUTME: Typed error taxonomy for remote calls with retryability classification
// ABOUTME: Maps HTTP statuses and net-level failures onto Kind values

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a failed remote call.
type Kind int

const (
	// KindNetwork is a connection-level failure (refused, reset, DNS).
	KindNetwork Kind = iota
	// KindTimeout is a per-call timeout. The poller's overall deadline
	// has its own error; this kind only covers a single call.
	KindTimeout
	// KindRateLimited is HTTP 429.
	KindRateLimited
	// KindServer is HTTP 5xx.
	KindServer
	// KindClient is any other HTTP 4xx. Never retried.
	KindClient
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// Error describes a failed remote call after classification.
type Error struct {
	Kind    Kind
	Status  int // HTTP status code, 0 for network-level failures
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote call failed (%s, status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("remote call failed (%s): %s", e.Kind, e.Message)
}

// Retryable reports whether the error may be retried.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a transport error that may be retried.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return false
}

// ServerError constructs a KindServer error for callers that need to
// reject a structurally invalid remote response (e.g. an unrecognized
// job state) as a server-side fault.
func ServerError(format string, args ...any) *Error {
	return &Error{Kind: KindServer, Message: fmt.Sprintf(format, args...)}
}

// classifyStatus maps a non-2xx HTTP status onto an Error.
func classifyStatus(status int, message string) *Error {
	switch {
	case status == 429:
		return &Error{Kind: KindRateLimited, Status: status, Message: message}
	case status == 408:
		return &Error{Kind: KindTimeout, Status: status, Message: message}
	case status >= 500:
		return &Error{Kind: KindServer, Status: status, Message: message}
	default:
		return &Error{Kind: KindClient, Status: status, Message: message}
	}
}

// classifyNetErr maps a net-level request failure onto an Error.
// Context cancellation is passed through untouched so callers can
// distinguish user cancellation from transient faults.
func classifyNetErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: err.Error()}
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &Error{Kind: KindNetwork, Message: ue.Error()}
	}
	return &Error{Kind: KindNetwork, Message: err.Error()}
}

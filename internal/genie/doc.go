// Package genie implements the client for the remote conversational
// query service and the poller that drives its asynchronous jobs.
//
// # Overview
//
// Submitting a question is asynchronous: the remote returns a message id
// and the answer materializes later. The Client wraps the individual
// HTTP operations (start conversation, submit a follow-up, fetch message
// status, fetch the tabular query result, cancel); the Poller drives the
// start-job / poll-status / fetch-result state machine on top of them.
//
// # Job states
//
// A message moves through these states:
//
//   - StatePending: accepted, not yet executing
//   - StateRunning: translating or executing the query
//   - StateSucceeded: terminal; the answer and query result are available
//   - StateFailed: terminal; surfaces a QueryFailedError with the remote reason
//   - StateCancelled: terminal; surfaces ErrQueryCancelled
//
// Unrecognized remote states are rejected as server errors rather than
// silently treated as pending.
//
// # Polling
//
// The interval between status checks starts at 1s, doubles per poll and
// caps at 60s. This spacing is independent of the transport layer's
// per-call retry backoff: a status check that fails transiently is
// retried inside the transport before it counts as one poll iteration.
// The whole wait is bounded by a wall-clock deadline (600s by default)
// measured from job submission; on expiry the poller sends a best-effort
// cancel and fails with ErrDeadlineExceeded.
package genie

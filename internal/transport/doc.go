// Package transport issues individual HTTP calls to the remote query
// service with per-call retry and backoff.
//
// # Overview
//
// The transport layer knows nothing about conversations or polling. It
// owns exactly two concerns: classifying a failed call into retryable
// and non-retryable kinds, and spacing retries of a single logical call
// with jittered exponential backoff.
//
// # Error classification
//
// Failures are classified by Kind:
//
//   - KindNetwork: connection-level failures (refused, reset, DNS)
//   - KindTimeout: the per-call timeout elapsed
//   - KindRateLimited: HTTP 429
//   - KindServer: HTTP 5xx
//   - KindClient: other HTTP 4xx (never retried)
//
// Network, timeout, rate-limit and server errors are retried up to the
// configured attempt budget (3 total by default). Client errors surface
// immediately.
//
// # Creation calls
//
// Calls that create remote state (start conversation, submit question)
// must not be retried freely: a lost response after a remote success
// would duplicate the conversation. DoCreate sends an Idempotency-Key
// header and allows at most one retry per key, accounted in the dedupe
// ledger, so a key whose retry has been spent surfaces the error instead
// of risking a duplicate.
//
// # Usage
//
//	c := transport.New("https://dbx.example.com", token, transport.Options{})
//	var out startResponse
//	err := c.Do(ctx, http.MethodGet, "/api/2.0/genie/...", nil, &out)
package transport

// Package dedupe tracks idempotency keys whose retry budget has been
// spent, so conversation-creation calls are retried at most once per key
// no matter how the call path is re-entered.
package dedupe

// ABOUTME: Pure backoff computation for per-call retries
// ABOUTME: Jitter comes from an injected random source so tests need no real timing

package transport

import "time"

// jitterFraction bounds the random perturbation applied to a retry
// delay: the final wait is the base delay ±25%. Desynchronizes
// concurrent clients retrying against the same remote.
const jitterFraction = 0.25

// RetryDelay returns the wait before retry number attempt (1-based: the
// delay between the first failure and the second try is attempt 1).
// The un-jittered delay is base doubled per attempt; rnd must return a
// value in [0, 1).
func RetryDelay(attempt int, base time.Duration, rnd func() float64) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := base << uint(attempt-1)
	jitter := time.Duration((rnd()*2 - 1) * jitterFraction * float64(d))
	d += jitter
	if d < 0 {
		d = 0
	}
	return d
}

// NextPollInterval doubles a poll interval up to cap. This governs the
// spacing between successive status checks of a still-pending job and is
// independent of the per-call retry backoff above.
func NextPollInterval(current, cap time.Duration) time.Duration {
	next := current * 2
	if next > cap {
		return cap
	}
	return next
}

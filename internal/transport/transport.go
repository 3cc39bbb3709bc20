// ABOUTME: HTTP client for the remote query service with classified retries
// ABOUTME: Do retries transient failures; DoCreate caps creation calls at one retry per key

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sageql/sage-gateway/internal/dedupe"
)

// DefaultMaxAttempts is the total attempt budget per logical call.
const DefaultMaxAttempts = 3

// DefaultBaseDelay is the base retry delay before doubling and jitter.
const DefaultBaseDelay = time.Second

// DefaultCallTimeout bounds a single HTTP round trip.
const DefaultCallTimeout = 30 * time.Second

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case. Injected so tests can observe waits without real timing.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the production SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CallTimeout time.Duration
	HTTPClient  *http.Client
	Rand        func() float64
	Sleep       SleepFunc
	Retries     *dedupe.Ledger // retry accounting for creation calls
	Logger      *slog.Logger
}

// Client issues JSON-over-HTTP calls against a single remote host.
type Client struct {
	host        string
	token       string
	httpc       *http.Client
	maxAttempts int
	baseDelay   time.Duration
	callTimeout time.Duration
	rnd         func() float64
	sleep       SleepFunc
	retries     *dedupe.Ledger
	logger      *slog.Logger
}

// New creates a Client for the given host (scheme + authority) and
// bearer token.
func New(host, token string, opts Options) *Client {
	c := &Client{
		host:        strings.TrimRight(host, "/"),
		token:       token,
		httpc:       opts.HTTPClient,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		callTimeout: opts.CallTimeout,
		rnd:         opts.Rand,
		sleep:       opts.Sleep,
		retries:     opts.Retries,
		logger:      opts.Logger,
	}
	if c.httpc == nil {
		c.httpc = &http.Client{}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = DefaultBaseDelay
	}
	if c.callTimeout <= 0 {
		c.callTimeout = DefaultCallTimeout
	}
	if c.rnd == nil {
		c.rnd = rand.Float64
	}
	if c.sleep == nil {
		c.sleep = ContextSleep
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "transport")
	return c
}

// Do issues an idempotent call, retrying transient failures up to the
// attempt budget. Non-retryable failures surface immediately. The
// response body, if out is non-nil, is decoded as JSON into out.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var last error
	for attempt := 1; ; attempt++ {
		err := c.roundTrip(ctx, method, path, "", body, out)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		last = err
		if attempt >= c.maxAttempts {
			break
		}
		delay := RetryDelay(attempt, c.baseDelay, c.rnd)
		c.logger.Warn("retrying remote call",
			"method", method,
			"path", path,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err)
		if serr := c.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return last
}

// DoCreate issues a creation call (start conversation, submit question)
// that is unsafe to retry freely: if the first attempt's response is
// lost after the remote succeeded, a blind retry would duplicate the
// conversation. The idempotency key is sent as a header for remotes
// that honor it, and the dedupe ledger allows at most one retry per key
// regardless of how the call is re-entered.
func (c *Client) DoCreate(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	if idempotencyKey == "" {
		return &Error{Kind: KindClient, Message: "idempotency key required for creation call"}
	}
	err := c.roundTrip(ctx, method, path, idempotencyKey, body, out)
	if err == nil || !IsRetryable(err) {
		return err
	}
	if c.retries != nil && c.retries.SpendRetry(idempotencyKey) {
		c.logger.Warn("creation retry budget spent, surfacing error",
			"path", path, "error", err)
		return err
	}
	delay := RetryDelay(1, c.baseDelay, c.rnd)
	c.logger.Warn("retrying creation call once",
		"method", method,
		"path", path,
		"delay_ms", delay.Milliseconds(),
		"error", err)
	if serr := c.sleep(ctx, delay); serr != nil {
		return serr
	}
	return c.roundTrip(ctx, method, path, idempotencyKey, body, out)
}

// roundTrip performs one HTTP exchange and classifies the outcome.
func (c *Client) roundTrip(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindClient, Message: fmt.Sprintf("encoding request body: %v", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.host+path, reader)
	if err != nil {
		return &Error{Kind: KindClient, Message: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// The per-call deadline firing shows up as context.DeadlineExceeded
		// on callCtx; the caller cancelling shows up on ctx.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, readErrorMessage(resp.Body))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServer, Status: resp.StatusCode,
			Message: fmt.Sprintf("decoding response body: %v", err)}
	}
	return nil
}

// readErrorMessage extracts a human-readable message from an error
// response body. The remote wraps errors as {"message": "..."}; anything
// else is returned as raw (truncated) text.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "(no response body)"
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Message != "" {
		return envelope.Message
	}
	return strings.TrimSpace(string(data))
}

// ABOUTME: Job poller driving the start-job / poll-status / fetch-result state machine
// ABOUTME: Exponential poll spacing, absolute deadline, best-effort cancellation

package genie

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sageql/sage-gateway/internal/transport"
)

// Poll loop defaults, matching the remote service's published guidance.
const (
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 60 * time.Second
	DefaultDeadline        = 600 * time.Second
)

// cancelTimeout bounds the best-effort cancel request sent when a wait
// is abandoned.
const cancelTimeout = 10 * time.Second

// followUpStableChecks is how many consecutive unchanged listings end
// the follow-up settle loop.
const followUpStableChecks = 3

// MessageAPI is what the poller needs from the remote client.
type MessageAPI interface {
	GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	GetQueryResult(ctx context.Context, conversationID, messageID string) (*TableResult, error)
	CancelMessage(ctx context.Context, conversationID, messageID string) error
}

// PollerOptions tunes a Poller. Zero values fall back to defaults;
// Settle stays zero unless follow-up settling is wanted.
type PollerOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Deadline        time.Duration
	Settle          time.Duration
	Sleep           transport.SleepFunc
	Now             func() time.Time
	Logger          *slog.Logger
}

// Poller waits for a submitted job to reach a terminal state. Each wait
// blocks its calling goroutine for the duration of poll sleeps and
// network calls; one in-flight question occupies one worker.
type Poller struct {
	api      MessageAPI
	initial  time.Duration
	max      time.Duration
	deadline time.Duration
	settle   time.Duration
	sleep    transport.SleepFunc
	now      func() time.Time
	logger   *slog.Logger
}

// NewPoller creates a poller over the given remote API.
func NewPoller(api MessageAPI, opts PollerOptions) *Poller {
	p := &Poller{
		api:      api,
		initial:  opts.InitialInterval,
		max:      opts.MaxInterval,
		deadline: opts.Deadline,
		settle:   opts.Settle,
		sleep:    opts.Sleep,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if p.initial <= 0 {
		p.initial = DefaultInitialInterval
	}
	if p.max <= 0 {
		p.max = DefaultMaxInterval
	}
	if p.deadline <= 0 {
		p.deadline = DefaultDeadline
	}
	if p.sleep == nil {
		p.sleep = transport.ContextSleep
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "poller")
	return p
}

// Wait polls the message until it reaches a terminal state, the overall
// deadline elapses, or ctx is cancelled. The deadline is measured from
// the call, which callers make immediately after job submission.
func (p *Poller) Wait(ctx context.Context, conversationID, messageID string) (*Answer, error) {
	start := p.now()
	interval := p.initial

	for {
		if p.now().Sub(start) >= p.deadline {
			p.logger.Warn("query deadline elapsed, abandoning job",
				"conversation_id", conversationID,
				"message_id", messageID,
				"deadline", p.deadline)
			p.cancelBestEffort(ctx, conversationID, messageID)
			return nil, ErrDeadlineExceeded
		}

		msg, err := p.api.GetMessage(ctx, conversationID, messageID)
		switch {
		case err == nil:
			state, serr := msg.State()
			if serr != nil {
				return nil, serr
			}
			switch state {
			case StateSucceeded:
				return p.finish(ctx, conversationID, msg, start)
			case StateFailed:
				return nil, &QueryFailedError{Reason: msg.ErrorMessage()}
			case StateCancelled:
				return nil, ErrQueryCancelled
			}
			// Pending or running: fall through to the wait below.
		case ctx.Err() != nil:
			p.cancelBestEffort(ctx, conversationID, messageID)
			return nil, fmt.Errorf("%w: %v", ErrQueryCancelled, ctx.Err())
		default:
			// The transport already exhausted its per-call retries. One
			// failed poll iteration does not abort the wait; only the
			// deadline does.
			p.logger.Warn("poll iteration failed",
				"conversation_id", conversationID,
				"message_id", messageID,
				"error", err)
		}

		wait := interval
		if remaining := p.deadline - p.now().Sub(start); wait > remaining {
			wait = remaining
		}
		if serr := p.sleep(ctx, wait); serr != nil {
			p.cancelBestEffort(ctx, conversationID, messageID)
			return nil, fmt.Errorf("%w: %v", ErrQueryCancelled, serr)
		}
		interval = transport.NextPollInterval(interval, p.max)
	}
}

// finish assembles the Answer for a succeeded message, optionally
// settling follow-up refinements first.
func (p *Poller) finish(ctx context.Context, conversationID string, msg *Message, start time.Time) (*Answer, error) {
	if p.settle > 0 {
		if final := p.settleFollowUps(ctx, conversationID, msg, start); final != nil {
			msg = final
		}
	}

	text, query := extractAnswer(msg)
	answer := &Answer{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		Text:           text,
		Query:          query,
		Elapsed:        p.now().Sub(start),
	}

	if query != "" {
		table, err := p.api.GetQueryResult(ctx, conversationID, msg.ID)
		if err != nil {
			// The answer itself succeeded; missing rows degrade the
			// result rather than failing the question.
			p.logger.Warn("query result unavailable for completed message",
				"conversation_id", conversationID,
				"message_id", msg.ID,
				"error", err)
		} else {
			answer.Table = table
		}
	}

	p.logger.Info("query completed",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"elapsed", answer.Elapsed)
	return answer, nil
}

// settleFollowUps watches the conversation for remote-initiated
// follow-up messages that refine the answer. Returns the final completed
// message, or nil to keep the original. Bounded by the overall deadline
// and a fixed number of stable checks.
func (p *Poller) settleFollowUps(ctx context.Context, conversationID string, original *Message, start time.Time) *Message {
	latest := original
	stable := 0

	for {
		if p.now().Sub(start) >= p.deadline {
			break
		}
		if err := p.sleep(ctx, p.settle); err != nil {
			break
		}

		msgs, err := p.api.ListMessages(ctx, conversationID)
		if err != nil || len(msgs) == 0 {
			break
		}

		newest := msgs[0]
		for _, m := range msgs[1:] {
			if m.UpdatedAt > newest.UpdatedAt {
				newest = m
			}
		}

		if newest.ID == latest.ID {
			stable++
			if stable >= followUpStableChecks {
				break
			}
			continue
		}

		state, serr := newest.State()
		if serr != nil || state == StateFailed || state == StateCancelled {
			// A broken follow-up never replaces a good answer.
			break
		}
		if state == StateSucceeded {
			stable = 0
			latest = newest
			continue
		}
		// Still processing: keep watching until it settles or the
		// deadline ends the wait.
		stable = 0
	}

	if latest.ID == original.ID {
		return nil
	}
	return latest
}

// cancelBestEffort asks the remote to cancel an abandoned job. Failure
// to cancel is logged, never surfaced.
func (p *Poller) cancelBestEffort(ctx context.Context, conversationID, messageID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	if err := p.api.CancelMessage(cctx, conversationID, messageID); err != nil {
		p.logger.Debug("best-effort cancel failed",
			"conversation_id", conversationID,
			"message_id", messageID,
			"error", err)
	}
}

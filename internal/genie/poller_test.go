// ABOUTME: Tests for the job poller state machine.
// ABOUTME: A fake clock advanced by the injected sleep keeps tests timing-free.

package genie

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sageql/sage-gateway/internal/transport"
)

// pollStep scripts one GetMessage outcome.
type pollStep struct {
	status string
	err    error
}

// fakeJobAPI scripts GetMessage outcomes and records interactions. The
// last step repeats once the script is exhausted.
type fakeJobAPI struct {
	steps      []pollStep
	idx        int
	message    *Message // template for successful polls
	table      *TableResult
	tableErr   error
	tableCalls int
	cancels    int
	listed     []*Message
}

func (f *fakeJobAPI) GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	step := f.steps[f.idx]
	if f.idx < len(f.steps)-1 {
		f.idx++
	}
	if step.err != nil {
		return nil, step.err
	}
	msg := &Message{ID: messageID, Status: step.status}
	if f.message != nil {
		msg.Attachments = f.message.Attachments
		msg.Error = f.message.Error
	}
	return msg, nil
}

func (f *fakeJobAPI) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	return f.listed, nil
}

func (f *fakeJobAPI) GetQueryResult(ctx context.Context, conversationID, messageID string) (*TableResult, error) {
	f.tableCalls++
	return f.table, f.tableErr
}

func (f *fakeJobAPI) CancelMessage(ctx context.Context, conversationID, messageID string) error {
	f.cancels++
	return nil
}

// fakeTimer drives the poller's clock: sleeping advances time instead of
// waiting.
type fakeTimer struct {
	t      time.Time
	delays []time.Duration
}

func (c *fakeTimer) now() time.Time { return c.t }

func (c *fakeTimer) sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.delays = append(c.delays, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestPoller(api MessageAPI, clock *fakeTimer, opts PollerOptions) *Poller {
	opts.Sleep = clock.sleep
	opts.Now = clock.now
	return NewPoller(api, opts)
}

func TestPoller_PendingThenSucceeded(t *testing.T) {
	api := &fakeJobAPI{
		steps: []pollStep{
			{status: "PENDING"},
			{status: "PENDING"},
			{status: "COMPLETED"},
		},
		message: &Message{Attachments: []Attachment{
			{Text: &TextAttachment{Content: "Total was $1.2M."}},
			{Query: &QueryAttachment{Query: "SELECT 1"}},
		}},
		table: &TableResult{Columns: []string{"total"}, Rows: [][]string{{"1200000"}}},
	}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{})

	answer, err := p.Wait(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "Total was $1.2M.", answer.Text)
	assert.Equal(t, "SELECT 1", answer.Query)
	require.NotNil(t, answer.Table)
	assert.Equal(t, [][]string{{"1200000"}}, answer.Table.Rows)
	assert.Equal(t, "conv-1", answer.ConversationID)

	// Two pending polls mean two waits: 1s then 2s
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.delays)
	assert.Equal(t, 1, api.tableCalls)
	assert.Equal(t, 0, api.cancels)
}

func TestPoller_IntervalSequenceDoublesAndCaps(t *testing.T) {
	steps := make([]pollStep, 10)
	for i := range steps {
		steps[i] = pollStep{status: "PENDING"}
	}
	steps = append(steps, pollStep{status: "COMPLETED"})

	api := &fakeJobAPI{steps: steps}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{Deadline: time.Hour})

	_, err := p.Wait(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
		60 * time.Second, 60 * time.Second,
	}
	assert.Equal(t, want, clock.delays)
}

func TestPoller_DeadlineYieldsTimeout(t *testing.T) {
	api := &fakeJobAPI{steps: []pollStep{{status: "PENDING"}}}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{})

	start := clock.t
	_, err := p.Wait(context.Background(), "conv-1", "msg-1")
	assert.ErrorIs(t, err, ErrDeadlineExceeded)

	// The wall clock never runs past the 600s budget and the abandoned
	// job got a best-effort cancel.
	assert.Equal(t, 600*time.Second, clock.t.Sub(start))
	assert.Equal(t, 1, api.cancels)
}

func TestPoller_FailedState(t *testing.T) {
	api := &fakeJobAPI{
		steps:   []pollStep{{status: "FAILED"}},
		message: &Message{Error: &MessageError{Message: "table not found"}},
	}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{})

	_, err := p.Wait(context.Background(), "conv-1", "msg-1")
	var qfe *QueryFailedError
	require.ErrorAs(t, err, &qfe)
	assert.Equal(t, "table not found", qfe.Reason)
}

func TestPoller_CancelledState(t *testing.T) {
	api := &fakeJobAPI{steps: []pollStep{{status: "CANCELLED"}}}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{})

	_, err := p.Wait(context.Background(), "conv-1", "msg-1")
	assert.ErrorIs(t, err, ErrQueryCancelled)
}

func TestPoller_UnknownStateIsServerError(t *testing.T) {
	api := &fakeJobAPI{steps: []pollStep{{status: "MEDITATING"}}}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{})

	_, err := p.Wait(context.Background(), "conv-1", "msg-1")
	var te *transport.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, transport.KindServer, te.Kind)
}

func TestPoller_FailedIterationDoesNotAbort(t *testing.T) {
	api := &fakeJobAPI{
		steps: []pollStep{
			{err: &transport.Error{Kind: transport.KindServer, Message: "exhausted retries"}},
			{status: "PENDING"},
			{status: "COMPLETED"},
		},
	}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{})

	answer, err := p.Wait(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", answer.MessageID)
	// Failed iteration still waits before the next poll
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.delays)
}

func TestPoller_ContextCancellation(t *testing.T) {
	api := &fakeJobAPI{steps: []pollStep{{status: "PENDING"}}}
	clock := &fakeTimer{t: time.Unix(0, 0)}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(api, PollerOptions{
		Now: clock.now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	_, err := p.Wait(ctx, "conv-1", "msg-1")
	assert.ErrorIs(t, err, ErrQueryCancelled)
	assert.Equal(t, 1, api.cancels, "cancellation propagates to the remote")
}

func TestPoller_QueryResultFailureDegradesToNoRows(t *testing.T) {
	api := &fakeJobAPI{
		steps: []pollStep{{status: "COMPLETED"}},
		message: &Message{Attachments: []Attachment{
			{Query: &QueryAttachment{Query: "SELECT 1", Description: "one"}},
		}},
		tableErr: &transport.Error{Kind: transport.KindServer, Message: "boom"},
	}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{})

	answer, err := p.Wait(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", answer.Query)
	assert.Nil(t, answer.Table)
}

func TestPoller_SettleAdoptsFollowUpAnswer(t *testing.T) {
	followUp := &Message{
		ID:        "msg-2",
		Status:    "COMPLETED",
		UpdatedAt: 200,
		Attachments: []Attachment{
			{Text: &TextAttachment{Content: "Refined: $1.3M."}},
		},
	}
	api := &fakeJobAPI{
		steps: []pollStep{{status: "COMPLETED"}},
		message: &Message{Attachments: []Attachment{
			{Text: &TextAttachment{Content: "Total was $1.2M."}},
		}},
		listed: []*Message{
			{ID: "msg-1", Status: "COMPLETED", UpdatedAt: 100},
			followUp,
		},
	}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{Settle: time.Second})

	answer, err := p.Wait(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-2", answer.MessageID)
	assert.Equal(t, "Refined: $1.3M.", answer.Text)
}

func TestPoller_SettleKeepsOriginalWhenNothingNewer(t *testing.T) {
	api := &fakeJobAPI{
		steps: []pollStep{{status: "COMPLETED"}},
		message: &Message{Attachments: []Attachment{
			{Text: &TextAttachment{Content: "Total was $1.2M."}},
		}},
		listed: []*Message{{ID: "msg-1", Status: "COMPLETED", UpdatedAt: 100}},
	}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{Settle: time.Second})

	answer, err := p.Wait(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", answer.MessageID)
	assert.Equal(t, "Total was $1.2M.", answer.Text)
}

func TestPoller_ProseOnlyAnswerSkipsQueryResult(t *testing.T) {
	api := &fakeJobAPI{
		steps: []pollStep{{status: "COMPLETED"}},
		message: &Message{Attachments: []Attachment{
			{Text: &TextAttachment{Content: "I need more detail to answer that."}},
		}},
	}
	clock := &fakeTimer{t: time.Unix(0, 0)}
	p := newTestPoller(api, clock, PollerOptions{})

	answer, err := p.Wait(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, 0, api.tableCalls)
	assert.Nil(t, answer.Table)
}

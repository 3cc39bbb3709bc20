// ABOUTME: Per-operation client for the remote query service REST API
// ABOUTME: Creation calls carry idempotency keys; reads retry freely via the transport

package genie

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sageql/sage-gateway/internal/transport"
)

// Caller is what the client needs from the transport layer.
type Caller interface {
	Do(ctx context.Context, method, path string, body, out any) error
	DoCreate(ctx context.Context, method, path, idempotencyKey string, body, out any) error
}

// Client wraps the remote query service's REST operations for a single
// space. It holds no conversation state; every call is scoped by the
// ids passed in.
type Client struct {
	space  string
	caller Caller
	logger *slog.Logger
}

// NewClient creates a client for the given space id.
func NewClient(space string, caller Caller, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		space:  space,
		caller: caller,
		logger: logger.With("component", "genie", "space_id", space),
	}
}

func (c *Client) spacePath(format string, args ...any) string {
	tail := fmt.Sprintf(format, args...)
	return fmt.Sprintf("/api/2.0/genie/spaces/%s%s", url.PathEscape(c.space), tail)
}

// StartResponse identifies the conversation and first message created by
// StartConversation. The conversation id is assigned remotely and is the
// only legitimate origin of conversation ids in the system.
type StartResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// StartConversation creates a conversation seeded with the question and
// submits it as the first job. Goes through the at-most-one-retry
// creation path keyed by idempotencyKey.
func (c *Client) StartConversation(ctx context.Context, question, idempotencyKey string) (*StartResponse, error) {
	body := map[string]string{"content": question}
	var out StartResponse
	err := c.caller.DoCreate(ctx, http.MethodPost, c.spacePath("/start-conversation"), idempotencyKey, body, &out)
	if err != nil {
		return nil, err
	}
	if out.ConversationID == "" || out.MessageID == "" {
		return nil, transport.ServerError("start-conversation response missing ids")
	}
	c.logger.Info("conversation started",
		"conversation_id", out.ConversationID,
		"message_id", out.MessageID)
	return &out, nil
}

// CreateMessage submits a follow-up question on an existing conversation
// and returns the new message id. Creation semantics match
// StartConversation.
func (c *Client) CreateMessage(ctx context.Context, conversationID, question, idempotencyKey string) (string, error) {
	body := map[string]string{"content": question}
	var out struct {
		MessageID string `json:"message_id"`
	}
	path := c.spacePath("/conversations/%s/messages", url.PathEscape(conversationID))
	if err := c.caller.DoCreate(ctx, http.MethodPost, path, idempotencyKey, body, &out); err != nil {
		return "", err
	}
	if out.MessageID == "" {
		return "", transport.ServerError("create-message response missing message_id")
	}
	c.logger.Info("message created",
		"conversation_id", conversationID,
		"message_id", out.MessageID)
	return out.MessageID, nil
}

// GetMessage fetches the current status and attachments of a message.
func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	var out Message
	path := c.spacePath("/conversations/%s/messages/%s",
		url.PathEscape(conversationID), url.PathEscape(messageID))
	if err := c.caller.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = messageID
	}
	return &out, nil
}

// ListMessages returns the messages of a conversation in remote order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	var out struct {
		Messages []*Message `json:"messages"`
	}
	path := c.spacePath("/conversations/%s/messages", url.PathEscape(conversationID))
	if err := c.caller.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// statement wire types for the query-result endpoint.
type queryResultResponse struct {
	StatementResponse *statementResponse `json:"statement_response"`
}

type statementResponse struct {
	Manifest *statementManifest `json:"manifest"`
	Result   *statementResult   `json:"result"`
}

type statementManifest struct {
	Schema struct {
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
	} `json:"schema"`
	TotalRowCount int64 `json:"total_row_count"`
}

type statementResult struct {
	DataArray [][]string `json:"data_array"`
}

// GetQueryResult fetches the tabular data for a completed message.
// Returns nil without error when the message produced no query result.
func (c *Client) GetQueryResult(ctx context.Context, conversationID, messageID string) (*TableResult, error) {
	var out queryResultResponse
	path := c.spacePath("/conversations/%s/messages/%s/query-result",
		url.PathEscape(conversationID), url.PathEscape(messageID))
	if err := c.caller.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	stmt := out.StatementResponse
	if stmt == nil || stmt.Manifest == nil {
		return nil, nil
	}

	table := &TableResult{
		TotalRows: stmt.Manifest.TotalRowCount,
	}
	for _, col := range stmt.Manifest.Schema.Columns {
		table.Columns = append(table.Columns, col.Name)
	}
	if stmt.Result != nil {
		table.Rows = stmt.Result.DataArray
	}
	return table, nil
}

// CancelMessage requests cancellation of an in-flight message. Best
// effort: callers treat failures as non-fatal.
func (c *Client) CancelMessage(ctx context.Context, conversationID, messageID string) error {
	path := c.spacePath("/conversations/%s/messages/%s/cancel",
		url.PathEscape(conversationID), url.PathEscape(messageID))
	return c.caller.Do(ctx, http.MethodPost, path, nil, nil)
}

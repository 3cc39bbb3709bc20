// ABOUTME: Wire types and job state parsing for the remote query service
// ABOUTME: Unknown remote states are rejected instead of defaulting

package genie

import (
	"time"

	"github.com/sageql/sage-gateway/internal/transport"
)

// State is the parsed lifecycle state of a remote message (job).
type State int

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the poll loop.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ParseState maps a remote status string onto a State. The remote's
// running phase is reported under several names; anything outside the
// known vocabulary is a server fault, not a default.
func ParseState(status string) (State, error) {
	switch status {
	case "PENDING":
		return StatePending, nil
	case "EXECUTING", "IN_PROGRESS", "RUNNING":
		return StateRunning, nil
	case "COMPLETED":
		return StateSucceeded, nil
	case "FAILED":
		return StateFailed, nil
	case "CANCELLED", "CANCELED":
		return StateCancelled, nil
	default:
		return StatePending, transport.ServerError("unrecognized message status %q", status)
	}
}

// Message is the remote representation of one question/answer unit.
type Message struct {
	ID          string        `json:"message_id"`
	Content     string        `json:"content"`
	Status      string        `json:"status"`
	Attachments []Attachment  `json:"attachments"`
	Error       *MessageError `json:"error"`
	CreatedAt   int64         `json:"created_timestamp"`
	UpdatedAt   int64         `json:"last_updated_timestamp"`
}

// State parses the message's status field.
func (m *Message) State() (State, error) {
	return ParseState(m.Status)
}

// ErrorMessage returns the remote-supplied failure reason, if any.
func (m *Message) ErrorMessage() string {
	if m.Error == nil {
		return ""
	}
	return m.Error.Message
}

// Attachment carries one piece of the remote answer: prose text or a
// generated query.
type Attachment struct {
	Text  *TextAttachment  `json:"text"`
	Query *QueryAttachment `json:"query"`
}

// TextAttachment is the prose part of an answer.
type TextAttachment struct {
	Content string `json:"content"`
}

// QueryAttachment is the generated SQL part of an answer.
type QueryAttachment struct {
	Query       string `json:"query"`
	Description string `json:"description"`
}

// MessageError is the remote's structured failure payload.
type MessageError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TableResult is the tabular data produced by the generated query.
type TableResult struct {
	Columns   []string
	Rows      [][]string
	TotalRows int64
}

// Answer is the normalized result of one answered question. Immutable
// once produced.
type Answer struct {
	ConversationID string
	MessageID      string
	Text           string
	Query          string // generated SQL, empty when the answer was prose-only
	Table          *TableResult
	Elapsed        time.Duration
}

// extractAnswer pulls the prose and generated query out of a completed
// message's attachments.
func extractAnswer(msg *Message) (text, query string) {
	for _, a := range msg.Attachments {
		if a.Text != nil && a.Text.Content != "" {
			if text != "" {
				text += "\n\n"
			}
			text += a.Text.Content
		}
		if a.Query != nil {
			if query == "" {
				query = a.Query.Query
			}
			if text == "" && a.Query.Description != "" {
				text = a.Query.Description
			}
		}
	}
	return text, query
}

// ABOUTME: Store interface and data types for conversation ownership persistence
// ABOUTME: Defines the Conversation struct and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested conversation does not exist.
var ErrNotFound = errors.New("not found")

// DefaultTitle stands in for conversations recorded without a title
// (rows predating the title column, or NULL titles).
const DefaultTitle = "Untitled"

// Conversation records who owns a remote conversation and how to
// display it. The id originates from the remote service on creation and
// is immutable; Title and CreatedAt are set exactly once.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

// Store defines the interface for conversation ownership persistence.
type Store interface {
	// RecordIfNew inserts the conversation if its id is unknown. A
	// second call for the same id is a no-op: title, creation time and
	// owner keep their first-written values.
	RecordIfNew(ctx context.Context, conv *Conversation) error

	// GetConversation returns the conversation by id, or ErrNotFound.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns a user's conversations, most recent first.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// DeleteConversation removes a conversation owned by the user.
	// Returns ErrNotFound when the id is absent or owned by someone else.
	DeleteConversation(ctx context.Context, userID, id string) error

	// Close releases any resources held by the store.
	Close() error
}

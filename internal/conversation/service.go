// ABOUTME: Ask facade composing session resolution, job submission, polling, and ownership
// ABOUTME: Serializes questions per conversation and degrades gracefully without the store

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sageql/sage-gateway/internal/genie"
	"github.com/sageql/sage-gateway/internal/store"
)

// Facade errors.
var (
	// ErrEmptyQuestion rejects questions that are empty after trimming.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrConversationAccess is returned when the supplied conversation id
	// is owned by a different user. Never retried; ownership is never
	// inferred or transferred.
	ErrConversationAccess = errors.New("conversation belongs to another user")

	// ErrConversationBusy is returned when a question arrives on a
	// conversation still awaiting a prior answer.
	ErrConversationBusy = errors.New("conversation has a question in flight")

	// ErrPersistenceUnavailable marks answers produced while the
	// ownership store was unreachable. It accompanies a successful
	// Result, never replaces it.
	ErrPersistenceUnavailable = errors.New("conversation history unavailable")
)

// titleMaxRunes bounds the sidebar title derived from the first question.
const titleMaxRunes = 120

// RemoteClient defines what the service needs to submit questions.
type RemoteClient interface {
	StartConversation(ctx context.Context, question, idempotencyKey string) (*genie.StartResponse, error)
	CreateMessage(ctx context.Context, conversationID, question, idempotencyKey string) (string, error)
	ListMessages(ctx context.Context, conversationID string) ([]*genie.Message, error)
}

// AnswerWaiter defines what the service needs to wait for a submitted job.
type AnswerWaiter interface {
	Wait(ctx context.Context, conversationID, messageID string) (*genie.Answer, error)
}

// OwnershipStore defines what the service needs from persistence.
type OwnershipStore interface {
	RecordIfNew(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error)
	DeleteConversation(ctx context.Context, userID, id string) error
}

// Result is the outcome of one successfully answered question.
type Result struct {
	Answer *genie.Answer
	IsNew  bool
	// PersistenceWarning is non-nil when the answer succeeded but
	// ownership could not be recorded or verified (degraded mode).
	PersistenceWarning error
}

// Service composes the transport, poller and ownership store behind a
// single Ask operation. It holds only injected dependencies; callers
// construct one per process and share it.
type Service struct {
	remote RemoteClient
	waiter AnswerWaiter
	store  OwnershipStore
	sem    *semaphore.Weighted
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a Service. maxConcurrent bounds the number of questions
// in flight across all users; each occupies one blocked worker.
func New(remote RemoteClient, waiter AnswerWaiter, ownership OwnershipStore, maxConcurrent int64, logger *slog.Logger) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		remote:   remote,
		waiter:   waiter,
		store:    ownership,
		sem:      semaphore.NewWeighted(maxConcurrent),
		logger:   logger.With("component", "conversation"),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// Ask answers one question. An empty conversationID starts a new
// conversation; otherwise the id must belong to user. Blocks until the
// answer is ready, the poll deadline elapses, or ctx is cancelled.
func (s *Service) Ask(ctx context.Context, user, question, conversationID string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if user == "" {
		return nil, errors.New("user identity required")
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	resolved, warn, err := s.resolve(ctx, user, conversationID)
	if err != nil {
		return nil, err
	}

	if !resolved.isNew {
		if err := s.acquireConversation(resolved.id); err != nil {
			return nil, err
		}
		defer s.releaseConversation(resolved.id)
	}

	// One idempotency key per question; the transport spends at most one
	// creation retry on it.
	idempotencyKey := uuid.New().String()

	var convID, msgID string
	if resolved.isNew {
		started, err := s.remote.StartConversation(ctx, question, idempotencyKey)
		if err != nil {
			return nil, err
		}
		convID, msgID = started.ConversationID, started.MessageID
	} else {
		convID = resolved.id
		msgID, err = s.remote.CreateMessage(ctx, convID, question, idempotencyKey)
		if err != nil {
			return nil, err
		}
	}

	answer, err := s.waiter.Wait(ctx, convID, msgID)
	if err != nil {
		return nil, err
	}

	// Record ownership after the first successful answer. Recording on
	// later questions is a no-op upsert, so the title never changes.
	if rerr := s.store.RecordIfNew(ctx, &store.Conversation{
		ID:        convID,
		UserID:    user,
		Title:     deriveTitle(question),
		CreatedAt: s.now(),
	}); rerr != nil {
		s.logger.Warn("ownership record failed, answering in degraded mode",
			"conversation_id", convID,
			"user", user,
			"error", rerr)
		warn = fmt.Errorf("%w: %v", ErrPersistenceUnavailable, rerr)
	}

	return &Result{
		Answer:             answer,
		IsNew:              resolved.isNew,
		PersistenceWarning: warn,
	}, nil
}

// resolution is the outcome of new-vs-continuing session resolution.
type resolution struct {
	isNew bool
	id    string // set only when continuing
}

// resolve decides whether the question starts a new conversation or
// continues an existing one, enforcing ownership. A store outage during
// resolution degrades: the stated conversation is continued unverified
// and the result carries a persistence warning.
func (s *Service) resolve(ctx context.Context, user, conversationID string) (resolution, error, error) {
	if conversationID == "" {
		return resolution{isNew: true}, nil, nil
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	switch {
	case err == nil:
		if conv.UserID != user {
			return resolution{}, nil, ErrConversationAccess
		}
		return resolution{id: conversationID}, nil, nil
	case errors.Is(err, store.ErrNotFound):
		// Unknown id: treat the question as starting fresh rather than
		// continuing a thread this user has no claim to.
		return resolution{isNew: true}, nil, nil
	default:
		s.logger.Warn("ownership lookup failed, continuing unverified",
			"conversation_id", conversationID,
			"error", err)
		warn := fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		return resolution{id: conversationID}, warn, nil
	}
}

// acquireConversation claims the per-conversation in-flight slot.
func (s *Service) acquireConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return ErrConversationBusy
	}
	s.inflight[id] = struct{}{}
	return nil
}

func (s *Service) releaseConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// List returns the user's conversations, most recent first. A store
// outage surfaces as ErrPersistenceUnavailable so callers can render
// the sidebar as degraded instead of broken.
func (s *Service) List(ctx context.Context, user string) ([]*store.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return convs, nil
}

// Messages returns the remote message history of a conversation owned
// by user.
func (s *Service) Messages(ctx context.Context, user, conversationID string) ([]*genie.Message, error) {
	if err := s.requireOwner(ctx, user, conversationID); err != nil {
		return nil, err
	}
	return s.remote.ListMessages(ctx, conversationID)
}

// Delete removes a conversation owned by user from the ownership store.
// The remote thread is left to the remote service's own retention.
func (s *Service) Delete(ctx context.Context, user, conversationID string) error {
	return s.store.DeleteConversation(ctx, user, conversationID)
}

// requireOwner verifies the conversation exists and belongs to user.
func (s *Service) requireOwner(ctx context.Context, user, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if conv.UserID != user {
		return ErrConversationAccess
	}
	return nil
}

// deriveTitle turns the first question into a sidebar title: collapsed
// whitespace, bounded length.
func deriveTitle(question string) string {
	title := strings.Join(strings.Fields(question), " ")
	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes-1]) + "…"
	}
	return title
}

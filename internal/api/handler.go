// ABOUTME: HTTP handlers bridging the web frontend to the ask facade
// ABOUTME: Maps the typed error taxonomy onto response envelopes and statuses

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sageql/sage-gateway/internal/auth"
	"github.com/sageql/sage-gateway/internal/conversation"
	"github.com/sageql/sage-gateway/internal/genie"
	"github.com/sageql/sage-gateway/internal/store"
	"github.com/sageql/sage-gateway/internal/transport"
)

// AskService defines what the handlers need from the conversation layer.
type AskService interface {
	Ask(ctx context.Context, user, question, conversationID string) (*conversation.Result, error)
	List(ctx context.Context, user string) ([]*store.Conversation, error)
	Messages(ctx context.Context, user, conversationID string) ([]*genie.Message, error)
	Delete(ctx context.Context, user, conversationID string) error
}

// Handler serves the frontend-facing API.
type Handler struct {
	svc    AskService
	logger *slog.Logger
}

// NewHandler creates a Handler over the ask facade.
func NewHandler(svc AskService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:    svc,
		logger: logger.With("component", "api"),
	}
}

// NewRouter assembles the full route tree. authMiddleware guards the
// /api subtree; /healthz stays open for the platform's probes.
func NewRouter(h *Handler, authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/ask", h.Ask)
		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{conversationID}/messages", h.ConversationMessages)
		r.Delete("/conversations/{conversationID}", h.DeleteConversation)
	})

	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"success": false, "error": message})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
}

type tablePayload struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	TotalRows int64      `json:"total_rows"`
}

type askResponse struct {
	Success            bool          `json:"success"`
	Response           string        `json:"response,omitempty"`
	ResponseHTML       string        `json:"response_html,omitempty"`
	SQLQuery           string        `json:"sql_query,omitempty"`
	Table              *tablePayload `json:"table,omitempty"`
	ConversationID     string        `json:"conversation_id,omitempty"`
	MessageID          string        `json:"message_id,omitempty"`
	NewConversation    bool          `json:"new_conversation,omitempty"`
	ElapsedSeconds     float64       `json:"elapsed_seconds,omitempty"`
	Error              string        `json:"error,omitempty"`
	PersistenceWarning string        `json:"persistence_warning,omitempty"`
}

// Ask answers one question for the authenticated user.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Ask(r.Context(), ident.Email, req.Question, req.ConversationID)
	if err != nil {
		h.writeAskError(w, err)
		return
	}

	answer := res.Answer
	resp := askResponse{
		Success:         true,
		Response:        answer.Text,
		ResponseHTML:    renderMarkdown(answer.Text),
		SQLQuery:        answer.Query,
		ConversationID:  answer.ConversationID,
		MessageID:       answer.MessageID,
		NewConversation: res.IsNew,
		ElapsedSeconds:  answer.Elapsed.Seconds(),
	}
	if answer.Table != nil {
		resp.Table = &tablePayload{
			Columns:   answer.Table.Columns,
			Rows:      answer.Table.Rows,
			TotalRows: answer.Table.TotalRows,
		}
	}
	if res.PersistenceWarning != nil {
		resp.PersistenceWarning = "conversation history is temporarily unavailable"
	}

	JSON(w, http.StatusOK, resp)
}

// writeAskError renders a failed Ask. Query-level outcomes stay 200
// with success=false so the frontend shows them inline as retryable;
// request-level problems get real HTTP statuses.
func (h *Handler) writeAskError(w http.ResponseWriter, err error) {
	var qfe *genie.QueryFailedError
	switch {
	case errors.As(err, &qfe):
		JSON(w, http.StatusOK, askResponse{
			Success: false,
			Error:   "Sorry, that query failed: " + qfe.Reason + ". Please try rephrasing.",
		})
	case errors.Is(err, genie.ErrDeadlineExceeded):
		JSON(w, http.StatusOK, askResponse{
			Success: false,
			Error:   "Sorry, the query took too long. Please try again.",
		})
	case errors.Is(err, genie.ErrQueryCancelled):
		Error(w, http.StatusConflict, "query cancelled")
	case errors.Is(err, conversation.ErrEmptyQuestion):
		Error(w, http.StatusBadRequest, "question must not be empty")
	case errors.Is(err, conversation.ErrConversationAccess):
		Error(w, http.StatusForbidden, "conversation belongs to another user")
	case errors.Is(err, conversation.ErrConversationBusy):
		Error(w, http.StatusConflict, "previous question still in progress")
	default:
		var te *transport.Error
		if errors.As(err, &te) && te.Kind == transport.KindClient {
			Error(w, http.StatusBadRequest, te.Message)
			return
		}
		h.logger.Error("ask failed", "error", err)
		Error(w, http.StatusBadGateway, "query service unavailable")
	}
}

type conversationPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ListConversations renders the user's sidebar listing.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	convs, err := h.svc.List(r.Context(), ident.Email)
	if err != nil {
		// Degraded mode: history is unavailable, answering still works
		Error(w, http.StatusServiceUnavailable, "conversation history is temporarily unavailable")
		return
	}

	payload := make([]conversationPayload, 0, len(convs))
	for _, c := range convs {
		payload = append(payload, conversationPayload{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: c.CreatedAt,
		})
	}
	JSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"conversations": payload,
	})
}

// ConversationMessages returns the remote message history of one
// conversation the user owns.
func (h *Handler) ConversationMessages(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	msgs, err := h.svc.Messages(r.Context(), ident.Email, conversationID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			Error(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, conversation.ErrConversationAccess):
			Error(w, http.StatusForbidden, "conversation belongs to another user")
		case errors.Is(err, conversation.ErrPersistenceUnavailable):
			Error(w, http.StatusServiceUnavailable, "conversation history is temporarily unavailable")
		default:
			h.logger.Error("listing messages failed", "conversation_id", conversationID, "error", err)
			Error(w, http.StatusBadGateway, "query service unavailable")
		}
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": msgs,
	})
}

// DeleteConversation forgets a conversation the user owns.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.svc.Delete(r.Context(), ident.Email, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("deleting conversation failed", "conversation_id", conversationID, "error", err)
		Error(w, http.StatusServiceUnavailable, "conversation history is temporarily unavailable")
		return
	}

	JSON(w, http.StatusOK, map[string]any{"success": true})
}

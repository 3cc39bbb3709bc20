// ABOUTME: Tests for the HTTP handlers and their error-to-status mapping.
// ABOUTME: Uses a scripted fake ask service behind the real router.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sageql/sage-gateway/internal/auth"
	"github.com/sageql/sage-gateway/internal/conversation"
	"github.com/sageql/sage-gateway/internal/genie"
	"github.com/sageql/sage-gateway/internal/store"
	"github.com/sageql/sage-gateway/internal/transport"
)

type fakeAskService struct {
	askResult  *conversation.Result
	askErr     error
	askUser    string
	askQ       string
	askConvID  string
	listResult []*store.Conversation
	listErr    error
	msgsResult []*genie.Message
	msgsErr    error
	deleteErr  error
}

func (f *fakeAskService) Ask(ctx context.Context, user, question, conversationID string) (*conversation.Result, error) {
	f.askUser, f.askQ, f.askConvID = user, question, conversationID
	return f.askResult, f.askErr
}

func (f *fakeAskService) List(ctx context.Context, user string) ([]*store.Conversation, error) {
	return f.listResult, f.listErr
}

func (f *fakeAskService) Messages(ctx context.Context, user, conversationID string) ([]*genie.Message, error) {
	return f.msgsResult, f.msgsErr
}

func (f *fakeAskService) Delete(ctx context.Context, user, conversationID string) error {
	return f.deleteErr
}

func newTestRouter(svc AskService) http.Handler {
	return NewRouter(NewHandler(svc, nil), auth.Middleware(nil, nil))
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(auth.HeaderEmail, "alice@example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeAskService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// No identity header on purpose: the probe must stay open
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestAsk_Success(t *testing.T) {
	svc := &fakeAskService{
		askResult: &conversation.Result{
			Answer: &genie.Answer{
				ConversationID: "conv-1",
				MessageID:      "msg-1",
				Text:           "There were **42** orders.",
				Query:          "SELECT count(*) FROM orders",
				Table: &genie.TableResult{
					Columns:   []string{"count"},
					Rows:      [][]string{{"42"}},
					TotalRows: 1,
				},
				Elapsed: 2500 * time.Millisecond,
			},
			IsNew: true,
		},
	}
	h := newTestRouter(svc)

	rec := doRequest(t, h, http.MethodPost, "/api/ask",
		`{"question": "how many orders?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, true, got["success"])
	assert.Equal(t, "There were **42** orders.", got["response"])
	assert.Contains(t, got["response_html"], "<strong>42</strong>")
	assert.Equal(t, "SELECT count(*) FROM orders", got["sql_query"])
	assert.Equal(t, "conv-1", got["conversation_id"])
	assert.Equal(t, true, got["new_conversation"])
	assert.Equal(t, 2.5, got["elapsed_seconds"])
	assert.NotNil(t, got["table"])

	assert.Equal(t, "alice@example.com", svc.askUser)
	assert.Equal(t, "how many orders?", svc.askQ)
	assert.Empty(t, svc.askConvID)
}

func TestAsk_ContinuesConversation(t *testing.T) {
	svc := &fakeAskService{
		askResult: &conversation.Result{
			Answer: &genie.Answer{ConversationID: "conv-1", MessageID: "msg-2", Text: "Yes."},
		},
	}
	h := newTestRouter(svc)

	rec := doRequest(t, h, http.MethodPost, "/api/ask",
		`{"question": "and last month?", "conversation_id": "conv-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conv-1", svc.askConvID)
	got := decodeBody(t, rec)
	assert.Nil(t, got["new_conversation"])
}

func TestAsk_PersistenceWarning(t *testing.T) {
	svc := &fakeAskService{
		askResult: &conversation.Result{
			Answer:             &genie.Answer{ConversationID: "conv-1", Text: "Answered."},
			PersistenceWarning: conversation.ErrPersistenceUnavailable,
		},
	}
	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/ask",
		`{"question": "q"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, true, got["success"])
	assert.NotEmpty(t, got["persistence_warning"])
}

func TestAsk_InvalidBody(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeAskService{}), http.MethodPost, "/api/ask", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk_QueryFailedIsInlineError(t *testing.T) {
	svc := &fakeAskService{
		askErr: &genie.QueryFailedError{Reason: "table not found"},
	}
	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/ask",
		`{"question": "q"}`)

	// Query-level failure renders inline, not as an HTTP error
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, false, got["success"])
	assert.Contains(t, got["error"], "table not found")
}

func TestAsk_DeadlineIsInlineError(t *testing.T) {
	svc := &fakeAskService{askErr: genie.ErrDeadlineExceeded}
	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/ask",
		`{"question": "q"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, false, got["success"])
	assert.Contains(t, got["error"], "too long")
}

func TestAsk_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"empty question", conversation.ErrEmptyQuestion, http.StatusBadRequest},
		{"foreign conversation", conversation.ErrConversationAccess, http.StatusForbidden},
		{"busy conversation", conversation.ErrConversationBusy, http.StatusConflict},
		{"cancelled", genie.ErrQueryCancelled, http.StatusConflict},
		{"client fault", &transport.Error{Kind: transport.KindClient, Status: 400, Message: "bad space"}, http.StatusBadRequest},
		{"server fault", &transport.Error{Kind: transport.KindServer, Status: 500, Message: "boom"}, http.StatusBadGateway},
		{"network fault", &transport.Error{Kind: transport.KindNetwork, Message: "refused"}, http.StatusBadGateway},
		{"unexpected", fmt.Errorf("wat"), http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAskService{askErr: tc.err}
			rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/ask",
				`{"question": "q"}`)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, false, decodeBody(t, rec)["success"])
		})
	}
}

func TestListConversations(t *testing.T) {
	svc := &fakeAskService{
		listResult: []*store.Conversation{
			{ID: "conv-2", Title: "Recent question", CreatedAt: time.Now()},
			{ID: "conv-1", Title: "Older question", CreatedAt: time.Now().Add(-time.Hour)},
		},
	}
	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/api/conversations", "")

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	convs := got["conversations"].([]any)
	require.Len(t, convs, 2)
	assert.Equal(t, "conv-2", convs[0].(map[string]any)["id"])
}

func TestListConversations_StoreDown(t *testing.T) {
	svc := &fakeAskService{listErr: conversation.ErrPersistenceUnavailable}
	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/api/conversations", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConversationMessages(t *testing.T) {
	svc := &fakeAskService{
		msgsResult: []*genie.Message{
			{ID: "msg-1", Content: "how many orders?", Status: "COMPLETED"},
		},
	}
	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/api/conversations/conv-1/messages", "")

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	require.Len(t, got["messages"].([]any), 1)
}

func TestConversationMessages_Errors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"foreign", conversation.ErrConversationAccess, http.StatusForbidden},
		{"store down", conversation.ErrPersistenceUnavailable, http.StatusServiceUnavailable},
		{"remote down", &transport.Error{Kind: transport.KindServer, Status: 500}, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAskService{msgsErr: tc.err}
			rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/api/conversations/conv-1/messages", "")
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestDeleteConversation(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeAskService{}), http.MethodDelete, "/api/conversations/conv-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
}

func TestDeleteConversation_NotFound(t *testing.T) {
	svc := &fakeAskService{deleteErr: store.ErrNotFound}
	rec := doRequest(t, newTestRouter(svc), http.MethodDelete, "/api/conversations/conv-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnauthenticated(t *testing.T) {
	h := newTestRouter(&fakeAskService{})
	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRenderMarkdown(t *testing.T) {
	assert.Empty(t, renderMarkdown(""))
	html := renderMarkdown("a **bold** claim")
	assert.Contains(t, html, "<strong>bold</strong>")
}

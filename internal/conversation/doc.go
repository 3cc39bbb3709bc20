// Package conversation is the entry point for answering questions: it
// resolves whether a question starts a new conversation or continues an
// existing one, submits the job, waits for the answer, and records
// ownership.
//
// # Ownership rules
//
// A conversation id is never invented here; it comes from the remote
// service's create response. An id supplied by the caller must be owned
// by the asking user — ownership is checked before any remote call and
// is never inferred or transferred. An id the store has never seen
// starts a new conversation.
//
// # Degraded mode
//
// The ownership store is best-effort on the answer path. If recording
// or listing fails, the question is still answered; the Result carries a
// PersistenceWarning so callers can tell the sidebar will be stale. Only
// the answer itself can fail an Ask.
//
// # Concurrency
//
// Each in-flight question blocks one worker for its full duration
// (polling sleeps included); a weighted semaphore bounds the number of
// concurrent questions. Questions on the same conversation are strictly
// serialized: a second question racing an unanswered one is rejected
// with ErrConversationBusy rather than interleaved.
package conversation

// Package api exposes the ask facade over HTTP for the web frontend.
//
// # Endpoints
//
//   - GET  /healthz                              liveness, unauthenticated
//   - POST /api/ask                              answer a question
//   - GET  /api/conversations                    the user's sidebar listing
//   - GET  /api/conversations/{id}/messages      message history of one conversation
//   - DELETE /api/conversations/{id}             forget a conversation
//
// All /api routes require a resolved user identity (see package auth).
//
// # Error rendering
//
// Query-level failures (the remote reported the query failed, or the
// overall deadline elapsed) return 200 with success=false and an
// apologetic, retryable error message, matching what the frontend
// renders inline. Request-level failures map onto HTTP statuses:
// 400 invalid input, 403 foreign conversation, 404 unknown conversation,
// 409 conversation busy, 502 upstream trouble, 503 history unavailable.
package api

// ABOUTME: HTTP middleware resolving user identity from forwarded headers
// ABOUTME: Verifies the forwarded access token when a JWT secret is configured

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Forwarded identity headers set by the hosting environment's proxy.
const (
	HeaderEmail = "X-Forwarded-Email"
	HeaderName  = "X-Forwarded-Preferred-Username"
	HeaderToken = "X-Forwarded-Access-Token"
)

// Middleware resolves the request identity and stores it in the
// context. verifier may be nil, in which case the forwarded headers are
// trusted as-is. Requests without a resolvable identity get 401.
func Middleware(verifier *JWTVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, err := resolveIdentity(r, verifier)
			if err != nil {
				logger.Warn("rejected request with invalid token",
					"path", r.URL.Path, "error", err)
				unauthorized(w, "invalid access token")
				return
			}
			if ident == nil {
				unauthorized(w, "user identity required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

// resolveIdentity builds the identity from the request. With a verifier
// configured the token is authoritative; otherwise the plain headers
// are.
func resolveIdentity(r *http.Request, verifier *JWTVerifier) (*Identity, error) {
	if verifier != nil {
		token := r.Header.Get(HeaderToken)
		if token == "" {
			return nil, nil
		}
		return verifier.Verify(token)
	}

	email := r.Header.Get(HeaderEmail)
	if email == "" {
		return nil, nil
	}
	return &Identity{
		Email: email,
		Name:  r.Header.Get(HeaderName),
	}, nil
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}

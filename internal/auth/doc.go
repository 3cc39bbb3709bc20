// Package auth resolves the asking user's identity from the hosting
// environment.
//
// Identity issuance is out of scope: a trusted proxy in front of the
// gateway authenticates the user and forwards who they are via
// X-Forwarded-Email and X-Forwarded-Preferred-Username headers. When a
// JWT secret is configured, the X-Forwarded-Access-Token header is
// verified as an HS256 token instead and the email claim becomes the
// identity, so a misconfigured proxy cannot spoof users.
//
// Handlers read the resolved identity from the request context:
//
//	ident, ok := auth.FromContext(r.Context())
package auth

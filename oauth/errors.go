// Package oauth implements the AT Protocol OAuth 2.0 client flow: client
// and authorization-server metadata validation, PAR submission with DPoP
// and client-assertion authentication, the authorization-code and
// refresh-token grants, and the session state machine those grants operate
// on.
//
// Generalized from the retrieval corpus's atproto/auth/oauth sketch
// package, which hardcodes a single PDS-session use case and does not
// validate server metadata against the full set of invariants this client
// requires before trusting a server. See doc.go for a worked usage example.
package oauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidClientMetadata is returned when a client metadata document
	// fails validation against section 3's invariants.
	ErrInvalidClientMetadata = errors.New("invalid client metadata")
	// ErrInvalidAuthorizationServer is returned when authorization- or
	// resource-server metadata fails validation.
	ErrInvalidAuthorizationServer = errors.New("invalid authorization server metadata")
	// ErrInvalidState is returned when HandleCallback is given a state
	// token with no matching session.
	ErrInvalidState = errors.New("invalid or expired state token")
	// ErrIssuerMismatch is returned when the callback's iss parameter
	// does not match the session's bound authorization server.
	ErrIssuerMismatch = errors.New("issuer mismatch")
	// ErrSessionNotFound is returned when a session id has no
	// corresponding stored session, or it was found but is no longer
	// usable (expired and not renewable).
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotAuthorized is returned by AuthHeaders when the session has no
	// valid, unexpired token set.
	ErrNotAuthorized = errors.New("session is not authorized")
)

// PARError reports a failed Pushed Authorization Request submission.
type PARError struct {
	StatusCode int
	OAuthError string
	Description string
}

func (e *PARError) Error() string {
	return fmt.Sprintf("oauth: PAR request failed: status=%d error=%q description=%q", e.StatusCode, e.OAuthError, e.Description)
}

// TokenError reports a failed or rejected token response, from either the
// authorization_code or refresh_token grant. RetryAfter carries the
// server's Retry-After value (seconds) when StatusCode is 429 and the
// header was present.
type TokenError struct {
	Reason     string
	OAuthError string
	StatusCode int
	RetryAfter time.Duration
}

func (e *TokenError) Error() string {
	if e.OAuthError != "" {
		return fmt.Sprintf("oauth: token error: %s (error=%q status=%d)", e.Reason, e.OAuthError, e.StatusCode)
	}
	return fmt.Sprintf("oauth: token error: %s (status=%d)", e.Reason, e.StatusCode)
}

// RefreshError reports a refresh attempt failure. RetryPossible indicates
// whether the refresh retry loop (section 4.10) should attempt again.
type RefreshError struct {
	Reason        string
	RetryPossible bool
	Attempts      int
}

func (e *RefreshError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("oauth: refresh failed after %d attempts: %s", e.Attempts, e.Reason)
	}
	return fmt.Sprintf("oauth: refresh failed: %s", e.Reason)
}

// ValidationError reports a failed identity binding check. No function in
// this package currently returns it: Authorize passes binding failures
// through as identity.ValidationError.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "oauth: " + e.Reason
}

package oauth

import (
	"fmt"
	"time"
)

// SessionState distinguishes a session awaiting its authorization-code
// callback from one holding a live token set.
type SessionState string

const (
	SessionPending SessionState = "pending"
	SessionActive  SessionState = "active"
)

// TokenSet holds an access/refresh token pair with its type, scope,
// subject and expiry. Sub must equal the session's DID once both are set;
// Session.setTokens enforces this rather than TokenSet itself.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	Sub          string    `json:"sub"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// expired reports whether the access token is expired, or will expire
// within buffer of now.
func (t *TokenSet) expired(buffer time.Duration) bool {
	if t == nil {
		return true
	}
	return !time.Now().Add(buffer).Before(t.ExpiresAt)
}

// expiryBuffer is subtracted from the access token's actual expiry so
// Authorized (and GetSession's expired-and-not-renewable check) treat a
// token as stale slightly before the server would reject it outright.
// Renewable does not look at expiry.
const expiryBuffer = 30 * time.Second

// Session is the persisted state machine instance for one OAuth flow, from
// PAR submission through token refresh, until removed.
//
// DID and AuthServer are immutable once first set (enforced by bindDID and
// bindAuthServer, which UpdateSession callers use): a callback or refresh
// response that tries
// to change either is a binding violation, not a normal update.
type Session struct {
	ID             string       `json:"id"`
	State          SessionState `json:"state"`
	StateToken     string       `json:"state_token"`
	Handle         string       `json:"handle,omitempty"`
	DID            string       `json:"did,omitempty"`
	PDS            string       `json:"pds,omitempty"`
	AuthServer     string       `json:"auth_server,omitempty"`
	RedirectURI    string       `json:"redirect_uri"`
	Scope          string       `json:"scope"`
	PKCEVerifier   string       `json:"pkce_verifier"`
	DPoPPrivateKey string       `json:"dpop_private_key"`
	DPoPKeyID      string       `json:"dpop_key_id"`
	Tokens         *TokenSet    `json:"tokens,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Authorized reports whether the session holds an unexpired access token.
func (s *Session) Authorized() bool {
	return s.State == SessionActive && s.Tokens != nil && !s.Tokens.expired(expiryBuffer)
}

// Renewable reports whether the session holds a refresh token that could
// be used to obtain a new access token, regardless of the current access
// token's expiry.
func (s *Session) Renewable() bool {
	return s.State == SessionActive && s.Tokens != nil && s.Tokens.RefreshToken != ""
}

// bindDID sets the session's DID the first time it is known, and rejects
// any later attempt to change it to a different value.
func (s *Session) bindDID(did string) error {
	if s.DID == "" {
		s.DID = did
		return nil
	}
	if s.DID != did {
		return fmt.Errorf("oauth: session %s: DID is immutable once bound (have %q, got %q)", s.ID, s.DID, did)
	}
	return nil
}

// bindAuthServer sets the session's authorization server the first time it
// is known, and rejects any later attempt to change it.
func (s *Session) bindAuthServer(authServer string) error {
	if s.AuthServer == "" {
		s.AuthServer = authServer
		return nil
	}
	if s.AuthServer != authServer {
		return fmt.Errorf("oauth: session %s: auth_server is immutable once bound (have %q, got %q)", s.ID, s.AuthServer, authServer)
	}
	return nil
}

// setTokens installs a new token set, enforcing tokens.sub == did.
func (s *Session) setTokens(tok *TokenSet) error {
	if s.DID != "" && tok.Sub != "" && tok.Sub != s.DID {
		return fmt.Errorf("oauth: session %s: token sub %q does not match session DID %q", s.ID, tok.Sub, s.DID)
	}
	s.Tokens = tok
	s.State = SessionActive
	return nil
}

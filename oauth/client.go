package oauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	occrypto "github.com/go-atproto/oauth/crypto"
	"github.com/go-atproto/oauth/dpop"
	"github.com/go-atproto/oauth/httpsafe"
	"github.com/go-atproto/oauth/identity"
	"github.com/go-atproto/oauth/pkce"
	"github.com/go-atproto/oauth/storage"
)

// Config holds everything a Client needs to construct: the client's own
// identity (client_id, redirect URI), storage backend, and the encryption
// key sensitive session fields are sealed under. The client's signing key
// is not part of Config: it is generated on first use and kept, sealed, in
// the Store. Validate is called once by NewClient, matching this
// package's ambient-stack convention of failing fast on misconfiguration
// rather than at first use.
type Config struct {
	ClientID           string
	RedirectURI         string
	Scope               string
	Store               storage.Store
	MasterKey           []byte
	HTTPTimeout         time.Duration
	PLCURL              string
	DefaultTokenLifetime time.Duration
}

// Validate checks that Config has everything required to construct a
// working Client.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("oauth: Config.ClientID is required")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("oauth: Config.RedirectURI is required")
	}
	if c.Store == nil {
		return fmt.Errorf("oauth: Config.Store is required")
	}
	if len(c.MasterKey) != 32 {
		return fmt.Errorf("oauth: Config.MasterKey must be 32 bytes")
	}
	if c.Scope == "" {
		c.Scope = "atproto"
	}
	return nil
}

// Client is the package's public facade: it drives identity resolution,
// PAR submission, the authorization-code and refresh-token grants, and
// session persistence behind a small handle-in/tokens-out surface.
//
// Generalized from the retrieval corpus's OAuthClient (atproto/auth/oauth),
// which hardcodes a single confidential client against a single PDS; this
// type resolves the PDS and authorization server per-account instead.
type Client struct {
	cfg        Config
	http       *httpsafe.Client
	resolver   *identity.Resolver
	sessions   *SessionManager
	dpopKeys   *dpop.KeyPair
	nonces     *dpop.NonceManager
}

// NewClient constructs a Client, loading (or generating and persisting) its
// confidential-client DPoP/client-assertion key pair under
// "atproto:dpop:<client_id>".
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	httpClient := httpsafe.New(cfg.HTTPTimeout)
	resolver := identity.NewResolver(httpClient)
	if cfg.PLCURL != "" {
		resolver.PLCURL = cfg.PLCURL
	}

	keys, err := loadOrCreateClientKeys(ctx, cfg.Store, cfg.MasterKey, cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("oauth: loading client signing key: %w", err)
	}

	nonces := dpop.NewNonceManager(&storeNonceAdapter{store: cfg.Store})

	return &Client{
		cfg:      cfg,
		http:     httpClient,
		resolver: resolver,
		sessions: NewSessionManager(cfg.Store, cfg.MasterKey),
		dpopKeys: keys,
		nonces:   nonces,
	}, nil
}

// AuthorizeParams selects how Authorize locates the account's resource
// server. Exactly one of Handle or PDSURL must be set: Handle drives full
// identity resolution (handle -> DID -> DID document -> PDS), while PDSURL
// is taken as the resource server directly, skipping identity resolution
// entirely, for callers that already know which PDS the account lives on.
type AuthorizeParams struct {
	Handle string
	PDSURL string
}

// Authorize begins a new authorization flow, discovering and validating the
// authorization server, submitting a PAR request, and persisting a pending
// session keyed by a fresh PAR state token. It returns the browser redirect
// URL and the session id the caller should track until HandleCallback
// completes the flow.
func (c *Client) Authorize(ctx context.Context, params AuthorizeParams) (redirectURL, sessionID string, err error) {
	if (params.Handle == "") == (params.PDSURL == "") {
		return "", "", fmt.Errorf("oauth: Authorize requires exactly one of Handle or PDSURL")
	}

	var did identity.DID
	var handle, pds string

	if params.Handle != "" {
		handle = params.Handle
		did, err = c.resolver.ResolveHandle(ctx, handle)
		if err != nil {
			return "", "", fmt.Errorf("oauth: resolving handle: %w", err)
		}
		doc, err := c.resolver.GetDIDInfo(ctx, did)
		if err != nil {
			return "", "", fmt.Errorf("oauth: resolving DID document: %w", err)
		}
		if err := c.resolver.VerifyHandleBinding(doc, mustParseHandle(handle)); err != nil {
			return "", "", err
		}
		pds, err = doc.PDS()
		if err != nil {
			return "", "", fmt.Errorf("oauth: %w", err)
		}
	} else {
		pds = params.PDSURL
	}

	rsMeta, err := FetchResourceServerMetadata(ctx, c.http, pds)
	if err != nil {
		return "", "", err
	}
	issuer := rsMeta.AuthorizationServers[0]

	asMeta, err := FetchAuthServerMetadata(ctx, c.http, issuer)
	if err != nil {
		return "", "", err
	}

	verifier, err := pkce.GenerateVerifier(64)
	if err != nil {
		return "", "", fmt.Errorf("oauth: generating PKCE verifier: %w", err)
	}
	challenge, err := pkce.GenerateChallenge(verifier)
	if err != nil {
		return "", "", fmt.Errorf("oauth: generating PKCE challenge: %w", err)
	}

	s := &Session{
		Handle:       handle,
		PDS:          pds,
		RedirectURI:  c.cfg.RedirectURI,
		Scope:        c.cfg.Scope,
		PKCEVerifier: verifier,
	}
	if did != "" {
		if err := s.bindDID(did.String()); err != nil {
			return "", "", err
		}
	}
	if err := s.bindAuthServer(asMeta.Issuer); err != nil {
		return "", "", err
	}

	id, err := c.sessions.CreateSession(ctx, s)
	if err != nil {
		return "", "", err
	}

	assertionType := ClientAssertionJWTBearer
	assertion, err := NewClientAssertion(c.dpopKeys, c.cfg.ClientID, asMeta.Issuer, c.cfg.DefaultTokenLifetime)
	if err != nil {
		return "", "", err
	}

	parReq := PushedAuthRequest{
		ResponseType:        "code",
		ClientID:            c.cfg.ClientID,
		RedirectURI:          c.cfg.RedirectURI,
		CodeChallenge:        challenge,
		CodeChallengeMethod:  "S256",
		State:                s.StateToken,
		Scope:                c.cfg.Scope,
		ClientAssertionType:  &assertionType,
		ClientAssertion:      &assertion,
	}

	dpopClient := dpop.NewClient(c.dpopKeys, c.nonces)
	parResp, err := SubmitPAR(ctx, c.http, dpopClient, asMeta.PushedAuthorizationRequestEndpoint, parReq)
	if err != nil {
		return "", "", err
	}

	return AuthorizationURL(asMeta.AuthorizationEndpoint, parResp.RequestURI, c.cfg.ClientID), id, nil
}

// HandleCallback completes an authorization flow: it resolves the pending
// session by state token, verifies the callback's iss parameter against
// the session's bound authorization server, exchanges the authorization
// code for a token pair, and activates the session.
func (c *Client) HandleCallback(ctx context.Context, code, state, iss string) (*Session, error) {
	s, err := c.sessions.GetSessionByState(ctx, state)
	if err != nil {
		return nil, err
	}
	if iss != s.AuthServer {
		return nil, fmt.Errorf("%w: callback iss %q does not match session auth_server %q", ErrIssuerMismatch, iss, s.AuthServer)
	}

	asMeta, err := FetchAuthServerMetadata(ctx, c.http, s.AuthServer)
	if err != nil {
		return nil, err
	}

	assertionType := ClientAssertionJWTBearer
	assertion, err := NewClientAssertion(c.dpopKeys, c.cfg.ClientID, s.AuthServer, c.cfg.DefaultTokenLifetime)
	if err != nil {
		return nil, err
	}

	form := InitialTokenRequest{
		GrantType:            "authorization_code",
		Code:                 code,
		RedirectURI:          s.RedirectURI,
		ClientID:             c.cfg.ClientID,
		CodeVerifier:         s.PKCEVerifier,
		ClientAssertionType:  &assertionType,
		ClientAssertion:      &assertion,
	}

	dpopClient := dpop.NewClient(c.dpopKeys, c.nonces)
	tok, err := ExchangeToken(ctx, c.http, dpopClient, asMeta.TokenEndpoint, form, s.DID)
	if err != nil {
		return nil, err
	}

	updated, err := c.sessions.UpdateSession(ctx, s.ID, func(sess *Session) error {
		if err := sess.bindDID(tok.Sub); err != nil {
			return err
		}
		return sess.setTokens(&TokenSet{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			Scope:        tok.Scope,
			Sub:          tok.Sub,
			ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetTokens returns the current token set for a session, refreshing first
// if the access token is expired but the session is renewable.
func (c *Client) GetTokens(ctx context.Context, sessionID string) (*TokenSet, error) {
	s, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Authorized() {
		return s.Tokens, nil
	}
	if !s.Renewable() {
		return nil, ErrNotAuthorized
	}
	if err := c.RefreshToken(ctx, sessionID); err != nil {
		return nil, err
	}
	s, err = c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Tokens, nil
}

// RefreshToken refreshes a session's token pair using its refresh token.
func (c *Client) RefreshToken(ctx context.Context, sessionID string) error {
	s, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !s.Renewable() {
		return ErrNotAuthorized
	}
	asMeta, err := FetchAuthServerMetadata(ctx, c.http, s.AuthServer)
	if err != nil {
		return err
	}
	dpopClient := dpop.NewClient(c.dpopKeys, c.nonces)
	tok, err := RefreshSession(ctx, c.http, dpopClient, asMeta.TokenEndpoint, c.cfg.ClientID, s)
	if err != nil {
		return err
	}
	_, err = c.sessions.UpdateSession(ctx, sessionID, func(sess *Session) error {
		return sess.setTokens(&TokenSet{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			Scope:        tok.Scope,
			Sub:          tok.Sub,
			ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
		})
	})
	return err
}

// AuthHeaders returns the Authorization and DPoP headers required to call
// a protected resource at method/url using the session's current access
// token, refreshing first if necessary.
func (c *Client) AuthHeaders(ctx context.Context, sessionID, method, url string) (map[string]string, error) {
	tokens, err := c.GetTokens(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	dpopClient := dpop.NewClient(c.dpopKeys, c.nonces)
	proof, err := dpopClient.GenerateProof(method, url, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization": tokens.TokenType + " " + tokens.AccessToken,
		"DPoP":          proof,
	}, nil
}

// Authorized reports whether sessionID currently holds an unexpired
// access token, without attempting a refresh.
func (c *Client) Authorized(ctx context.Context, sessionID string) bool {
	s, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return false
	}
	return s.Authorized()
}

// RemoveSession deletes a session's persisted state.
func (c *Client) RemoveSession(ctx context.Context, sessionID string) error {
	return c.sessions.RemoveSession(ctx, sessionID)
}

func mustParseHandle(raw string) identity.Handle {
	h, err := identity.ParseHandle(raw)
	if err != nil {
		return identity.Handle(raw)
	}
	return h
}

const clientKeyLifetime = 0 // no expiry: the client's own signing key is long-lived

func clientKeyStorageKey(clientID string) string {
	return "atproto:dpop:" + clientID
}

// loadOrCreateClientKeys loads the confidential client's persisted ES256
// signing key, generating and storing a new one on first use. The raw
// private key bytes are sealed with envelope.Seal under context
// "client-key:<client_id>".
func loadOrCreateClientKeys(ctx context.Context, store storage.Store, masterKey []byte, clientID string) (*dpop.KeyPair, error) {
	key := clientKeyStorageKey(clientID)
	raw, err := store.Get(ctx, key)
	if err == nil {
		priv, err := decodeSealedPrivateKey(masterKey, clientID, raw)
		if err != nil {
			return nil, err
		}
		return dpop.ImportKeyPair(priv)
	}
	if err != storage.ErrNotFound {
		return nil, err
	}

	priv, err := occrypto.GeneratePrivateKeyP256()
	if err != nil {
		return nil, err
	}
	sealed, err := encodeSealedPrivateKey(masterKey, clientID, priv)
	if err != nil {
		return nil, err
	}
	if err := store.Set(ctx, key, sealed, clientKeyLifetime); err != nil {
		return nil, err
	}
	return dpop.ImportKeyPair(priv)
}

func encodeSealedPrivateKey(masterKey []byte, clientID string, priv *occrypto.PrivateKeyP256) (string, error) {
	return envelopeSealString(masterKey, "client-key:"+clientID, base64.RawStdEncoding.EncodeToString(priv.Bytes()))
}

func decodeSealedPrivateKey(masterKey []byte, clientID, sealed string) (*occrypto.PrivateKeyP256, error) {
	plaintext, err := envelopeOpenString(masterKey, "client-key:"+clientID, sealed)
	if err != nil {
		return nil, err
	}
	raw, err := base64.RawStdEncoding.DecodeString(plaintext)
	if err != nil {
		return nil, fmt.Errorf("oauth: decoding stored client key: %w", err)
	}
	return occrypto.ParsePrivateBytesP256(raw)
}

// storeNonceAdapter implements dpop.NonceStore over storage.Store,
// translating the int-seconds/bool-return contract dpop's package-local
// nonce store expects into the context-aware storage.Store surface every
// other persisted value in this library goes through.
type storeNonceAdapter struct {
	store storage.Store
}

func (a *storeNonceAdapter) Set(key, value string, ttlSeconds int) error {
	return a.store.Set(context.Background(), key, value, time.Duration(ttlSeconds)*time.Second)
}

func (a *storeNonceAdapter) Get(key string) (string, bool, error) {
	v, err := a.store.Get(context.Background(), key)
	if err == storage.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

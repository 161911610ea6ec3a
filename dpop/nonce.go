package dpop

import (
	"net/http"
	"net/url"
)

// NonceManager tracks the most recent DPoP nonce challenge issued by each
// authorization/resource server, keyed by canonicalized server origin.
// Implementations are backed by storage.Store so nonce state survives
// across processes and is safe for concurrent access; this type itself
// only knows how to derive keys and read/write through that interface.
type NonceManager struct {
	store NonceStore
}

// NonceStore is the minimal storage contract the nonce manager needs: a
// TTL-governed string key/value store. storage.Store does not satisfy it
// directly; the oauth package adapts it (storeNonceAdapter).
type NonceStore interface {
	Set(key, value string, ttlSeconds int) error
	Get(key string) (string, bool, error)
}

// DefaultNonceLifetime is the TTL, in seconds, applied to every stored
// nonce; there is no per-call override.
const DefaultNonceLifetime = 300

// NewNonceManager constructs a NonceManager backed by store.
func NewNonceManager(store NonceStore) *NonceManager {
	return &NonceManager{store: store}
}

// CanonicalOrigin derives the per-server nonce key from a URL: scheme +
// host + (port, if non-default for the scheme).
func CanonicalOrigin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	origin := u.Scheme + "://" + u.Hostname()
	if port := u.Port(); port != "" {
		if !((u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80")) {
			origin += ":" + port
		}
	}
	return origin, nil
}

func nonceKey(origin string) string {
	return "atproto:nonce:" + origin
}

// Update stores a new nonce for the server identified by rawURL, with the
// default TTL.
func (m *NonceManager) Update(rawURL, nonce string) error {
	origin, err := CanonicalOrigin(rawURL)
	if err != nil {
		return err
	}
	return m.store.Set(nonceKey(origin), nonce, DefaultNonceLifetime)
}

// Get returns the currently stored nonce for the server identified by
// rawURL, if any and unexpired.
func (m *NonceManager) Get(rawURL string) (string, bool, error) {
	origin, err := CanonicalOrigin(rawURL)
	if err != nil {
		return "", false, err
	}
	return m.store.Get(nonceKey(origin))
}

// AbsorbResponseHeaders reads a "DPoP-Nonce" response header (matched
// case-insensitively, as net/http.Header already does) and stores it
// against rawURL's canonical origin if present.
func (m *NonceManager) AbsorbResponseHeaders(rawURL string, headers http.Header) error {
	nonce := headers.Get("DPoP-Nonce")
	if nonce == "" {
		return nil
	}
	return m.Update(rawURL, nonce)
}

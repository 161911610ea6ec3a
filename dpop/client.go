package dpop

import (
	"net/http"
)

// Client is the facade binding the DPoP key manager, proof generator, and
// nonce manager together: it knows how to produce a proof for a request,
// auto-fetching the current nonce for the target server, and how to absorb
// a DPoP-Nonce challenge from a response.
type Client struct {
	Keys   *KeyPair
	Nonces *NonceManager
}

// NewClient constructs a DPoP Client for a given key pair and nonce store.
func NewClient(keys *KeyPair, nonces *NonceManager) *Client {
	return &Client{Keys: keys, Nonces: nonces}
}

// GenerateProof builds a DPoP proof for method/url, automatically attaching
// the currently stored nonce for that server's origin (if any) and,
// when accessToken is non-empty, the "ath" access-token-hash claim.
func (c *Client) GenerateProof(method, rawURL, accessToken string) (string, error) {
	nonce, _, err := c.Nonces.Get(rawURL)
	if err != nil {
		return "", wrapErr("nonce_lookup", err)
	}
	proof, err := GenerateProof(c.Keys, method, rawURL, nonce, accessToken, accessToken != "")
	if err != nil {
		return "", err
	}
	return proof, nil
}

// ProcessResponse absorbs a DPoP-Nonce challenge header from an HTTP
// response for server rawURL, updating the nonce manager.
func (c *Client) ProcessResponse(rawURL string, headers http.Header) error {
	if err := c.Nonces.AbsorbResponseHeaders(rawURL, headers); err != nil {
		return wrapErr("nonce_absorb", err)
	}
	return nil
}

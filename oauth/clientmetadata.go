package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/go-atproto/oauth/crypto"
	"github.com/go-atproto/oauth/httpsafe"
)

// ClientAssertionJWTBearer is the fixed client_assertion_type value
// confidential clients must send, per RFC 7523.
const ClientAssertionJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// JWKS is a JSON Web Key Set as embedded in client metadata.
type JWKS struct {
	Keys []crypto.JWK `json:"keys"`
}

// ClientMetadata is the client's self-describing metadata document, fetched
// by the authorization server from the client_id URL, and validated locally
// by this client against the same invariants per section 3.
//
// Grounded on atproto/auth/oauth/types.go's ClientMetadata, generalized to
// enforce every field invariant section 3 names (the teacher's Validate
// does not check client_uri/logo_uri/tos_uri/policy_uri host/scheme rules,
// the native-application_type redirect URI grammar, or JWKS key shape).
type ClientMetadata struct {
	ClientID                    string   `json:"client_id"`
	ApplicationType              *string  `json:"application_type,omitempty"`
	GrantTypes                  []string `json:"grant_types"`
	Scope                        string   `json:"scope"`
	ResponseTypes                []string `json:"response_types"`
	RedirectURIs                 []string `json:"redirect_uris"`
	TokenEndpointAuthMethod       string   `json:"token_endpoint_auth_method"`
	TokenEndpointAuthSigningAlg  *string  `json:"token_endpoint_auth_signing_alg,omitempty"`
	DPoPBoundAccessTokens        bool     `json:"dpop_bound_access_tokens"`
	JWKS                         *JWKS    `json:"jwks,omitempty"`
	JWKSURI                      *string  `json:"jwks_uri,omitempty"`
	ClientName                   *string  `json:"client_name,omitempty"`
	ClientURI                    *string  `json:"client_uri,omitempty"`
	LogoURI                      *string  `json:"logo_uri,omitempty"`
	TosURI                       *string  `json:"tos_uri,omitempty"`
	PolicyURI                    *string  `json:"policy_uri,omitempty"`
}

// IsConfidential reports whether this client metadata declares a
// confidential client (private_key_jwt auth with a usable key set).
func (m *ClientMetadata) IsConfidential() bool {
	return m.TokenEndpointAuthMethod == "private_key_jwt" &&
		((m.JWKS != nil && len(m.JWKS.Keys) > 0) || m.JWKSURI != nil)
}

func (m *ClientMetadata) applicationType() string {
	if m.ApplicationType == nil {
		return "web"
	}
	return *m.ApplicationType
}

// FetchClientMetadata fetches and validates a client metadata document: the
// document's own client_id field must equal rawURL.
func FetchClientMetadata(ctx context.Context, client *httpsafe.Client, rawURL string) (*ClientMetadata, error) {
	status, _, body, err := client.Get(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrInvalidClientMetadata, rawURL, err)
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: fetching %s: status=%d", ErrInvalidClientMetadata, rawURL, status)
	}
	var m ClientMetadata
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing JSON: %v", ErrInvalidClientMetadata, err)
	}
	if err := m.Validate(rawURL); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate enforces every client-metadata invariant from section 3 against
// clientID, the URL the document claims (and was fetched from).
func (m *ClientMetadata) Validate(clientID string) error {
	if m.ClientID == "" || m.ClientID != clientID {
		return fmt.Errorf("%w: client_id must equal the fetched URL", ErrInvalidClientMetadata)
	}
	clientIDURL, err := url.Parse(m.ClientID)
	if err != nil {
		return fmt.Errorf("%w: client_id is not a valid URL: %v", ErrInvalidClientMetadata, err)
	}
	if clientIDURL.Scheme != "https" && !(clientIDURL.Scheme == "http" && clientIDURL.Hostname() == "localhost") {
		return fmt.Errorf("%w: client_id must be an https URL or http://localhost", ErrInvalidClientMetadata)
	}

	appType := m.applicationType()
	if appType != "web" && appType != "native" {
		return fmt.Errorf("%w: application_type must be 'web' or 'native'", ErrInvalidClientMetadata)
	}

	if !slices.Contains(m.GrantTypes, "authorization_code") {
		return fmt.Errorf("%w: grant_types must include 'authorization_code'", ErrInvalidClientMetadata)
	}
	for _, gt := range m.GrantTypes {
		if gt != "authorization_code" && gt != "refresh_token" {
			return fmt.Errorf("%w: unsupported grant_type %q", ErrInvalidClientMetadata, gt)
		}
	}

	if !slices.Contains(m.ResponseTypes, "code") {
		return fmt.Errorf("%w: response_types must include 'code'", ErrInvalidClientMetadata)
	}

	scopes := strings.Fields(m.Scope)
	if !slices.Contains(scopes, "atproto") {
		return fmt.Errorf("%w: scope must include 'atproto'", ErrInvalidClientMetadata)
	}

	if len(m.RedirectURIs) == 0 {
		return fmt.Errorf("%w: redirect_uris must be non-empty", ErrInvalidClientMetadata)
	}
	for _, ru := range m.RedirectURIs {
		if err := validateRedirectURI(ru, appType, clientIDURL); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidClientMetadata, err)
		}
	}

	if !m.DPoPBoundAccessTokens {
		return fmt.Errorf("%w: dpop_bound_access_tokens must be true", ErrInvalidClientMetadata)
	}

	if m.TokenEndpointAuthMethod == "private_key_jwt" {
		if m.TokenEndpointAuthSigningAlg == nil || *m.TokenEndpointAuthSigningAlg != "ES256" {
			return fmt.Errorf("%w: token_endpoint_auth_signing_alg must be 'ES256' for private_key_jwt", ErrInvalidClientMetadata)
		}
		hasJWKS := m.JWKS != nil
		hasJWKSURI := m.JWKSURI != nil
		if hasJWKS == hasJWKSURI {
			return fmt.Errorf("%w: exactly one of jwks or jwks_uri must be present for private_key_jwt", ErrInvalidClientMetadata)
		}
		if hasJWKS {
			for _, jwk := range m.JWKS.Keys {
				if jwk.KeyID == nil || *jwk.KeyID == "" {
					return fmt.Errorf("%w: jwks entries must have a kid", ErrInvalidClientMetadata)
				}
				if jwk.Use != "sig" {
					return fmt.Errorf("%w: jwks entries must declare use=sig", ErrInvalidClientMetadata)
				}
			}
		}
	} else if m.TokenEndpointAuthMethod != "" && m.TokenEndpointAuthMethod != "none" {
		return fmt.Errorf("%w: unsupported token_endpoint_auth_method %q", ErrInvalidClientMetadata, m.TokenEndpointAuthMethod)
	}

	if m.ClientURI != nil {
		cu, err := url.Parse(*m.ClientURI)
		if err != nil || cu.Hostname() != clientIDURL.Hostname() {
			return fmt.Errorf("%w: client_uri must share a host with client_id", ErrInvalidClientMetadata)
		}
	}
	for _, httpsURI := range []*string{m.LogoURI, m.TosURI, m.PolicyURI} {
		if httpsURI == nil {
			continue
		}
		u, err := url.Parse(*httpsURI)
		if err != nil || u.Scheme != "https" {
			return fmt.Errorf("%w: logo_uri/tos_uri/policy_uri must be https URLs", ErrInvalidClientMetadata)
		}
	}

	return nil
}

func validateRedirectURI(raw, appType string, clientIDURL *url.URL) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri %q: %w", raw, err)
	}

	if appType == "web" {
		if u.Scheme == "https" && u.Hostname() == clientIDURL.Hostname() {
			return nil
		}
		if u.Scheme == "http" && u.Hostname() == "127.0.0.1" {
			return nil
		}
		return fmt.Errorf("web redirect_uri %q must be https on client_id's host, or http://127.0.0.1", raw)
	}

	// native
	if u.Scheme == "https" {
		return nil
	}
	if u.Scheme == "http" && (u.Hostname() == "127.0.0.1" || u.Hostname() == "::1") {
		return nil
	}
	reversed := reverseDNSLabels(clientIDURL.Hostname())
	if u.Scheme == reversed && (u.Path == "/" || u.Path == "") {
		return nil
	}
	return fmt.Errorf("native redirect_uri %q must be https, loopback http, or the reverse-DNS custom scheme for client_id's host", raw)
}

func reverseDNSLabels(host string) string {
	labels := strings.Split(host, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return strings.Join(labels, ".")
}

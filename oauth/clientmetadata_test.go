package oauth

import (
	"testing"

	occrypto "github.com/go-atproto/oauth/crypto"
	"github.com/stretchr/testify/assert"
)

func validClientMetadata() *ClientMetadata {
	sigAlg := "ES256"
	return &ClientMetadata{
		ClientID:              "https://app.example.com/client-metadata.json",
		GrantTypes:            []string{"authorization_code", "refresh_token"},
		Scope:                 "atproto transition:generic",
		ResponseTypes:         []string{"code"},
		RedirectURIs:          []string{"https://app.example.com/callback"},
		TokenEndpointAuthMethod: "none",
		DPoPBoundAccessTokens: true,
		TokenEndpointAuthSigningAlg: &sigAlg,
	}
}

func TestClientMetadataValidateAcceptsWellFormed(t *testing.T) {
	m := validClientMetadata()
	assert.NoError(t, m.Validate(m.ClientID))
}

func TestClientMetadataValidateRejectsClientIDMismatch(t *testing.T) {
	m := validClientMetadata()
	assert.Error(t, m.Validate("https://other.example.com/client-metadata.json"))
}

func TestClientMetadataValidateRejectsMissingAtprotoScope(t *testing.T) {
	m := validClientMetadata()
	m.Scope = "transition:generic"
	assert.Error(t, m.Validate(m.ClientID))
}

func TestClientMetadataValidateRejectsNonDPoPBound(t *testing.T) {
	m := validClientMetadata()
	m.DPoPBoundAccessTokens = false
	assert.Error(t, m.Validate(m.ClientID))
}

func TestClientMetadataValidateWebRedirectMustShareHost(t *testing.T) {
	m := validClientMetadata()
	m.RedirectURIs = []string{"https://attacker.example.com/callback"}
	assert.Error(t, m.Validate(m.ClientID))
}

func TestClientMetadataValidateWebAllowsLoopbackHTTP(t *testing.T) {
	m := validClientMetadata()
	m.RedirectURIs = []string{"http://127.0.0.1:8080/callback"}
	assert.NoError(t, m.Validate(m.ClientID))
}

func TestClientMetadataValidateNativeAllowsReverseDNSScheme(t *testing.T) {
	m := validClientMetadata()
	native := "native"
	m.ApplicationType = &native
	m.RedirectURIs = []string{"com.example.app:/"}
	assert.NoError(t, m.Validate(m.ClientID))
}

func TestClientMetadataValidateConfidentialRequiresES256AndKeys(t *testing.T) {
	m := validClientMetadata()
	m.TokenEndpointAuthMethod = "private_key_jwt"
	m.TokenEndpointAuthSigningAlg = nil
	assert.Error(t, m.Validate(m.ClientID))

	alg := "ES256"
	m.TokenEndpointAuthSigningAlg = &alg
	assert.Error(t, m.Validate(m.ClientID)) // still missing jwks/jwks_uri

	m.JWKS = &JWKS{Keys: []occrypto.JWK{}}
	assert.NoError(t, m.Validate(m.ClientID))
}

func TestClientMetadataIsConfidential(t *testing.T) {
	m := validClientMetadata()
	assert.False(t, m.IsConfidential())

	m.TokenEndpointAuthMethod = "private_key_jwt"
	m.JWKS = &JWKS{Keys: []occrypto.JWK{{}}}
	assert.True(t, m.IsConfidential())
}

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/go-atproto/oauth/httpsafe"
	"github.com/go-atproto/oauth/originurl"
)

// ResourceServerMetadata is the `.well-known/oauth-protected-resource`
// document served by a PDS, naming the authorization server it delegates
// to.
type ResourceServerMetadata struct {
	AuthorizationServers []string `json:"authorization_servers"`
}

// FetchResourceServerMetadata retrieves and validates a PDS's resource
// server metadata: it must name exactly one authorization server, and that
// entry must be a valid origin URL.
func FetchResourceServerMetadata(ctx context.Context, client *httpsafe.Client, pds string) (*ResourceServerMetadata, error) {
	url := pds + "/.well-known/oauth-protected-resource"
	status, _, body, err := client.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching resource server metadata: %v", ErrInvalidAuthorizationServer, err)
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: fetching resource server metadata: status=%d", ErrInvalidAuthorizationServer, status)
	}
	var m ResourceServerMetadata
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing resource server metadata: %v", ErrInvalidAuthorizationServer, err)
	}
	if len(m.AuthorizationServers) != 1 {
		return nil, fmt.Errorf("%w: authorization_servers must have exactly one entry", ErrInvalidAuthorizationServer)
	}
	if err := originurl.Validate(m.AuthorizationServers[0]); err != nil {
		return nil, fmt.Errorf("%w: authorization_servers[0] is not a valid origin URL: %v", ErrInvalidAuthorizationServer, err)
	}
	return &m, nil
}

// AuthServerMetadata is the authorization server's
// `.well-known/oauth-authorization-server` document.
//
// Grounded on atproto/auth/oauth/types.go's AuthServerMetadata /
// Validate, generalized so every field invariant of section 3 is checked
// (the teacher's Validate skips the "excludes none" half of the
// token_endpoint_auth_signing_alg_values_supported check). The document's
// issuer is compared once, by FetchAuthServerMetadata, against the issuer
// the metadata URL was built from; Validate itself only checks that the
// issuer is a valid origin URL.
type AuthServerMetadata struct {
	Issuer                                      string   `json:"issuer"`
	AuthorizationEndpoint                       string   `json:"authorization_endpoint"`
	TokenEndpoint                                string   `json:"token_endpoint"`
	PushedAuthorizationRequestEndpoint           string   `json:"pushed_authorization_request_endpoint"`
	ResponseTypesSupported                       []string `json:"response_types_supported"`
	GrantTypesSupported                          []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported                []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported            []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValuesSupported   []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	DPoPSigningAlgValuesSupported                []string `json:"dpop_signing_alg_values_supported"`
	ScopesSupported                              []string `json:"scopes_supported"`
	AuthorizationResponseISSParameterSupported   bool     `json:"authorization_response_iss_parameter_supported"`
	RequirePushedAuthorizationRequests           bool     `json:"require_pushed_authorization_requests"`
	ClientIDMetadataDocumentSupported            bool     `json:"client_id_metadata_document_supported"`
}

// FetchAuthServerMetadata retrieves and validates an authorization server's
// metadata document, requiring its issuer field to equal issuer exactly.
func FetchAuthServerMetadata(ctx context.Context, client *httpsafe.Client, issuer string) (*AuthServerMetadata, error) {
	url := issuer + "/.well-known/oauth-authorization-server"
	status, _, body, err := client.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching authorization server metadata: %v", ErrInvalidAuthorizationServer, err)
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: fetching authorization server metadata: status=%d", ErrInvalidAuthorizationServer, status)
	}
	var m AuthServerMetadata
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing authorization server metadata: %v", ErrInvalidAuthorizationServer, err)
	}
	if m.Issuer != issuer {
		return nil, fmt.Errorf("%w: issuer %q does not match requested %q", ErrInvalidAuthorizationServer, m.Issuer, issuer)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate enforces every authorization-server metadata invariant from
// section 3.
func (m *AuthServerMetadata) Validate() error {
	if err := originurl.Validate(m.Issuer); err != nil {
		return fmt.Errorf("%w: issuer is not a valid origin URL: %v", ErrInvalidAuthorizationServer, err)
	}
	for _, httpsURL := range []string{m.AuthorizationEndpoint, m.TokenEndpoint, m.PushedAuthorizationRequestEndpoint} {
		if len(httpsURL) < 8 || httpsURL[:8] != "https://" {
			return fmt.Errorf("%w: endpoint URLs must be https", ErrInvalidAuthorizationServer)
		}
	}
	if !slices.Contains(m.ResponseTypesSupported, "code") {
		return fmt.Errorf("%w: response_types_supported must include 'code'", ErrInvalidAuthorizationServer)
	}
	if !slices.Contains(m.GrantTypesSupported, "authorization_code") || !slices.Contains(m.GrantTypesSupported, "refresh_token") {
		return fmt.Errorf("%w: grant_types_supported must include authorization_code and refresh_token", ErrInvalidAuthorizationServer)
	}
	if !slices.Contains(m.CodeChallengeMethodsSupported, "S256") {
		return fmt.Errorf("%w: code_challenge_methods_supported must include S256", ErrInvalidAuthorizationServer)
	}
	if !slices.Contains(m.TokenEndpointAuthMethodsSupported, "private_key_jwt") || !slices.Contains(m.TokenEndpointAuthMethodsSupported, "none") {
		return fmt.Errorf("%w: token_endpoint_auth_methods_supported must include private_key_jwt and none", ErrInvalidAuthorizationServer)
	}
	if !slices.Contains(m.TokenEndpointAuthSigningAlgValuesSupported, "ES256") {
		return fmt.Errorf("%w: token_endpoint_auth_signing_alg_values_supported must include ES256", ErrInvalidAuthorizationServer)
	}
	if slices.Contains(m.TokenEndpointAuthSigningAlgValuesSupported, "none") {
		return fmt.Errorf("%w: token_endpoint_auth_signing_alg_values_supported must not include 'none'", ErrInvalidAuthorizationServer)
	}
	if !slices.Contains(m.DPoPSigningAlgValuesSupported, "ES256") {
		return fmt.Errorf("%w: dpop_signing_alg_values_supported must include ES256", ErrInvalidAuthorizationServer)
	}
	if !slices.Contains(m.ScopesSupported, "atproto") {
		return fmt.Errorf("%w: scopes_supported must include atproto", ErrInvalidAuthorizationServer)
	}
	if !m.AuthorizationResponseISSParameterSupported {
		return fmt.Errorf("%w: authorization_response_iss_parameter_supported must be true", ErrInvalidAuthorizationServer)
	}
	if !m.RequirePushedAuthorizationRequests {
		return fmt.Errorf("%w: require_pushed_authorization_requests must be true", ErrInvalidAuthorizationServer)
	}
	if !m.ClientIDMetadataDocumentSupported {
		return fmt.Errorf("%w: client_id_metadata_document_supported must be true", ErrInvalidAuthorizationServer)
	}
	return nil
}

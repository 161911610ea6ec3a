package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-atproto/oauth/dpop"
	"github.com/go-atproto/oauth/httpsafe"
	"github.com/google/go-querystring/query"
)

// InitialTokenRequest is the authorization_code grant form body.
//
// Grounded on atproto/auth/oauth/types.go's InitialTokenRequest, with the
// addition of the optional client-assertion fields the teacher's single
// hardcoded confidential-client flow does not need to make optional.
type InitialTokenRequest struct {
	GrantType           string  `url:"grant_type"`
	Code                string  `url:"code"`
	RedirectURI         string  `url:"redirect_uri"`
	ClientID            string  `url:"client_id"`
	CodeVerifier        string  `url:"code_verifier"`
	ClientAssertionType *string `url:"client_assertion_type,omitempty"`
	ClientAssertion     *string `url:"client_assertion,omitempty"`
}

// RefreshTokenRequest is the refresh_token grant form body.
type RefreshTokenRequest struct {
	GrantType           string  `url:"grant_type"`
	RefreshToken        string  `url:"refresh_token"`
	ClientID            string  `url:"client_id"`
	ClientAssertionType *string `url:"client_assertion_type,omitempty"`
	ClientAssertion     *string `url:"client_assertion,omitempty"`
}

// TokenResponse is the authorization server's token endpoint success body.
//
// Grounded on atproto/auth/oauth/types.go's TokenResponse.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	Sub          string `json:"sub"`
}

// ExchangeToken posts a form-encoded grant request (either
// InitialTokenRequest or RefreshTokenRequest) to endpoint, handling the
// single use_dpop_nonce rechallenge retry, and validates the strict
// response shape required by the token-exchange step: token_type must be
// "DPoP", access_token must be present, expires_in must be positive, scope
// must include "atproto", and sub must equal expectedSub when that is
// non-empty. A missing refresh_token is accepted.
//
// Grounded on atproto/auth/oauth/oauth.go's SendInitialTokenRequest,
// generalized to accept either grant body and to validate the response
// fully rather than only decoding it.
func ExchangeToken(ctx context.Context, httpClient *httpsafe.Client, dpopClient *dpop.Client, endpoint string, form interface{}, expectedSub string) (*TokenResponse, error) {
	vals, err := query.Values(form)
	if err != nil {
		return nil, fmt.Errorf("oauth: encoding token request: %w", err)
	}
	body := []byte(vals.Encode())

	var status int
	var respBody []byte
	var respHeaders http.Header

	for attempt := 0; attempt < 2; attempt++ {
		proof, err := dpopClient.GenerateProof("POST", endpoint, "")
		if err != nil {
			return nil, fmt.Errorf("oauth: generating token DPoP proof: %w", err)
		}

		s, h, b, err := httpClient.Post(ctx, endpoint, "application/x-www-form-urlencoded", body, map[string]string{"DPoP": proof})
		if err != nil {
			return nil, fmt.Errorf("oauth: submitting token request: %w", err)
		}
		status, respBody, respHeaders = s, b, h

		if err := dpopClient.ProcessResponse(endpoint, h); err != nil {
			slog.Warn("failed to absorb DPoP-Nonce from token response", "err", err)
		}

		if status == 400 && isUseDPoPNonce(respBody) {
			slog.Debug("token request challenged for DPoP nonce, retrying", "endpoint", endpoint)
			continue
		}
		break
	}

	if status != 200 {
		var errBody struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(respBody, &errBody)
		tokErr := &TokenError{Reason: errBody.ErrorDescription, OAuthError: errBody.Error, StatusCode: status}
		if status == http.StatusTooManyRequests {
			if d, ok := parseRetryAfterSeconds(respHeaders.Get("Retry-After")); ok {
				tokErr.RetryAfter = d
			}
		}
		return nil, tokErr
	}

	var tok TokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return nil, fmt.Errorf("oauth: decoding token response: %w", err)
	}
	if err := validateTokenResponse(&tok, expectedSub); err != nil {
		return nil, err
	}
	return &tok, nil
}

func validateTokenResponse(tok *TokenResponse, expectedSub string) error {
	if tok.TokenType != "DPoP" {
		return &TokenError{Reason: fmt.Sprintf("token_type must be 'DPoP', got %q", tok.TokenType)}
	}
	if tok.AccessToken == "" {
		return &TokenError{Reason: "access_token is missing"}
	}
	if tok.ExpiresIn <= 0 {
		return &TokenError{Reason: "expires_in must be positive"}
	}
	if !slices.Contains(strings.Fields(tok.Scope), "atproto") {
		return &TokenError{Reason: fmt.Sprintf("scope %q does not include required 'atproto'", tok.Scope)}
	}
	if expectedSub != "" && tok.Sub != expectedSub {
		return &TokenError{Reason: fmt.Sprintf("sub %q does not match expected DID %q", tok.Sub, expectedSub)}
	}
	return nil
}

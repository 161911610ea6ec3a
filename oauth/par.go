package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-atproto/oauth/dpop"
	"github.com/go-atproto/oauth/httpsafe"
	"github.com/google/go-querystring/query"
)

// PushedAuthRequest is the PAR form body, grounded on
// atproto/auth/oauth/types.go's PushedAuthRequest, with the optional
// Prompt field carried forward from that struct (see SPEC_FULL.md Domain
// Stack). The DPoP proof is not a field of this struct: SubmitPAR sends it
// as the DPoP header, not as a form field.
type PushedAuthRequest struct {
	ResponseType        string  `url:"response_type"`
	ClientID             string  `url:"client_id"`
	RedirectURI          string  `url:"redirect_uri"`
	CodeChallenge        string  `url:"code_challenge"`
	CodeChallengeMethod  string  `url:"code_challenge_method"`
	State                string  `url:"state"`
	Scope                string  `url:"scope"`
	LoginHint            *string `url:"login_hint,omitempty"`
	Prompt               *string `url:"prompt,omitempty"`
	Nonce                *string `url:"nonce,omitempty"`
	ClientAssertionType  *string `url:"client_assertion_type,omitempty"`
	ClientAssertion      *string `url:"client_assertion,omitempty"`
}

// PushedAuthResponse is the PAR endpoint's success response body.
type PushedAuthResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}

// SubmitPAR posts a PAR request to endpoint, handling the single
// use_dpop_nonce rechallenge retry required by section 4.7.
//
// Grounded on atproto/auth/oauth/oauth.go's SendAuthRequest 2-iteration
// retry loop, generalized: the teacher always signs a client assertion
// unconditionally; this takes the assertion (or none, for public clients)
// as an already-built optional field on req.
func SubmitPAR(ctx context.Context, httpClient *httpsafe.Client, dpopClient *dpop.Client, endpoint string, req PushedAuthRequest) (*PushedAuthResponse, error) {
	vals, err := query.Values(req)
	if err != nil {
		return nil, fmt.Errorf("oauth: encoding PAR request: %w", err)
	}
	body := []byte(vals.Encode())

	var status int
	var respBody []byte
	var headers http.Header

	for attempt := 0; attempt < 2; attempt++ {
		proof, err := dpopClient.GenerateProof("POST", endpoint, "")
		if err != nil {
			return nil, fmt.Errorf("oauth: generating PAR DPoP proof: %w", err)
		}

		s, h, b, err := httpClient.Post(ctx, endpoint, "application/x-www-form-urlencoded", body, map[string]string{"DPoP": proof})
		if err != nil {
			return nil, fmt.Errorf("oauth: submitting PAR request: %w", err)
		}
		status, respBody = s, b
		headers = h

		if err := dpopClient.ProcessResponse(endpoint, headers); err != nil {
			slog.Warn("failed to absorb DPoP-Nonce from PAR response", "err", err)
		}

		if status == 400 && isUseDPoPNonce(respBody) {
			slog.Debug("PAR request challenged for DPoP nonce, retrying", "endpoint", endpoint)
			continue
		}
		break
	}

	if status != 201 {
		var errBody struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(respBody, &errBody)
		return nil, &PARError{StatusCode: status, OAuthError: errBody.Error, Description: errBody.ErrorDescription}
	}

	var parResp PushedAuthResponse
	if err := json.Unmarshal(respBody, &parResp); err != nil {
		return nil, fmt.Errorf("oauth: decoding PAR response: %w", err)
	}
	if parResp.ExpiresIn <= 0 || parResp.RequestURI == "" {
		return nil, &PARError{StatusCode: status, Description: "malformed PAR success response"}
	}
	return &parResp, nil
}

// AuthorizationURL builds the browser redirect URL for a completed PAR:
// authorize_endpoint?request_uri=<enc>&client_id=<enc>.
func AuthorizationURL(authorizeEndpoint, requestURI, clientID string) string {
	v := url.Values{}
	v.Set("request_uri", requestURI)
	v.Set("client_id", clientID)
	return authorizeEndpoint + "?" + v.Encode()
}

func isUseDPoPNonce(body []byte) bool {
	var errBody struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errBody); err != nil {
		return false
	}
	return errBody.Error == "use_dpop_nonce"
}

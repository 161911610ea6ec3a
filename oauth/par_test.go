package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-atproto/oauth/dpop"
	"github.com/go-atproto/oauth/httpsafe"
	"github.com/go-atproto/oauth/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDPoPClient(t *testing.T) *dpop.Client {
	keys, err := dpop.GenerateKeyPair()
	require.NoError(t, err)
	return dpop.NewClient(keys, dpop.NewNonceManager(newMemoryNonceStore()))
}

func newMemoryNonceStore() *storeNonceAdapter {
	return &storeNonceAdapter{store: storage.NewMemory()}
}

func validPAR() PushedAuthRequest {
	return PushedAuthRequest{
		ResponseType:        "code",
		ClientID:             "https://app.example.com/client-metadata.json",
		RedirectURI:          "https://app.example.com/callback",
		CodeChallenge:        "challenge",
		CodeChallengeMethod:  "S256",
		State:                "state-123",
		Scope:                "atproto",
	}
}

func TestSubmitPARRetriesOnUseDPoPNonce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("DPoP-Nonce", "server-nonce")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "use_dpop_nonce"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(PushedAuthResponse{RequestURI: "urn:ietf:params:oauth:request_uri:abc", ExpiresIn: 60})
	}))
	defer srv.Close()

	httpClient := httpsafe.New(5 * time.Second)
	dpopClient := newTestDPoPClient(t)

	resp, err := SubmitPAR(context.Background(), httpClient, dpopClient, srv.URL, validPAR())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "urn:ietf:params:oauth:request_uri:abc", resp.RequestURI)
	assert.Equal(t, 60, resp.ExpiresIn)
}

func TestSubmitPARReturnsPARErrorOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_request", "error_description": "bad redirect_uri"})
	}))
	defer srv.Close()

	httpClient := httpsafe.New(5 * time.Second)
	dpopClient := newTestDPoPClient(t)

	_, err := SubmitPAR(context.Background(), httpClient, dpopClient, srv.URL, validPAR())
	require.Error(t, err)
	var parErr *PARError
	require.ErrorAs(t, err, &parErr)
	assert.Equal(t, "invalid_request", parErr.OAuthError)
}

func TestSubmitPARRejectsMalformedSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(PushedAuthResponse{RequestURI: "", ExpiresIn: 60})
	}))
	defer srv.Close()

	httpClient := httpsafe.New(5 * time.Second)
	dpopClient := newTestDPoPClient(t)

	_, err := SubmitPAR(context.Background(), httpClient, dpopClient, srv.URL, validPAR())
	assert.Error(t, err)
}

func TestAuthorizationURLEncodesParams(t *testing.T) {
	got := AuthorizationURL("https://auth.example.com/oauth/authorize", "urn:ietf:params:oauth:request_uri:abc", "https://app.example.com/client-metadata.json")
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "urn:ietf:params:oauth:request_uri:abc", u.Query().Get("request_uri"))
	assert.Equal(t, "https://app.example.com/client-metadata.json", u.Query().Get("client_id"))
}

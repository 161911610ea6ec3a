package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-atproto/oauth/httpsafe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshSessionSucceedsAfterNonceRechallenge(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("DPoP-Nonce", "server-nonce")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "use_dpop_nonce"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "new-access",
			TokenType:    "DPoP",
			ExpiresIn:    3600,
			RefreshToken: "new-refresh",
			Scope:        "atproto",
			Sub:          "did:plc:abc",
		})
	}))
	defer srv.Close()

	httpClient := httpsafe.New(5 * time.Second)
	dpopClient := newTestDPoPClient(t)
	s := &Session{DID: "did:plc:abc", Tokens: &TokenSet{RefreshToken: "old-refresh"}}

	tok, err := RefreshSession(context.Background(), httpClient, dpopClient, srv.URL, "client-id", s)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, 2, calls, "refresh should not trigger the outer retry loop, only ExchangeToken's internal nonce retry")
}

func TestRefreshSessionFailsFastOnInvalidGrant(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	}))
	defer srv.Close()

	httpClient := httpsafe.New(5 * time.Second)
	dpopClient := newTestDPoPClient(t)
	s := &Session{DID: "did:plc:abc", Tokens: &TokenSet{RefreshToken: "stale-refresh"}}

	_, err := RefreshSession(context.Background(), httpClient, dpopClient, srv.URL, "client-id", s)
	require.Error(t, err)
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.False(t, refreshErr.RetryPossible)
	assert.Equal(t, 1, calls, "invalid_grant must not be retried")
}

func TestRefreshSessionRespectsContextCancellationDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "server_error"})
	}))
	defer srv.Close()

	httpClient := httpsafe.New(5 * time.Second)
	dpopClient := newTestDPoPClient(t)
	s := &Session{DID: "did:plc:abc", Tokens: &TokenSet{RefreshToken: "stale-refresh"}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := RefreshSession(ctx, httpClient, dpopClient, srv.URL, "client-id", s)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

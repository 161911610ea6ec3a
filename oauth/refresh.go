package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-atproto/oauth/dpop"
	"github.com/go-atproto/oauth/httpsafe"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	refreshBaseDelay  = 1 * time.Second
	refreshMaxDelay   = 8 * time.Second
	refreshMaxRetries = 3
)

// RefreshSession exchanges the session's refresh token for a new token
// pair, making up to 3 total attempts (2 sleeps) with jittered exponential
// backoff (base 1s, cap 8s) and honoring a server's Retry-After header on
// HTTP 429. An invalid_grant response is fatal and returned immediately
// without retrying, since the refresh token itself has been rejected. Once
// the attempt budget is exhausted, the returned RefreshError has
// RetryPossible=false: the budget is already spent, so a caller retrying
// again immediately would just repeat this same exhaustion.
//
// The exponential part of the schedule (1s, then 2s) is computed with
// retryablehttp.DefaultBackoff, which adds no jitter of its own; a random
// jitter of up to half that delay is added on top (see SPEC_FULL.md's
// Domain Stack). This
// function drives the retry loop itself rather than handing the whole
// request to a retryablehttp.Client, since a DPoP nonce rechallenge
// between attempts needs to regenerate the proof, not just resend the body.
func RefreshSession(ctx context.Context, httpClient *httpsafe.Client, dpopClient *dpop.Client, tokenEndpoint, clientID string, s *Session) (*TokenResponse, error) {
	form := RefreshTokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: s.Tokens.RefreshToken,
		ClientID:     clientID,
	}

	var lastErr error
	for attempt := 0; attempt < refreshMaxRetries; attempt++ {
		if attempt > 0 {
			delay := retryablehttp.DefaultBackoff(refreshBaseDelay, refreshMaxDelay, attempt-1, nil)
			delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
			var tokErr *TokenError
			if asTokenError(lastErr, &tokErr) && tokErr.StatusCode == http.StatusTooManyRequests && tokErr.RetryAfter > 0 {
				delay = tokErr.RetryAfter
			}
			slog.Debug("retrying token refresh", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		tok, err := ExchangeToken(ctx, httpClient, dpopClient, tokenEndpoint, form, s.DID)
		if err == nil {
			return tok, nil
		}

		var tokErr *TokenError
		if asTokenError(err, &tokErr) && tokErr.OAuthError == "invalid_grant" {
			return nil, &RefreshError{Reason: "refresh token rejected (invalid_grant)", RetryPossible: false, Attempts: attempt + 1}
		}
		lastErr = err
	}

	return nil, &RefreshError{Reason: lastErr.Error(), RetryPossible: false, Attempts: refreshMaxRetries}
}

func asTokenError(err error, target **TokenError) bool {
	if t, ok := err.(*TokenError); ok {
		*target = t
		return true
	}
	return false
}

func parseRetryAfterSeconds(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

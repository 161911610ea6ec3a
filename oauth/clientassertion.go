package oauth

import (
	"fmt"
	"time"

	"github.com/go-atproto/oauth/dpop"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAssertionLifetime is the default client assertion validity window.
const DefaultAssertionLifetime = 300 * time.Second

// NewClientAssertion builds an RFC 7523 ES256 client assertion JWT: header
// {alg:ES256, typ:JWT, kid}, payload {iss=sub=client_id, aud=issuer, jti,
// iat, exp}.
//
// Grounded on atproto/auth/oauth/oauth.go's NewClientAssertionJWT, adapted
// to this package's KeyPair type and explicit lifetime parameter (the
// teacher hardcodes its lifetime; this exposes Config.DefaultTokenLifetime
// per section 6).
func NewClientAssertion(keys *dpop.KeyPair, clientID, issuer string, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		lifetime = DefaultAssertionLifetime
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": clientID,
		"sub": clientID,
		"aud": issuer,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(lifetime).Unix(),
	}
	token := jwt.NewWithClaims(signingMethod(), claims)
	token.Header["kid"] = keys.KeyID
	signed, err := token.SignedString(keys.Private)
	if err != nil {
		return "", fmt.Errorf("oauth: signing client assertion: %w", err)
	}
	return signed, nil
}

func signingMethod() jwt.SigningMethod {
	return dpop.SigningMethod()
}

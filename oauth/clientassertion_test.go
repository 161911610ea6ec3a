package oauth

import (
	"testing"
	"time"

	"github.com/go-atproto/oauth/dpop"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientAssertionShapeAndSignature(t *testing.T) {
	keys, err := dpop.GenerateKeyPair()
	require.NoError(t, err)

	assertion, err := NewClientAssertion(keys, "https://app.example.com/client-metadata.json", "https://auth.example.com", 0)
	require.NoError(t, err)

	token, err := jwt.Parse(assertion, func(tok *jwt.Token) (interface{}, error) {
		return keys.Public, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)

	assert.Equal(t, keys.KeyID, token.Header["kid"])

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "https://app.example.com/client-metadata.json", claims["iss"])
	assert.Equal(t, "https://app.example.com/client-metadata.json", claims["sub"])
	assert.Equal(t, "https://auth.example.com", claims["aud"])
	assert.NotEmpty(t, claims["jti"])
}

func TestNewClientAssertionDefaultLifetime(t *testing.T) {
	keys, err := dpop.GenerateKeyPair()
	require.NoError(t, err)

	before := time.Now()
	assertion, err := NewClientAssertion(keys, "client-id", "https://auth.example.com", 0)
	require.NoError(t, err)

	token, _, err := jwt.NewParser().ParseUnverified(assertion, jwt.MapClaims{})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)

	exp, ok := claims["exp"].(float64)
	require.True(t, ok)
	iat, ok := claims["iat"].(float64)
	require.True(t, ok)
	assert.InDelta(t, DefaultAssertionLifetime.Seconds(), exp-iat, 1)
	assert.GreaterOrEqual(t, int64(iat), before.Unix())
}

func TestNewClientAssertionCustomLifetime(t *testing.T) {
	keys, err := dpop.GenerateKeyPair()
	require.NoError(t, err)

	assertion, err := NewClientAssertion(keys, "client-id", "https://auth.example.com", 30*time.Second)
	require.NoError(t, err)

	token, _, err := jwt.NewParser().ParseUnverified(assertion, jwt.MapClaims{})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)

	exp := claims["exp"].(float64)
	iat := claims["iat"].(float64)
	assert.InDelta(t, 30, exp-iat, 1)
}

package envelope

import (
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSession struct {
	ID           string `json:"id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Tokens       struct {
		Sub string `json:"sub"`
	} `json:"tokens"`
}

func TestEncryptDecryptFieldsRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	s := testSession{ID: "sess-1", AccessToken: "access-secret", RefreshToken: "refresh-secret"}
	s.Tokens.Sub = "did:plc:abc"

	sealed, err := EncryptFields(key, "session:sess-1", s, []string{"access_token", "refresh_token"})
	require.NoError(t, err)

	var tree map[string]interface{}
	require.NoError(t, json.Unmarshal(sealed, &tree))
	assert.True(t, IsSealedValue(tree["access_token"]))
	assert.True(t, IsSealedValue(tree["refresh_token"]))
	assert.Equal(t, "sess-1", tree["id"])

	opened, err := DecryptFields(key, "session:sess-1", sealed, []string{"access_token", "refresh_token"})
	require.NoError(t, err)

	var out testSession
	require.NoError(t, json.Unmarshal(opened, &out))
	assert.Equal(t, s.AccessToken, out.AccessToken)
	assert.Equal(t, s.RefreshToken, out.RefreshToken)
	assert.Equal(t, s.ID, out.ID)
}

func TestEncryptFieldsSealsNestedPath(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	type nested struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	obj := nested{}
	obj.Tokens.AccessToken = "nested-secret"

	sealed, err := EncryptFields(key, "ctx", obj, []string{"tokens.access_token"})
	require.NoError(t, err)

	var tree map[string]interface{}
	require.NoError(t, json.Unmarshal(sealed, &tree))
	tokens := tree["tokens"].(map[string]interface{})
	assert.True(t, IsSealedValue(tokens["access_token"]))

	opened, err := DecryptFields(key, "ctx", sealed, []string{"tokens.access_token"})
	require.NoError(t, err)
	var out nested
	require.NoError(t, json.Unmarshal(opened, &out))
	assert.Equal(t, "nested-secret", out.Tokens.AccessToken)
}

func TestEncryptFieldsSkipsEmptyValues(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	s := testSession{ID: "sess-2"} // AccessToken left empty
	sealed, err := EncryptFields(key, "session:sess-2", s, []string{"access_token"})
	require.NoError(t, err)

	var tree map[string]interface{}
	require.NoError(t, json.Unmarshal(sealed, &tree))
	assert.Equal(t, "", tree["access_token"])
}

func TestWrapEnvelope(t *testing.T) {
	now := time.Now()
	env := Wrap("session", json.RawMessage(`{"id":"x"}`), now, now)
	assert.Equal(t, envelopeVersion, env.Version)
	assert.Equal(t, "session", env.Type)
}

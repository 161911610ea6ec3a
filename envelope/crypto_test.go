package envelope

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomMasterKey(t *testing.T) []byte {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := randomMasterKey(t)
	iv, data, tag, err := Seal(key, "session:1", "data.access_token", []byte("secret-value"))
	require.NoError(t, err)

	plaintext, err := Open(key, "session:1", "data.access_token", iv, data, tag)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", string(plaintext))
}

func TestOpenFailsOnWrongAAD(t *testing.T) {
	key := randomMasterKey(t)
	iv, data, tag, err := Seal(key, "session:1", "data.access_token", []byte("secret-value"))
	require.NoError(t, err)

	_, err = Open(key, "session:1", "data.refresh_token", iv, data, tag)
	assert.Error(t, err)
}

func TestOpenFailsOnWrongContext(t *testing.T) {
	key := randomMasterKey(t)
	iv, data, tag, err := Seal(key, "session:1", "data.access_token", []byte("secret-value"))
	require.NoError(t, err)

	_, err = Open(key, "session:2", "data.access_token", iv, data, tag)
	assert.Error(t, err)
}

func TestDeriveKeyIsDeterministicPerContext(t *testing.T) {
	key := randomMasterKey(t)
	a, err := DeriveKey(key, "session:1")
	require.NoError(t, err)
	b, err := DeriveKey(key, "session:1")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := DeriveKey(key, "session:2")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

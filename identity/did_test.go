package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDIDValid(t *testing.T) {
	did, err := ParseDID("did:plc:z72i7hdynmk6r22z27h6tvur")
	require.NoError(t, err)
	assert.Equal(t, "plc", did.Method())
	assert.Equal(t, "z72i7hdynmk6r22z27h6tvur", did.Identifier())
}

func TestParseDIDWebWithPath(t *testing.T) {
	did, err := ParseDID("did:web:example.com:users:alice")
	require.NoError(t, err)
	assert.Equal(t, "web", did.Method())
	assert.Equal(t, "example.com:users:alice", did.Identifier())
}

func TestParseDIDRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "not-a-did", "did:", "did:plc"} {
		_, err := ParseDID(raw)
		assert.Error(t, err, raw)
	}
}

func TestDIDTextMarshalRoundTrip(t *testing.T) {
	did, err := ParseDID("did:plc:z72i7hdynmk6r22z27h6tvur")
	require.NoError(t, err)
	text, err := did.MarshalText()
	require.NoError(t, err)

	var out DID
	require.NoError(t, out.UnmarshalText(text))
	assert.Equal(t, did, out)
}

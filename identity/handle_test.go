package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHandleValid(t *testing.T) {
	h, err := ParseHandle("alice.bsky.social")
	require.NoError(t, err)
	assert.Equal(t, "alice.bsky.social", h.String())
}

func TestParseHandleRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "not a handle", "-leading-dash.com", "no-tld"} {
		_, err := ParseHandle(raw)
		assert.Error(t, err, raw)
	}
}

func TestHandleNormalizeIsCaseInsensitive(t *testing.T) {
	h, err := ParseHandle("Alice.BSky.Social")
	require.NoError(t, err)
	assert.Equal(t, Handle("alice.bsky.social"), h.Normalize())
}

func TestHandleAllowedTLD(t *testing.T) {
	good, err := ParseHandle("alice.bsky.social")
	require.NoError(t, err)
	assert.True(t, good.AllowedTLD())

	bad, err := ParseHandle("alice.test.internal")
	require.NoError(t, err)
	assert.False(t, bad.AllowedTLD())
}

func TestHandleIsInvalidHandle(t *testing.T) {
	assert.True(t, HandleInvalid.IsInvalidHandle())
	good, err := ParseHandle("alice.bsky.social")
	require.NoError(t, err)
	assert.False(t, good.IsInvalidHandle())
}

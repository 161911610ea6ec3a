package dpop

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNonceStore struct {
	values map[string]string
}

func newFakeNonceStore() *fakeNonceStore {
	return &fakeNonceStore{values: map[string]string{}}
}

func (s *fakeNonceStore) Set(key, value string, ttlSeconds int) error {
	s.values[key] = value
	return nil
}

func (s *fakeNonceStore) Get(key string) (string, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func TestCanonicalOriginStripsDefaultPortAndPath(t *testing.T) {
	origin, err := CanonicalOrigin("https://pds.example.com:443/xrpc/foo?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://pds.example.com", origin)

	origin, err = CanonicalOrigin("https://pds.example.com:8443/xrpc/foo")
	require.NoError(t, err)
	assert.Equal(t, "https://pds.example.com:8443", origin)
}

func TestNonceManagerUpdateAndGet(t *testing.T) {
	mgr := NewNonceManager(newFakeNonceStore())

	nonce, ok, err := mgr.Get("https://pds.example.com/xrpc/foo")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, nonce)

	require.NoError(t, mgr.Update("https://pds.example.com/xrpc/foo", "nonce-1"))
	nonce, ok, err = mgr.Get("https://pds.example.com/anything")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "nonce-1", nonce)
}

func TestAbsorbResponseHeaders(t *testing.T) {
	mgr := NewNonceManager(newFakeNonceStore())

	headers := http.Header{}
	headers.Set("DPoP-Nonce", "nonce-2")
	require.NoError(t, mgr.AbsorbResponseHeaders("https://pds.example.com/xrpc/foo", headers))

	nonce, ok, err := mgr.Get("https://pds.example.com/xrpc/foo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "nonce-2", nonce)
}

func TestAbsorbResponseHeadersNoop(t *testing.T) {
	mgr := NewNonceManager(newFakeNonceStore())
	require.NoError(t, mgr.AbsorbResponseHeaders("https://pds.example.com/xrpc/foo", http.Header{}))
	_, ok, err := mgr.Get("https://pds.example.com/xrpc/foo")
	require.NoError(t, err)
	assert.False(t, ok)
}

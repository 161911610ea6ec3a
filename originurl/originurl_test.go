package originurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcceptsPlainHTTPSOrigin(t *testing.T) {
	assert.NoError(t, Validate("https://pds.example.com"))
	assert.NoError(t, Validate("https://pds.example.com/"))
	assert.NoError(t, Validate("https://pds.example.com:8443"))
}

func TestValidateRejectsNonOriginForms(t *testing.T) {
	cases := []string{
		"http://pds.example.com",
		"https://user@pds.example.com",
		"https://pds.example.com/path",
		"https://pds.example.com?query=1",
		"https://pds.example.com#frag",
		"https://pds.example.com:443",
	}
	for _, raw := range cases {
		assert.Error(t, Validate(raw), raw)
	}
}

func TestNormalizeStripsDefaultPortAndPath(t *testing.T) {
	out, err := Normalize("https://pds.example.com:443/ignored?x=1#y")
	assert.NoError(t, err)
	assert.Equal(t, "https://pds.example.com", out)

	out, err = Normalize("https://pds.example.com:8443")
	assert.NoError(t, err)
	assert.Equal(t, "https://pds.example.com:8443", out)
}

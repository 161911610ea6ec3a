package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-atproto/oauth/httpsafe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchDocumentParsesAndValidatesPDS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "did:plc:z72i7hdynmk6r22z27h6tvur",
			"alsoKnownAs": ["at://alice.bsky.social"],
			"service": [{"id": "#atproto_pds", "type": "AtprotoPersonalDataServer", "serviceEndpoint": "https://pds.example.com"}]
		}`)
	}))
	defer srv.Close()

	r := &Resolver{HTTPClient: httpsafe.New(0), PLCURL: DefaultPLCURL}
	doc, err := r.fetchDocument(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, DID("did:plc:z72i7hdynmk6r22z27h6tvur"), doc.DID)

	pds, err := doc.PDS()
	require.NoError(t, err)
	assert.Equal(t, "https://pds.example.com", pds)
}

func TestFetchDocumentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer srv.Close()

	r := &Resolver{HTTPClient: httpsafe.New(0), PLCURL: DefaultPLCURL}
	_, err := r.fetchDocument(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrDIDNotFound)
}

func TestVerifyPDSBinding(t *testing.T) {
	r := &Resolver{HTTPClient: httpsafe.New(0), PLCURL: DefaultPLCURL}
	doc := &Document{Services: []Service{
		{Type: pdsServiceType, ServiceEndpoint: "https://pds.example.com"},
	}}
	assert.NoError(t, r.VerifyPDSBinding(doc, "https://pds.example.com/"))
	assert.Error(t, r.VerifyPDSBinding(doc, "https://other.example.com"))
}

func TestVerifyIssuerBinding(t *testing.T) {
	r := &Resolver{HTTPClient: httpsafe.New(0), PLCURL: DefaultPLCURL}
	lookup := func(ctx context.Context, pds string) (string, error) {
		return "https://auth.example.com", nil
	}
	assert.NoError(t, r.VerifyIssuerBinding(context.Background(), "https://pds.example.com", "https://auth.example.com", lookup))
	assert.Error(t, r.VerifyIssuerBinding(context.Background(), "https://pds.example.com", "https://wrong.example.com", lookup))
}

func TestVerifyHandleBinding(t *testing.T) {
	r := &Resolver{HTTPClient: httpsafe.New(0), PLCURL: DefaultPLCURL}
	doc := &Document{AlsoKnownAs: []string{"at://alice.bsky.social"}}
	h, err := ParseHandle("alice.bsky.social")
	require.NoError(t, err)
	assert.NoError(t, r.VerifyHandleBinding(doc, h))

	other, err := ParseHandle("bob.bsky.social")
	require.NoError(t, err)
	assert.Error(t, r.VerifyHandleBinding(doc, other))
}

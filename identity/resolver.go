package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-atproto/oauth/httpsafe"
	"github.com/go-atproto/oauth/originurl"
)

// ErrHandleNotFound is returned when neither DNS TXT nor HTTPS well-known
// resolution produces a DID for a handle.
var ErrHandleNotFound = fmt.Errorf("identity: handle not found")

// ErrDIDNotFound is returned when a DID document lookup returns HTTP 404.
var ErrDIDNotFound = fmt.Errorf("identity: DID not found")

// ValidationError reports a failed bidirectional binding check
// (handle<->DID, DID<->PDS, DID<->issuer).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "identity: validation failed: " + e.Reason
}

// DefaultPLCURL is the default PLC directory base URL used to resolve
// did:plc identifiers.
const DefaultPLCURL = "https://plc.directory"

const dnsResolveTimeout = 3 * time.Second

// Resolver performs handle resolution, DID document lookup, and the
// bidirectional binding checks required before trusting an authorization
// server for a given account.
type Resolver struct {
	HTTPClient *httpsafe.Client
	PLCURL     string
}

// NewResolver constructs a Resolver with the default PLC directory URL and
// an SSRF-hardened HTTP client.
func NewResolver(client *httpsafe.Client) *Resolver {
	if client == nil {
		client = httpsafe.New(0)
	}
	return &Resolver{HTTPClient: client, PLCURL: DefaultPLCURL}
}

var handleSyntaxRegex = handleRegex

// ResolveHandle normalizes and resolves a handle to a DID: first via DNS
// TXT record at "_atproto.<handle>", then via HTTPS well-known fallback.
// A DID returned by DNS that fails to parse is a hard failure; resolution
// does not fall back to HTTPS in that case, matching the reference
// implementation's behavior.
func (r *Resolver) ResolveHandle(ctx context.Context, raw string) (DID, error) {
	raw = strings.TrimPrefix(raw, "@")
	handle, err := ParseHandle(strings.ToLower(raw))
	if err != nil {
		return "", fmt.Errorf("identity: invalid handle syntax: %w", err)
	}

	did, err := r.resolveHandleDNS(ctx, handle)
	if err == nil {
		return did, nil
	}
	if err != ErrHandleNotFound {
		// DNS produced a record but it failed DID validation: do not fall
		// back to HTTPS.
		return "", err
	}

	return r.resolveHandleWellKnown(ctx, handle)
}

func (r *Resolver) resolveHandleDNS(ctx context.Context, handle Handle) (DID, error) {
	resolver := &net.Resolver{}
	dnsCtx, cancel := context.WithTimeout(ctx, dnsResolveTimeout)
	defer cancel()

	records, err := resolver.LookupTXT(dnsCtx, "_atproto."+handle.String())
	if err != nil {
		return "", ErrHandleNotFound
	}
	for _, rec := range records {
		if strings.HasPrefix(rec, "did=") {
			raw := strings.TrimPrefix(rec, "did=")
			did, err := ParseDID(raw)
			if err != nil {
				return "", fmt.Errorf("identity: invalid DID in handle DNS record: %w", err)
			}
			return did, nil
		}
	}
	return "", ErrHandleNotFound
}

func (r *Resolver) resolveHandleWellKnown(ctx context.Context, handle Handle) (DID, error) {
	url := "https://" + handle.String() + "/.well-known/atproto-did"
	status, _, body, err := r.HTTPClient.Get(ctx, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: HTTP well-known handle resolution failed: %w", ErrHandleNotFound, err)
	}
	if status != 200 {
		return "", fmt.Errorf("%w: HTTP well-known handle resolution failed: status=%d", ErrHandleNotFound, status)
	}
	line := strings.TrimSpace(string(body))
	return ParseDID(line)
}

// GetDIDInfo fetches and parses the DID document for did, dispatching by
// DID method: did:plc via the configured PLC directory, did:web via the
// domain's well-known document (honoring an optional colon-encoded path
// segment).
func (r *Resolver) GetDIDInfo(ctx context.Context, did DID) (*Document, error) {
	switch did.Method() {
	case "plc":
		return r.getDIDPLC(ctx, did)
	case "web":
		return r.getDIDWeb(ctx, did)
	default:
		return nil, fmt.Errorf("identity: unsupported DID method: %s", did.Method())
	}
}

func (r *Resolver) getDIDPLC(ctx context.Context, did DID) (*Document, error) {
	url := r.PLCURL + "/" + did.String()
	return r.fetchDocument(ctx, url)
}

func (r *Resolver) getDIDWeb(ctx context.Context, did DID) (*Document, error) {
	identifier := did.Identifier()
	domain := identifier
	path := ""
	if idx := strings.Index(identifier, ":"); idx >= 0 {
		domain = identifier[:idx]
		path = identifier[idx+1:]
	}

	var url string
	if path != "" {
		url = "https://" + domain + "/" + strings.ReplaceAll(path, ":", "/") + "/did.json"
	} else {
		url = "https://" + domain + "/.well-known/did.json"
	}
	return r.fetchDocument(ctx, url)
}

func (r *Resolver) fetchDocument(ctx context.Context, url string) (*Document, error) {
	status, _, body, err := r.HTTPClient.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: DID document fetch failed: %w", err)
	}
	if status == 404 {
		return nil, ErrDIDNotFound
	}
	if status != 200 {
		return nil, fmt.Errorf("identity: DID document fetch failed: status=%d", status)
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("identity: parsing DID document JSON: %w", err)
	}
	if _, err := doc.PDS(); err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	return &doc, nil
}

// VerifyPDSBinding checks that the DID document's declared PDS matches pds,
// comparing URL-normalized origins (default-port stripped, trailing slash
// stripped, no query/fragment).
func (r *Resolver) VerifyPDSBinding(doc *Document, pds string) error {
	declared, err := doc.PDS()
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	a, err := normalizeCompare(declared)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	b, err := normalizeCompare(pds)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if a != b {
		return &ValidationError{Reason: fmt.Sprintf("PDS binding mismatch: document declares %q, expected %q", a, b)}
	}
	return nil
}

// VerifyIssuerBinding checks that the authorization server bound to pds
// (via the resource-server metadata's single authorization_servers entry)
// matches issuer.
func (r *Resolver) VerifyIssuerBinding(ctx context.Context, pds, issuer string, lookupAuthServer func(ctx context.Context, pds string) (string, error)) error {
	authServer, err := lookupAuthServer(ctx, pds)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("resolving authorization server for PDS %q: %v", pds, err)}
	}
	a, err := normalizeCompare(authServer)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	b, err := normalizeCompare(issuer)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if a != b {
		return &ValidationError{Reason: fmt.Sprintf("issuer binding mismatch: PDS's authorization server is %q, expected %q", a, b)}
	}
	return nil
}

// VerifyHandleBinding checks that the DID document's alsoKnownAs list
// contains at://<handle>.
func (r *Resolver) VerifyHandleBinding(doc *Document, handle Handle) error {
	if !doc.HasHandle(handle) {
		return &ValidationError{Reason: fmt.Sprintf("handle binding mismatch: DID document does not declare at://%s", handle.Normalize())}
	}
	return nil
}

func normalizeCompare(raw string) (string, error) {
	norm, err := originurl.Normalize(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(norm, "/"), nil
}

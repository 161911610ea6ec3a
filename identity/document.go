package identity

import "fmt"

// Document is a parsed DID document, reduced to the fields this library
// needs: the subject DID, the also-known-as handle aliases, and the
// service endpoints from which the PDS URL is derived.
type Document struct {
	DID             DID      `json:"id"`
	AlsoKnownAs     []string `json:"alsoKnownAs"`
	Services        []Service `json:"service"`
}

// Service is a single DID document service endpoint entry.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

const pdsServiceType = "AtprotoPersonalDataServer"

// PDS returns the document's Personal Data Server endpoint, derived from
// the service list entry of type AtprotoPersonalDataServer. The endpoint
// must be an HTTPS URL.
func (d *Document) PDS() (string, error) {
	for _, svc := range d.Services {
		if svc.Type == pdsServiceType {
			if len(svc.ServiceEndpoint) < 8 || svc.ServiceEndpoint[:8] != "https://" {
				return "", fmt.Errorf("identity: PDS service endpoint is not HTTPS: %q", svc.ServiceEndpoint)
			}
			return svc.ServiceEndpoint, nil
		}
	}
	return "", fmt.Errorf("identity: no %s service found in DID document for %s", pdsServiceType, d.DID)
}

// HasHandle reports whether the document's alsoKnownAs list contains
// at://<handle>.
func (d *Document) HasHandle(h Handle) bool {
	want := "at://" + h.Normalize().String()
	for _, aka := range d.AlsoKnownAs {
		if aka == want {
			return true
		}
	}
	return false
}

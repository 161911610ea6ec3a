// Package originurl validates "simple origin URLs": URLs that identify a
// server by scheme and host (and non-default port) only, with no path,
// query, fragment, or userinfo component. Authorization servers, resource
// servers, and issuers are all identified by such URLs.
package originurl

import (
	"fmt"
	"net/url"
)

// Validate checks raw against the simple-origin-URL grammar: scheme must be
// "https", there must be no userinfo/query/fragment, the path must be empty
// or "/", and if a port is explicit it must not be the scheme's default
// (443 for https).
func Validate(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("originurl: invalid URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("originurl: scheme must be https, got %q", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("originurl: userinfo not allowed")
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("originurl: path must be empty or \"/\", got %q", u.Path)
	}
	if u.RawQuery != "" {
		return fmt.Errorf("originurl: query not allowed")
	}
	if u.Fragment != "" {
		return fmt.Errorf("originurl: fragment not allowed")
	}
	if port := u.Port(); port != "" && port == "443" {
		return fmt.Errorf("originurl: explicit default port 443 not allowed")
	}
	return nil
}

// Normalize returns the canonical origin string (scheme://host[:port]) for
// raw, stripping any default port, path, query, or fragment. It does not
// itself enforce the Validate grammar; callers that need strict validation
// should call Validate first.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("originurl: invalid URL: %w", err)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "443" && u.Scheme == "https" {
		port = ""
	}
	if port == "80" && u.Scheme == "http" {
		port = ""
	}
	out := u.Scheme + "://" + host
	if port != "" {
		out += ":" + port
	}
	return out, nil
}

// Package httpsafe provides an HTTP client hardened against SSRF for use by
// every component of this library that fetches remote documents: client and
// server metadata, DID documents, handle well-known resolution, PAR and
// token endpoint requests. It enforces HTTPS (except for localhost), blocks
// requests to private/link-local IP ranges, caps redirects, and caps
// response body size.
//
// The timeout and dial-timeout wiring follows the same shape as
// atproto/identity's BaseDirectory HTTP client field, generalized here with
// an explicit SSRF-checking Dial and redirect policy.
package httpsafe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrSSRF is returned when a request target resolves to a disallowed IP
// address or URL scheme.
type ErrSSRF struct {
	Host   string
	Reason string
}

func (e *ErrSSRF) Error() string {
	return fmt.Sprintf("httpsafe: request to %q blocked: %s", e.Host, e.Reason)
}

const (
	defaultTimeout    = 10 * time.Second
	defaultDialTime   = 3 * time.Second
	maxRedirects      = 5
	maxResponseBytes  = 10 * 1024 * 1024
)

// Client is a goroutine-safe HTTP client enforcing the SSRF and
// resource-cap policy required by spec section 5.
type Client struct {
	inner *http.Client
}

// New constructs a Client with the default timeout, redirect cap, and
// SSRF-safe dialer. timeout of zero uses the package default (10s).
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialer := &net.Dialer{Timeout: defaultDialTime}
	transport := &http.Transport{
		DialContext: safeDialContext(dialer),
	}
	c := &Client{
		inner: &http.Client{
			Timeout:       timeout,
			Transport:     transport,
			CheckRedirect: checkRedirect,
		},
	}
	return c
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("httpsafe: stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != "https" && !isLocalHost(req.URL.Hostname()) {
		return &ErrSSRF{Host: req.URL.Hostname(), Reason: "redirect target is not HTTPS or localhost"}
	}
	return nil
}

func safeDialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("httpsafe: resolving %q: %w", host, err)
		}
		for _, ip := range ips {
			if isPrivateOrLinkLocal(ip.IP) && !isLocalHost(host) {
				return nil, &ErrSSRF{Host: host, Reason: fmt.Sprintf("resolves to disallowed address %s", ip.IP)}
			}
		}
		if len(ips) == 0 {
			return nil, &ErrSSRF{Host: host, Reason: "no addresses resolved"}
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
	}
}

func isLocalHost(host string) bool {
	h := strings.ToLower(host)
	return h == "localhost" || h == "127.0.0.1" || h == "::1"
}

var privateBlocks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7",
		"fe80::/10",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		privateBlocks = append(privateBlocks, block)
	}
}

func isPrivateOrLinkLocal(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// Get issues a GET request to rawURL, enforcing HTTPS-or-localhost before
// ever touching the network, then reads the response body up to the
// maxResponseBytes cap. Returns the status code, response headers, and body.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("httpsafe: building request: %w", err)
	}
	if req.URL.Scheme != "https" && !isLocalHost(req.URL.Hostname()) {
		return 0, nil, nil, &ErrSSRF{Host: req.URL.Hostname(), Reason: "scheme is not https and host is not localhost"}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

// Post issues a POST request with the given content type and body.
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body []byte, headers map[string]string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(body)))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("httpsafe: building request: %w", err)
	}
	if req.URL.Scheme != "https" && !isLocalHost(req.URL.Hostname()) {
		return 0, nil, nil, &ErrSSRF{Host: req.URL.Hostname(), Reason: "scheme is not https and host is not localhost"}
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, http.Header, []byte, error) {
	resp, err := c.inner.Do(req)
	if err != nil {
		var ssrf *ErrSSRF
		if asSSRF(err, &ssrf) {
			return 0, nil, nil, ssrf
		}
		return 0, nil, nil, fmt.Errorf("httpsafe: request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("httpsafe: reading response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return 0, nil, nil, fmt.Errorf("httpsafe: response body exceeds %d byte cap", maxResponseBytes)
	}
	return resp.StatusCode, resp.Header, body, nil
}

func asSSRF(err error, target **ErrSSRF) bool {
	for err != nil {
		if s, ok := err.(*ErrSSRF); ok {
			*target = s
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

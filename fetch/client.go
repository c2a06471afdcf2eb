// Package fetch retrieves live pages for inspection. Requests go through an
// SSRF-safer HTTP client that only speaks http(s), refuses credentials in
// URLs and, unless explicitly allowed, never dials loopback or private
// addresses (checked again after DNS resolution).
package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/version"
)

const (
	// DefaultTimeout bounds a whole page fetch
	DefaultTimeout = 5 * time.Second

	defaultMaxRedirects = 10

	// maxBodyBytes caps how much of a page is read
	maxBodyBytes = 5 << 20
)

var userAgent = version.UserAgent("inspector")

// ClientOptions tunes SSRF protection
type ClientOptions struct {
	AllowPrivateIPs bool // tests and intranet deployments only
	MaxRedirects    int  // 0 = 10
}

// Client is an http.Client with SSRF protection
type Client struct {
	http           *http.Client
	allowedSchemes []string
	blockPrivateIP bool
	maxRedirects   int
}

// NewClient creates a protected client. timeout <= 0 means DefaultTimeout.
func NewClient(timeout time.Duration, opts ClientOptions) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		http:           &http.Client{Timeout: timeout},
		allowedSchemes: []string{"http", "https"},
		blockPrivateIP: !opts.AllowPrivateIPs,
		maxRedirects:   opts.MaxRedirects,
	}
	if c.maxRedirects <= 0 {
		c.maxRedirects = defaultMaxRedirects
	}

	c.http.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	if c.blockPrivateIP {
		dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
		c.http.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}
				for _, ip := range ips {
					if isPrivateIP(ip) {
						return nil, errors.Newf("private IP address blocked: %s", ip)
					}
				}
				// Dial the address we checked, not a second lookup
				return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
			},
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   timeout,
			ExpectContinueTimeout: time.Second,
		}
	}
	return c
}

// ValidateURL parses and checks a URL before any request is made
func (c *Client) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrap(errors.NewInvalidRequestError("invalid URL %q", raw), err.Error())
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *Client) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range c.allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.NewInvalidRequestError("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}
	// http://evil.test@localhost/ style confusion
	if u.User != nil || strings.Contains(u.Host, "@") {
		return errors.NewInvalidRequestError("URL contains credentials")
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.NewInvalidRequestError("URL missing hostname")
	}
	if c.blockPrivateIP {
		if isLocalhost(hostname) {
			return errors.NewInvalidRequestError("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.NewInvalidRequestError("private IP address blocked: %s", hostname)
		}
	}
	return nil
}

// Page is a fetched document
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Get fetches rawURL and returns at most maxBodyBytes of its body.
// Non-2xx answers are errors.
func (c *Client) Get(ctx context.Context, rawURL string) (*Page, error) {
	u, err := c.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			return nil, errors.Wrapf(errors.ErrTimeout, "fetch %s: %v", u.Redacted(), err)
		}
		return nil, errors.Wrapf(err, "fetch %s", u.Redacted())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "read body of %s", u.Redacted())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := errors.Newf("fetch %s: unexpected status %d", u.Redacted(), resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.Wrap(errors.ErrNotFound, err.Error())
		}
		return nil, err
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isPrivateIP checks if an IP is in private or special-use ranges
func isPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		for _, block := range privateV4Blocks {
			if block.Contains(ip4) {
				return true
			}
		}
		return false
	}
	if len(ip) != net.IPv6len {
		return false
	}
	switch {
	case ip.IsLoopback(), ip.IsLinkLocalUnicast(), ip.IsMulticast(), ip.IsUnspecified():
		return true
	case ip[0]&0xfe == 0xfc: // fc00::/7 unique local
		return true
	case ip[0] == 0xfe && ip[1]&0xc0 == 0xc0: // fec0::/10 site-local
		return true
	case ip[0] == 0x20 && ip[1] == 0x01 && ip[2] == 0x0d && ip[3] == 0xb8: // 2001:db8::/32
		return true
	}
	return false
}

var privateV4Blocks = []net.IPNet{
	{IP: net.IPv4(10, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
	{IP: net.IPv4(172, 16, 0, 0), Mask: net.CIDRMask(12, 32)},
	{IP: net.IPv4(192, 168, 0, 0), Mask: net.CIDRMask(16, 32)},
	{IP: net.IPv4(127, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
	{IP: net.IPv4(169, 254, 0, 0), Mask: net.CIDRMask(16, 32)},
	{IP: net.IPv4(0, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
	{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}, // carrier-grade NAT
	{IP: net.IPv4(224, 0, 0, 0), Mask: net.CIDRMask(4, 32)},
	{IP: net.IPv4(240, 0, 0, 0), Mask: net.CIDRMask(4, 32)},
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}

package proxypool

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Proxy is one candidate endpoint and the number of times it has failed.
// Whoever dequeued a Proxy owns it until it is enqueued again.
type Proxy struct {
	Address   string
	FailCount int
}

// String returns the proxy address
func (p Proxy) String() string {
	return p.Address
}

// IsZero reports whether p holds no address
func (p Proxy) IsZero() bool {
	return p.Address == ""
}

var supportedSchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// NormalizeAddress turns supplier output into scheme://[user:pass@]host:port.
// Bare host:port is assumed to be an HTTP proxy.
func NormalizeAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty proxy address")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid proxy address %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if !supportedSchemes[scheme] {
		return "", fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil || host == "" || port == "" {
		return "", fmt.Errorf("proxy address %q needs host:port", raw)
	}

	out := scheme + "://"
	if u.User != nil {
		out += u.User.String() + "@"
	}
	return out + net.JoinHostPort(host, port), nil
}

// Package safety keeps model-initiated HTTP requests off the local network.
package safety

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/vango-go/nova-live/pkg/core"
)

const (
	MaxURLLength = 8192
	MaxRedirects = 3
)

// ErrBlocked marks a destination the guard refused.
var ErrBlocked = errors.New("destination blocked")

var metadataAddr = netip.MustParseAddr("169.254.169.254")

var privateNets = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// Guard decides which destinations the http_request tool may reach.
// The zero value allows public addresses only.
type Guard struct {
	// AllowPrivate admits loopback and LAN hosts. The cloud metadata
	// address stays blocked.
	AllowPrivate bool

	Resolver *net.Resolver
}

func invalidURL(msg string, cause error) error {
	return &core.Error{Type: core.ErrValidation, Message: msg, Param: "url", Cause: cause}
}

// CheckURL validates the shape of a tool-supplied URL without resolving it.
// Errors are validation errors on the "url" parameter.
func CheckURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return nil, invalidURL("url is required", nil)
	case len(raw) > MaxURLLength:
		return nil, invalidURL(fmt.Sprintf("url exceeds %d characters", MaxURLLength), nil)
	}
	decoded, err := unescape(raw)
	if err != nil {
		return nil, invalidURL("invalid percent-encoding in url", err)
	}
	u, err := url.Parse(decoded)
	if err != nil {
		return nil, invalidURL("invalid url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, invalidURL(fmt.Sprintf("unsupported url scheme %q", u.Scheme), nil)
	}
	if u.User != nil {
		return nil, invalidURL("url credentials are not allowed", nil)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, invalidURL("url host is required", nil)
	}
	if strings.ContainsRune(host, '%') || !isASCII(host) {
		return nil, invalidURL("invalid url host", nil)
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
			return nil, invalidURL("invalid url port", err)
		}
		u.Host = net.JoinHostPort(host, p)
	} else {
		u.Host = host
	}
	return u, nil
}

// Check validates raw and every address its host resolves to.
func (g Guard) Check(ctx context.Context, raw string) (*url.URL, error) {
	u, err := CheckURL(raw)
	if err != nil {
		return nil, err
	}
	if _, err := g.resolve(ctx, u.Hostname()); err != nil {
		return nil, invalidURL(err.Error(), err)
	}
	return u, nil
}

// resolve returns the addresses of host. One blocked address refuses them all.
func (g Guard) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if err := g.allow(addr); err != nil {
			return nil, err
		}
		return []netip.Addr{addr}, nil
	}
	r := g.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		if err := g.allow(a); err != nil {
			return nil, err
		}
	}
	return addrs, nil
}

func (g Guard) allow(addr netip.Addr) error {
	addr = addr.Unmap()
	if addr == metadataAddr {
		return fmt.Errorf("%w: %s is a metadata endpoint", ErrBlocked, addr)
	}
	if g.AllowPrivate {
		return nil
	}
	for _, p := range privateNets {
		if p.Contains(addr) {
			return fmt.Errorf("%w: %s is not a public address", ErrBlocked, addr)
		}
	}
	return nil
}

// unescape undoes up to three layers of percent-encoding so encoded
// hosts are checked in their final form.
func unescape(raw string) (string, error) {
	out := raw
	for range 3 {
		next, err := url.PathUnescape(out)
		if err != nil {
			return "", err
		}
		if next == out {
			break
		}
		out = next
	}
	return out, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

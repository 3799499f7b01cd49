package safety

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// MaxBodyBytes caps a tool HTTP response body.
const MaxBodyBytes int64 = 5 << 20

// NewRestrictedHTTPClient copies base and routes every dial and redirect
// through g. Proxies are disabled so the checked address is the one dialed.
func (g Guard) NewRestrictedHTTPClient(base *http.Client) *http.Client {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if tr, ok := rt.(*http.Transport); ok {
		tr = tr.Clone()
		tr.Proxy = nil
		tr.DialTLSContext = nil
		tr.DialContext = g.dialContext(&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second})
		client.Transport = tr
	}
	client.CheckRedirect = g.checkRedirect
	return client
}

func (g Guard) dialContext(d *net.Dialer) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		if strings.ContainsRune(host, '%') {
			return nil, fmt.Errorf("%w: zoned address %s", ErrBlocked, host)
		}
		addrs, err := g.resolve(ctx, host)
		if err != nil {
			return nil, err
		}
		return d.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
	}
}

func (g Guard) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", MaxRedirects)
	}
	_, err := g.Check(req.Context(), req.URL.String())
	return err
}

// ReadBody reads at most limit bytes (MaxBodyBytes when limit <= 0) and
// reports whether the body was longer.
func ReadBody(resp *http.Response, limit int64) ([]byte, bool, error) {
	if resp == nil || resp.Body == nil {
		return nil, false, fmt.Errorf("response body is empty")
	}
	if limit <= 0 {
		limit = MaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(b)) > limit {
		return b[:limit], true, nil
	}
	return b, false, nil
}

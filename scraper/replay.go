package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	tls2 "github.com/refraction-networking/utls"
	"github.com/use-agent/fonfetch/config"
	"github.com/use-agent/fonfetch/models"
)

// maxReplayBody caps a replayed response.
const maxReplayBody = 10 * 1024 * 1024

// Replayer posts a form straight to a portal endpoint with a Chrome TLS
// fingerprint (utls), reusing cookies a browser session earned.
type Replayer struct {
	cfg *config.Config
}

// NewReplayer creates a replayer.
func NewReplayer(cfg *config.Config) *Replayer {
	return &Replayer{cfg: cfg}
}

// Post sends form to endpoint as the page at referer would. The response
// status is checked; the body is returned as read, markup included.
func (r *Replayer) Post(ctx context.Context, endpoint, referer string, form *Form, cookies []*proto.NetworkCookie) (RawResponse, error) {
	op := "replay " + endpoint
	target := r.cfg.Portal.BaseURL + endpoint
	budget := Budget(ctx, r.cfg.Timing.RequestTimeout)

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr)
		},
	}
	if r.cfg.Browser.Proxy != "" {
		if proxyURL, err := url.Parse(r.cfg.Browser.Proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	client := &http.Client{Transport: transport}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return RawResponse{}, models.NewClientError(op, "failed to build request", err)
	}
	fp := r.cfg.Fingerprint
	req.Header.Set("User-Agent", fp.UserAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", fp.AcceptLanguage)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Origin", r.cfg.Portal.BaseURL)
	req.Header.Set("Referer", referer)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	if header := cookieHeader(cookies); header != "" {
		req.Header.Set("Cookie", header)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return RawResponse{}, models.NewTimeoutError(op, budget, "request expired during replay")
		}
		return RawResponse{}, models.NewClientError(op, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplayBody))
	if err != nil {
		return RawResponse{}, models.NewClientError(op, "failed to read response", err)
	}
	raw := RawResponse{URL: target, Status: resp.StatusCode, Body: string(body)}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if models.IsMarkup(raw.Body) {
			return raw, models.NewWafBlockedError(op, raw.Body)
		}
		return raw, models.NewClientError(op, fmt.Sprintf("upstream refused the session: HTTP %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return raw, models.NewClientError(op, fmt.Sprintf("upstream error: HTTP %d", resp.StatusCode), nil)
	}

	slog.Debug("replay completed", "endpoint", endpoint, "status", resp.StatusCode, "bytes", len(body))
	return raw, nil
}

// cookieHeader renders browser cookies as a Cookie header value.
func cookieHeader(cookies []*proto.NetworkCookie) string {
	var b bytes.Buffer
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name + "=" + c.Value)
	}
	return b.String()
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint
// restricted to HTTP/1.1, since net/http cannot speak h2 over a utls conn.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloCustom)

	spec, err := tls2.UTLSIdToSpec(tls2.HelloChrome_Auto)
	if err != nil {
		rawConn.Close()
		return nil, err
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls2.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	if err := tlsConn.ApplyPreset(&spec); err != nil {
		rawConn.Close()
		return nil, err
	}

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

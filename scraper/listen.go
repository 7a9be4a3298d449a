package scraper

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/fonfetch/config"
)

// Register attaches a correlator for endpoint to the session. It must be
// called before the interaction that fires the request; responses that
// completed earlier are not replayed. Close the correlator when done.
func Register(s *Session, endpoint string, cfg config.CorrelatorConfig) *Correlator {
	c := NewCorrelator(endpoint, cfg.Buffer)

	listenCtx, cancel := context.WithCancel(context.Background())
	page := s.page.Context(listenCtx)

	// pending is only touched from the event goroutine below.
	pending := make(map[proto.NetworkRequestID]RawResponse)

	wait := page.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil || !c.Matches(e.Response.URL) {
				return
			}
			pending[e.RequestID] = RawResponse{URL: e.Response.URL, Status: e.Response.Status}
		},
		func(e *proto.NetworkLoadingFinished) {
			raw, ok := pending[e.RequestID]
			if !ok {
				return
			}
			delete(pending, e.RequestID)
			if raw.Status < 200 || raw.Status >= 300 {
				c.Capture(raw)
				return
			}
			body, err := readBody(page, e.RequestID)
			if err != nil {
				slog.Warn("correlator: failed to read response body",
					"session", s.ID, "url", raw.URL, "error", err)
				return
			}
			raw.Body = body
			c.Capture(raw)
		},
		func(e *proto.NetworkLoadingFailed) {
			if raw, ok := pending[e.RequestID]; ok {
				slog.Debug("correlator: request failed",
					"session", s.ID, "url", raw.URL, "reason", e.ErrorText)
				delete(pending, e.RequestID)
			}
		},
	)
	// wait pumps the page's event stream until listenCtx is canceled.
	go wait()

	c.stop = cancel
	slog.Debug("correlator registered", "session", s.ID, "endpoint", endpoint)
	return c
}

func readBody(page *rod.Page, id proto.NetworkRequestID) (string, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
	if err != nil {
		return "", err
	}
	if !res.Base64Encoded {
		return res.Body, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(res.Body)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/fonfetch/config"
	"github.com/use-agent/fonfetch/models"
)

// Session is one isolated browsing context with a single page. Sessions
// are never shared between requests.
type Session struct {
	ID string

	incognito *rod.Browser
	page      *rod.Page
	cfg       *config.Config

	closeOnce sync.Once
	onClose   func()
}

func (s *Session) applyFingerprint() error {
	fp := s.cfg.Fingerprint

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.ViewportWidth,
		Height:            fp.ViewportHeight,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}).Call(s.page); err != nil {
		return err
	}
	if err := (proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: fp.AcceptLanguage,
		Platform:       "MacIntel",
	}).Call(s.page); err != nil {
		return err
	}
	// Locale and timezone overrides are best-effort: some Chromium builds
	// reject them when already set by the launcher.
	if err := (proto.EmulationSetLocaleOverride{Locale: fp.Locale}).Call(s.page); err != nil {
		slog.Debug("locale override failed", "session", s.ID, "error", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: fp.Timezone}).Call(s.page); err != nil {
		slog.Debug("timezone override failed", "session", s.ID, "error", err)
	}
	return nil
}

// Navigate loads url, waits for the DOM load milestone and then for the
// session settle interval so the challenge script can set its cookie.
// Network idle is never awaited: the portal's polling keeps it busy.
func (s *Session) Navigate(ctx context.Context, url string) error {
	op := "navigate " + url
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Timing.NavigationTimeout)
	defer cancel()

	start := time.Now()
	p := s.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return navigationError(op, err, s.cfg.Timing.NavigationTimeout)
	}
	if err := p.WaitLoad(); err != nil {
		return navigationError(op, err, s.cfg.Timing.NavigationTimeout)
	}
	slog.Debug("page loaded", "session", s.ID, "url", url, "elapsed", time.Since(start))

	if err := sleepCtx(ctx, s.cfg.Timing.SessionSettle); err != nil {
		return models.NewTimeoutError(op, s.cfg.Timing.SessionSettle, "request expired during session settle")
	}
	return nil
}

// Cookies returns the cookies the page holds for url.
func (s *Session) Cookies(ctx context.Context, url string) ([]*proto.NetworkCookie, error) {
	return s.page.Context(ctx).Cookies([]string{url})
}

// Close closes the page and disposes the incognito context. It is safe to
// call repeatedly and works after the request context has expired.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.page.Close(); err != nil {
			slog.Debug("session page close failed", "session", s.ID, "error", err)
		}
		if err := s.incognito.Close(); err != nil {
			slog.Warn("session context dispose failed", "session", s.ID, "error", err)
		}
		if s.onClose != nil {
			s.onClose()
		}
		slog.Debug("session closed", "session", s.ID)
	})
}

// navigationError classifies a failed navigation. A blown deadline is still
// a navigation failure: the page never became usable.
func navigationError(op string, err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewNavigationError(op, "page did not load within "+timeout.String(), err)
	}
	if errors.Is(err, context.Canceled) {
		return models.NewNavigationError(op, "request canceled during navigation", err)
	}
	return models.NewNavigationError(op, "navigation failed", err)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Budget is the time ctx allows from now, or fallback when ctx has no
// deadline.
func Budget(ctx context.Context, fallback time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		return time.Until(dl).Round(time.Millisecond)
	}
	return fallback
}

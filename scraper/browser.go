package scraper

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"github.com/use-agent/fonfetch/config"
	"github.com/use-agent/fonfetch/models"
)

// Browser owns the single Chromium process. Every portal session runs in
// its own incognito context on top of it. It is safe for concurrent use.
type Browser struct {
	browser  *rod.Browser
	cfg      *config.Config
	sessions atomic.Int32
}

// NewBrowser launches Chromium with automation signals suppressed.
func NewBrowser(cfg *config.Config) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Browser.Headless).
		NoSandbox(cfg.Browser.NoSandbox)

	if cfg.Browser.BrowserBin != "" {
		l = l.Bin(cfg.Browser.BrowserBin)
	}
	if cfg.Browser.Proxy != "" {
		l = l.Proxy(cfg.Browser.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), cfg.Fingerprint.Locale)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewClientError("launch browser", "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewClientError("launch browser", "failed to connect to browser", err)
	}

	return &Browser{browser: browser, cfg: cfg}, nil
}

// Open creates an isolated session: a fresh incognito context holding one
// stealth page with the configured fingerprint. The caller must Close it.
func (b *Browser) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewTimeoutError("open session", 0, "request expired before a session was opened")
	}
	id := uuid.NewString()[:8]

	// Not bound to ctx: Close must still work after the request deadline.
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, models.NewNavigationError("open session", "failed to create isolated browser context", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, models.NewNavigationError("open session", "failed to create page", err)
	}

	s := &Session{
		ID:        id,
		incognito: incognito,
		page:      page,
		cfg:       b.cfg,
		onClose:   func() { b.sessions.Add(-1) },
	}
	b.sessions.Add(1)

	// ── Stealth injection (before any navigation) ────────────────────
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth",
			"session", id, "error", evalErr)
	}

	if err := s.applyFingerprint(); err != nil {
		s.Close()
		return nil, models.NewNavigationError("open session", "failed to apply browser fingerprint", err)
	}

	blockURLs(page, b.cfg.Browser.BlockedURLs)

	slog.Debug("session opened", "session", id, "active", b.sessions.Load())
	return s, nil
}

// Stats returns a snapshot of session usage.
func (b *Browser) Stats() models.SessionStats {
	return models.SessionStats{
		MaxSessions:    b.cfg.Browser.MaxSessions,
		ActiveSessions: int(b.sessions.Load()),
	}
}

// Close kills the browser process. Call this on graceful shutdown to
// prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down", "activeSessions", b.sessions.Load())
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("browser shutdown complete")
}

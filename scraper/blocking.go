package scraper

import (
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockURLs stops the page from loading static assets and trackers.
//
// Blocking goes through Network.setBlockedURLs rather than request hijacking:
// the Fetch domain that hijacking enables conflicts with the Network events
// the correlator subscribes to.
func blockURLs(page *rod.Page, patterns []string) {
	if len(patterns) == 0 {
		return
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		slog.Debug("network enable failed, skipping resource blocking", "error", err)
		return
	}
	if err := (proto.NetworkSetBlockedURLs{Urls: patterns}).Call(page); err != nil {
		slog.Debug("resource blocking failed", "error", err)
	}
}

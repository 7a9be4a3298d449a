package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

// Config holds all application configuration. It is built once at startup
// and passed by value or pointer into every component; nothing mutates it.
type Config struct {
	Server      ServerConfig
	Browser     BrowserConfig
	Fingerprint FingerprintConfig
	Portal      PortalConfig
	Selectors   SelectorConfig
	Timing      TimingConfig
	Correlator  CorrelatorConfig
	Retry       RetryConfig
	Cache       CacheConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxSessions bounds concurrently open portal sessions.
	MaxSessions int // default: 4

	// Proxy is the proxy URL used by the browser and the replay client.
	Proxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// BlockedURLs are URL patterns the page never loads.
	// default: images, fonts and media extensions plus analytics hosts
	BlockedURLs []string
}

// FingerprintConfig describes how the browser presents itself.
type FingerprintConfig struct {
	UserAgent      string
	AcceptLanguage string // default: "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7"
	Locale         string // default: "tr-TR"
	Timezone       string // default: "Europe/Istanbul"
	ViewportWidth  int    // default: 1920
	ViewportHeight int    // default: 1080
}

// PortalConfig names the upstream pages and the JSON endpoints they call.
type PortalConfig struct {
	BaseURL            string // default: "https://www.tefas.gov.tr"
	HistoryPage        string // default: "/TarihselVeriler.aspx"
	ComparisonPage     string // default: "/FonKarsilastirma.aspx"
	HistoryEndpoint    string // default: "/api/DB/BindHistoryInfo"
	ComparisonEndpoint string // default: "/api/DB/BindComparisonFundReturns"

	// FundType is the portal's fund type filter ("YAT", "EMK", "BYF").
	FundType string // default: "YAT"

	// ReplayOnTimeout posts the captured form directly with the session's
	// cookies when the in-page call produced nothing.
	ReplayOnTimeout bool // default: true

	// StrictFieldVerify turns a field read-back mismatch into an error.
	StrictFieldVerify bool // default: false
}

// SelectorConfig holds the CSS selectors the automator relies on.
type SelectorConfig struct {
	StartDate      string
	EndDate        string
	FundCodeFilter string
	SearchButton   string
	HistoryTable   string // default: "#table_general_info"
	ReturnsTable   string // default: "#table_fund_returns"

	// SearchButtonID and SearchButtonText drive the in-page click fallback.
	SearchButtonID   string // default: "ButtonSearchDates"
	SearchButtonText string // default: "Görüntüle"
}

// TimingConfig holds every settle interval and step timeout.
type TimingConfig struct {
	NavigationTimeout time.Duration // default: 30s
	SessionSettle     time.Duration // default: 2s
	ElementTimeout    time.Duration // default: 10s
	ClickTimeout      time.Duration // default: 5s
	FieldClearSettle  time.Duration // default: 200ms
	FieldFillSettle   time.Duration // default: 300ms
	ClickSettle       time.Duration // default: 500ms
	TableTimeout      time.Duration // default: 15s
	TablePoll         time.Duration // default: 250ms
	TableSettle       time.Duration // default: 1s
	RequestTimeout    time.Duration // default: 90s
}

// CorrelatorConfig tunes the debounce-by-silence policy.
type CorrelatorConfig struct {
	MinCount    int           // default: 1
	QuietPeriod time.Duration // default: 1.5s
	MaxWait     time.Duration // default: 30s
	Buffer      int           // default: 128

	// ConsumeLast picks the last of several responses instead of the first.
	ConsumeLast bool // default: true
}

// RetryConfig controls orchestrator-level retries of whole attempts.
type RetryConfig struct {
	MaxAttempts  int           // default: 2
	InitialDelay time.Duration // default: 2s
	MaxDelay     time.Duration // default: 10s
}

// CacheConfig controls the payload cache. A zero TTL disables it.
type CacheConfig struct {
	TTL        time.Duration // default: 15m
	MaxEntries int           // default: 256
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// HistoryPageURL returns the absolute URL of the historical NAV page.
func (p PortalConfig) HistoryPageURL() string { return p.BaseURL + p.HistoryPage }

// ComparisonPageURL returns the absolute URL of the comparison page.
func (p PortalConfig) ComparisonPageURL() string { return p.BaseURL + p.ComparisonPage }

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("FONFETCH_HOST", "0.0.0.0"),
			Port: envIntOr("FONFETCH_PORT", 8080),
			Mode: envOr("FONFETCH_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:    envBoolOr("FONFETCH_HEADLESS", true),
			MaxSessions: envIntOr("FONFETCH_MAX_SESSIONS", 4),
			Proxy:       os.Getenv("FONFETCH_PROXY"),
			NoSandbox:   envBoolOr("FONFETCH_NO_SANDBOX", false),
			BrowserBin:  os.Getenv("FONFETCH_BROWSER_BIN"),
			BlockedURLs: envSliceOr("FONFETCH_BLOCKED_URLS", []string{
				"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg",
				"*.woff", "*.woff2", "*.ttf", "*.mp4",
				"*google-analytics.com*", "*googletagmanager.com*", "*doubleclick.net*",
			}),
		},
		Fingerprint: FingerprintConfig{
			UserAgent: envOr("FONFETCH_USER_AGENT",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
			AcceptLanguage: envOr("FONFETCH_ACCEPT_LANGUAGE", "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7"),
			Locale:         envOr("FONFETCH_LOCALE", "tr-TR"),
			Timezone:       envOr("FONFETCH_TIMEZONE", "Europe/Istanbul"),
			ViewportWidth:  envIntOr("FONFETCH_VIEWPORT_WIDTH", 1920),
			ViewportHeight: envIntOr("FONFETCH_VIEWPORT_HEIGHT", 1080),
		},
		Portal: PortalConfig{
			BaseURL:            strings.TrimRight(envOr("FONFETCH_BASE_URL", "https://www.tefas.gov.tr"), "/"),
			HistoryPage:        envOr("FONFETCH_HISTORY_PAGE", "/TarihselVeriler.aspx"),
			ComparisonPage:     envOr("FONFETCH_COMPARISON_PAGE", "/FonKarsilastirma.aspx"),
			HistoryEndpoint:    envOr("FONFETCH_HISTORY_ENDPOINT", "/api/DB/BindHistoryInfo"),
			ComparisonEndpoint: envOr("FONFETCH_COMPARISON_ENDPOINT", "/api/DB/BindComparisonFundReturns"),
			FundType:           envOr("FONFETCH_FUND_TYPE", "YAT"),
			ReplayOnTimeout:    envBoolOr("FONFETCH_REPLAY_ON_TIMEOUT", true),
			StrictFieldVerify:  envBoolOr("FONFETCH_STRICT_FIELDS", false),
		},
		Selectors: SelectorConfig{
			StartDate:        envOr("FONFETCH_SEL_START_DATE", "#TextBoxStartDate, input[name*='TextBoxStartDate']"),
			EndDate:          envOr("FONFETCH_SEL_END_DATE", "#TextBoxEndDate, input[name*='TextBoxEndDate']"),
			FundCodeFilter:   envOr("FONFETCH_SEL_FUND_FILTER", "input[type='search'][aria-controls='table_general_info']"),
			SearchButton:     envOr("FONFETCH_SEL_SEARCH", "#ButtonSearchDates, input[name*='ButtonSearchDates'], input[value='Görüntüle']"),
			HistoryTable:     envOr("FONFETCH_SEL_HISTORY_TABLE", "#table_general_info"),
			ReturnsTable:     envOr("FONFETCH_SEL_RETURNS_TABLE", "#table_fund_returns"),
			SearchButtonID:   envOr("FONFETCH_SEARCH_BUTTON_ID", "ButtonSearchDates"),
			SearchButtonText: envOr("FONFETCH_SEARCH_BUTTON_TEXT", "Görüntüle"),
		},
		Timing: TimingConfig{
			NavigationTimeout: envDurationOr("FONFETCH_NAV_TIMEOUT", 30*time.Second),
			SessionSettle:     envDurationOr("FONFETCH_SESSION_SETTLE", 2*time.Second),
			ElementTimeout:    envDurationOr("FONFETCH_ELEMENT_TIMEOUT", 10*time.Second),
			ClickTimeout:      envDurationOr("FONFETCH_CLICK_TIMEOUT", 5*time.Second),
			FieldClearSettle:  envDurationOr("FONFETCH_FIELD_CLEAR_SETTLE", 200*time.Millisecond),
			FieldFillSettle:   envDurationOr("FONFETCH_FIELD_FILL_SETTLE", 300*time.Millisecond),
			ClickSettle:       envDurationOr("FONFETCH_CLICK_SETTLE", 500*time.Millisecond),
			TableTimeout:      envDurationOr("FONFETCH_TABLE_TIMEOUT", 15*time.Second),
			TablePoll:         envDurationOr("FONFETCH_TABLE_POLL", 250*time.Millisecond),
			TableSettle:       envDurationOr("FONFETCH_TABLE_SETTLE", time.Second),
			RequestTimeout:    envDurationOr("FONFETCH_REQUEST_TIMEOUT", 90*time.Second),
		},
		Correlator: CorrelatorConfig{
			MinCount:    envIntOr("FONFETCH_CORRELATOR_MIN_COUNT", 1),
			QuietPeriod: envDurationOr("FONFETCH_CORRELATOR_QUIET", 1500*time.Millisecond),
			MaxWait:     envDurationOr("FONFETCH_CORRELATOR_MAX_WAIT", 30*time.Second),
			Buffer:      envIntOr("FONFETCH_CORRELATOR_BUFFER", 128),
			ConsumeLast: envBoolOr("FONFETCH_CORRELATOR_LAST", true),
		},
		Retry: RetryConfig{
			MaxAttempts:  envIntOr("FONFETCH_RETRY_ATTEMPTS", 2),
			InitialDelay: envDurationOr("FONFETCH_RETRY_DELAY", 2*time.Second),
			MaxDelay:     envDurationOr("FONFETCH_RETRY_MAX_DELAY", 10*time.Second),
		},
		Cache: CacheConfig{
			TTL:        envDurationOr("FONFETCH_CACHE_TTL", 15*time.Minute),
			MaxEntries: envIntOr("FONFETCH_CACHE_MAX_ENTRIES", 256),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("FONFETCH_AUTH_ENABLED", false),
			APIKeys: envSliceOr("FONFETCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("FONFETCH_RATE_RPS", 1.0),
			Burst:             envIntOr("FONFETCH_RATE_BURST", 3),
		},
		Log: LogConfig{
			Level:  envOr("FONFETCH_LOG_LEVEL", "info"),
			Format: envOr("FONFETCH_LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects configurations the automator cannot run with: bad
// selectors, non-positive budgets and an unusable correlator policy.
func (c *Config) Validate() error {
	selectors := map[string]string{
		"start date":   c.Selectors.StartDate,
		"end date":     c.Selectors.EndDate,
		"fund filter":  c.Selectors.FundCodeFilter,
		"search":       c.Selectors.SearchButton,
		"history grid": c.Selectors.HistoryTable,
		"returns grid": c.Selectors.ReturnsTable,
	}
	for name, sel := range selectors {
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("config: %s selector %q: %w", name, sel, err)
		}
	}
	if c.Timing.NavigationTimeout <= 0 || c.Correlator.MaxWait <= 0 || c.Timing.TableTimeout <= 0 {
		return fmt.Errorf("config: navigation, correlator and table timeouts must be positive")
	}
	if c.Correlator.MinCount < 1 {
		return fmt.Errorf("config: correlator min count must be at least 1, got %d", c.Correlator.MinCount)
	}
	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("config: max sessions must be at least 1, got %d", c.Browser.MaxSessions)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("config: cache ttl must not be negative, got %s", c.Cache.TTL)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

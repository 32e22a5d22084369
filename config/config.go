package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Detector  DetectorConfig
	Batch     BatchConfig
	Jobs      JobsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser session.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is passed to the browser and the HTTP fetcher.
	Proxy string

	// Stealth injects the stealth script before every navigation.
	Stealth bool // default: true

	// UserAgent overrides the desktop Chrome user agent.
	UserAgent string

	// AcceptLanguage is sent with every page request.
	AcceptLanguage string // default: "en-US,en;q=0.9"

	// BlockedResourceTypes lists resource types to block.
	// Stylesheets stay enabled: element visibility depends on them.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: true
}

// DetectorConfig holds the tunables of the promotion detection pipeline.
type DetectorConfig struct {
	NavigationTimeout  time.Duration // default: 60s per attempt
	NavigationAttempts int           // default: 2
	RetryPause         time.Duration // default: 2s

	// DwellMin and DwellMax bound the random wait before the bot-check gate.
	DwellMin time.Duration // default: 2s
	DwellMax time.Duration // default: 4s

	// PriceMargin is the fraction a higher price must exceed the current one by.
	PriceMargin float64 // default: 0.02

	BadgeLabelMax   int // default: 50 runes
	DiscountTextMax int // default: 24 runes
}

// BatchConfig controls the batch orchestrator.
type BatchConfig struct {
	// PauseMin and PauseMax bound the random pause between two items.
	PauseMin time.Duration // default: 2s
	PauseMax time.Duration // default: 5s

	// Marketplace is the storefront used to expand ASIN columns.
	Marketplace string // default: "de"

	// Engine is "browser" (Rod) or "http" (static snapshot over utls).
	Engine string // default: "browser"

	// MaxURLs caps the size of one API batch.
	MaxURLs int // default: 500
}

// JobsConfig controls the in-memory batch job store.
type JobsConfig struct {
	MaxEntries int           // default: 100
	TTL        time.Duration // default: 24h
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string

	// WebhookSecret signs outgoing webhook payloads.
	WebhookSecret string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PROMOCHECK_HOST", "0.0.0.0"),
			Port: envIntOr("PROMOCHECK_PORT", 8080),
			Mode: envOr("PROMOCHECK_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("PROMOCHECK_HEADLESS", true),
			NoSandbox:      envBoolOr("PROMOCHECK_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("PROMOCHECK_BROWSER_BIN"),
			Proxy:          os.Getenv("PROMOCHECK_PROXY"),
			Stealth:        envBoolOr("PROMOCHECK_STEALTH", true),
			UserAgent:      envOr("PROMOCHECK_USER_AGENT", DefaultUserAgent),
			AcceptLanguage: envOr("PROMOCHECK_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			BlockedResourceTypes: envSliceOr("PROMOCHECK_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("PROMOCHECK_BLOCK_ADS", true),
		},
		Detector: DetectorConfig{
			NavigationTimeout:  envDurationOr("PROMOCHECK_NAV_TIMEOUT", 60*time.Second),
			NavigationAttempts: envIntOr("PROMOCHECK_NAV_ATTEMPTS", 2),
			RetryPause:         envDurationOr("PROMOCHECK_RETRY_PAUSE", 2*time.Second),
			DwellMin:           envDurationOr("PROMOCHECK_DWELL_MIN", 2*time.Second),
			DwellMax:           envDurationOr("PROMOCHECK_DWELL_MAX", 4*time.Second),
			PriceMargin:        envFloatOr("PROMOCHECK_PRICE_MARGIN", 0.02),
			BadgeLabelMax:      envIntOr("PROMOCHECK_BADGE_LABEL_MAX", 50),
			DiscountTextMax:    envIntOr("PROMOCHECK_DISCOUNT_TEXT_MAX", 24),
		},
		Batch: BatchConfig{
			PauseMin:    envDurationOr("PROMOCHECK_PAUSE_MIN", 2*time.Second),
			PauseMax:    envDurationOr("PROMOCHECK_PAUSE_MAX", 5*time.Second),
			Marketplace: envOr("PROMOCHECK_MARKETPLACE", "de"),
			Engine:      envOr("PROMOCHECK_ENGINE", "browser"),
			MaxURLs:     envIntOr("PROMOCHECK_MAX_URLS", 500),
		},
		Jobs: JobsConfig{
			MaxEntries: envIntOr("PROMOCHECK_JOBS_MAX", 100),
			TTL:        envDurationOr("PROMOCHECK_JOBS_TTL", 24*time.Hour),
		},
		Auth: AuthConfig{
			Enabled:       envBoolOr("PROMOCHECK_AUTH_ENABLED", true),
			APIKeys:       envSliceOr("PROMOCHECK_API_KEYS", nil),
			WebhookSecret: os.Getenv("PROMOCHECK_WEBHOOK_SECRET"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PROMOCHECK_RATE_RPS", 2.0),
			Burst:             envIntOr("PROMOCHECK_RATE_BURST", 5),
		},
		Log: LogConfig{
			Level:  envOr("PROMOCHECK_LOG_LEVEL", "info"),
			Format: envOr("PROMOCHECK_LOG_FORMAT", "json"),
		},
	}
}

// DefaultUserAgent is a current desktop Chrome on Windows.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

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

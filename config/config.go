package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. It is built once at startup
// and handed to constructors; nothing mutates it afterwards.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Session   SessionConfig
	Navigator NavigatorConfig
	Extractor ExtractorConfig
	Pricing   PricingConfig
	Run       RunConfig
	Storage   StorageConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Webhook   WebhookConfig
	Trace     TraceConfig
}

// ServerConfig controls the query API.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls how each session's Chromium is launched.
type BrowserConfig struct {
	Headless bool // default: true

	// Proxy is passed to every launched browser.
	Proxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects the stealth evasions before every document.
	Stealth bool // default: true
}

// SessionConfig controls session acquisition and rotation.
type SessionConfig struct {
	// MaxCreateAttempts is the total number of session creation attempts per
	// Acquire, the first included: 3 means one try plus up to two retries.
	MaxCreateAttempts int // default: 3

	// BackoffStep is multiplied by the attempt number between creation attempts.
	BackoffStep time.Duration // default: 2s

	// RotateAfter is the navigation count after which a session is replaced.
	RotateAfter int // default: 10

	// MaxAge retires sessions older than this.
	MaxAge time.Duration // default: 50m

	// MemThreshold is the host memory used fraction (0.0-1.0) above which
	// sessions are rotated early. Zero disables the check.
	MemThreshold float64 // default: 0.9

	// ProbeTimeout bounds the liveness probe.
	ProbeTimeout time.Duration // default: 5s
}

// NavigatorConfig controls page loading.
type NavigatorConfig struct {
	// LoadTimeout is the hard ceiling for a page load.
	LoadTimeout time.Duration // default: 30s

	// SettleDelay is waited after load so client-side rendering can finish.
	SettleDelay time.Duration // default: 5s

	// CurrencyParam is the query parameter forcing the display currency.
	CurrencyParam string // default: "Currency"

	AcceptLanguage string // default: "en-US,en;q=0.9"

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	BlockAds bool // default: true
}

// TierConfig names a price category and the labels that identify it on a page.
type TierConfig struct {
	Name    string   `json:"name" yaml:"name"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// BlockRange maps seating block numbers From..To (inclusive) to a tier.
// To == 0 leaves the range open-ended.
type BlockRange struct {
	From int    `json:"from" yaml:"from"`
	To   int    `json:"to,omitempty" yaml:"to,omitempty"`
	Tier string `json:"tier" yaml:"tier"`
}

// BlockPolicyConfig is a venue's block-to-tier mapping.
type BlockPolicyConfig struct {
	Ranges []BlockRange `json:"ranges" yaml:"ranges"`

	// Markers maps a case-insensitive substring of a block id to a tier.
	// Markers win over ranges.
	Markers map[string]string `json:"markers,omitempty" yaml:"markers,omitempty"`
}

// ExtractorConfig controls the price extraction cascade.
type ExtractorConfig struct {
	Tiers []TierConfig

	// AnchorDepth is how many ancestors of a tier label are searched.
	AnchorDepth int // default: 4

	// TextWindow is how many characters after a tier label are scanned
	// by the text fallback.
	TextWindow int // default: 200

	// MaxTextBytes truncates the page text read by the text fallback.
	MaxTextBytes int // default: 200000

	// BlockSelector matches clickable seating blocks.
	BlockSelector string

	// PriceDisplaySelector matches the element showing the selected block's price.
	PriceDisplaySelector string

	// ClickSettle is waited after clicking a block.
	ClickSettle time.Duration // default: 1500ms

	// MaxBlockClicks bounds block clicks per page visit.
	MaxBlockClicks int // default: 40

	// BlockPolicies holds per-host block policies. The "default" key applies
	// to hosts without their own entry.
	BlockPolicies map[string]BlockPolicyConfig

	// Selection is "min" or "second-min".
	Selection string // default: "min"
}

// PricingConfig controls currency normalization and plausibility.
type PricingConfig struct {
	TargetCurrency string // default: "USD"

	// Rates maps a currency code to its value in USD.
	Rates map[string]float64

	MinPrice float64 // default: 100
	MaxPrice float64 // default: 15000
}

// SourceConfig is one independently scheduled target list.
type SourceConfig struct {
	Name        string `json:"name" yaml:"name"`
	TargetsFile string `json:"targets_file" yaml:"targets_file"`
}

// RunConfig controls the per-target retry and rotation policy.
type RunConfig struct {
	MaxAttempts int // default: 3

	// EmptyRetries is how many extra attempts a clean but empty result earns.
	EmptyRetries int // default: 1

	// RotateEvery forces a fresh session every N targets.
	RotateEvery int // default: 10

	// Pacing is the wait between targets.
	Pacing time.Duration // default: 2s

	// AbortAfter aborts the run after this many consecutive targets
	// could not get a session.
	AbortAfter int // default: 3

	// Interval repeats runs when positive.
	Interval time.Duration

	// DriftThreshold is the SimHash distance above which a page's markup
	// is reported as changed.
	DriftThreshold int // default: 12

	DriftTTL time.Duration // default: 24h

	TargetsFile string // default: "all_games_to_scrape.json"

	// Sources, when set, replaces TargetsFile with several named lists
	// run concurrently.
	Sources []SourceConfig
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver    string // "jsonfile", "sqlite", "postgres"; default: "jsonfile"
	Path      string // default: "prices.json"
	DSN       string
	BatchSize int // default: 200
	MaxConns  int // default: 4
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// CacheConfig controls the history response cache.
type CacheConfig struct {
	MaxEntries int           // default: 500
	TTL        time.Duration // default: 1m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// WebhookConfig controls run completion notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// TraceConfig selects the span exporter. Empty disables tracing.
type TraceConfig struct {
	Exporter string // "", "stdout"
}

// DefaultRates is the static conversion table, in USD per unit.
func DefaultRates() map[string]float64 {
	return map[string]float64{
		"USD": 1.0,
		"EUR": 1.05,
		"GBP": 1.27,
		"ILS": 0.28,
		"NIS": 0.28,
	}
}

// DefaultTiers are the four stadium categories.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{Name: "Category 1", Aliases: []string{"Cat 1", "Cat. 1"}},
		{Name: "Category 2", Aliases: []string{"Cat 2", "Cat. 2"}},
		{Name: "Category 3", Aliases: []string{"Cat 3", "Cat. 3"}},
		{Name: "Category 4", Aliases: []string{"Cat 4", "Cat. 4"}},
	}
}

// DefaultBlockPolicy maps stadium block numbers onto the four categories.
func DefaultBlockPolicy() BlockPolicyConfig {
	return BlockPolicyConfig{
		Ranges: []BlockRange{
			{From: 100, To: 199, Tier: "Category 1"},
			{From: 200, To: 399, Tier: "Category 2"},
			{From: 400, To: 499, Tier: "Category 3"},
			{From: 500, Tier: "Category 4"},
		},
		Markers: map[string]string{
			"club": "Category 1",
			"vip":  "Category 1",
		},
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PRICEWATCH_HOST", "0.0.0.0"),
			Port: envIntOr("PRICEWATCH_PORT", 8080),
			Mode: envOr("PRICEWATCH_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("PRICEWATCH_HEADLESS", true),
			Proxy:      os.Getenv("PRICEWATCH_PROXY"),
			NoSandbox:  envBoolOr("PRICEWATCH_NO_SANDBOX", false),
			BrowserBin: os.Getenv("PRICEWATCH_BROWSER_BIN"),
			Stealth:    envBoolOr("PRICEWATCH_STEALTH", true),
		},
		Session: SessionConfig{
			MaxCreateAttempts: envIntOr("PRICEWATCH_SESSION_ATTEMPTS", 3),
			BackoffStep:       envDurationOr("PRICEWATCH_SESSION_BACKOFF", 2*time.Second),
			RotateAfter:       envIntOr("PRICEWATCH_ROTATE_AFTER", 10),
			MaxAge:            envDurationOr("PRICEWATCH_SESSION_MAX_AGE", 50*time.Minute),
			MemThreshold:      envFloatOr("PRICEWATCH_MEM_THRESHOLD", 0.9),
			ProbeTimeout:      envDurationOr("PRICEWATCH_PROBE_TIMEOUT", 5*time.Second),
		},
		Navigator: NavigatorConfig{
			LoadTimeout:    envDurationOr("PRICEWATCH_LOAD_TIMEOUT", 30*time.Second),
			SettleDelay:    envDurationOr("PRICEWATCH_SETTLE_DELAY", 5*time.Second),
			CurrencyParam:  envOr("PRICEWATCH_CURRENCY_PARAM", "Currency"),
			AcceptLanguage: envOr("PRICEWATCH_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			BlockedResourceTypes: envSliceOr("PRICEWATCH_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("PRICEWATCH_BLOCK_ADS", true),
		},
		Extractor: ExtractorConfig{
			Tiers:                DefaultTiers(),
			AnchorDepth:          envIntOr("PRICEWATCH_ANCHOR_DEPTH", 4),
			TextWindow:           envIntOr("PRICEWATCH_TEXT_WINDOW", 200),
			MaxTextBytes:         envIntOr("PRICEWATCH_MAX_TEXT_BYTES", 200000),
			BlockSelector:        envOr("PRICEWATCH_BLOCK_SELECTOR", "[data-section-id], [data-block-id], g.block"),
			PriceDisplaySelector: envOr("PRICEWATCH_PRICE_SELECTOR", "[data-testid='price-display'], .selected-price"),
			ClickSettle:          envDurationOr("PRICEWATCH_CLICK_SETTLE", 1500*time.Millisecond),
			MaxBlockClicks:       envIntOr("PRICEWATCH_MAX_BLOCK_CLICKS", 40),
			BlockPolicies: map[string]BlockPolicyConfig{
				"default": DefaultBlockPolicy(),
			},
			Selection: envOr("PRICEWATCH_SELECTION", "min"),
		},
		Pricing: PricingConfig{
			TargetCurrency: strings.ToUpper(envOr("PRICEWATCH_CURRENCY", "USD")),
			Rates:          DefaultRates(),
			MinPrice:       envFloatOr("PRICEWATCH_MIN_PRICE", 100),
			MaxPrice:       envFloatOr("PRICEWATCH_MAX_PRICE", 15000),
		},
		Run: RunConfig{
			MaxAttempts:    envIntOr("PRICEWATCH_MAX_ATTEMPTS", 3),
			EmptyRetries:   envIntOr("PRICEWATCH_EMPTY_RETRIES", 1),
			RotateEvery:    envIntOr("PRICEWATCH_ROTATE_EVERY", 10),
			Pacing:         envDurationOr("PRICEWATCH_PACING", 2*time.Second),
			AbortAfter:     envIntOr("PRICEWATCH_ABORT_AFTER", 3),
			Interval:       envDurationOr("PRICEWATCH_INTERVAL", 0),
			DriftThreshold: envIntOr("PRICEWATCH_DRIFT_THRESHOLD", 12),
			DriftTTL:       envDurationOr("PRICEWATCH_DRIFT_TTL", 24*time.Hour),
			TargetsFile:    envOr("PRICEWATCH_TARGETS", "all_games_to_scrape.json"),
		},
		Storage: StorageConfig{
			Driver:    envOr("PRICEWATCH_STORE", "jsonfile"),
			Path:      envOr("PRICEWATCH_STORE_PATH", "prices.json"),
			DSN:       os.Getenv("PRICEWATCH_PG_DSN"),
			BatchSize: envIntOr("PRICEWATCH_STORE_BATCH", 200),
			MaxConns:  envIntOr("PRICEWATCH_STORE_MAX_CONNS", 4),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRICEWATCH_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PRICEWATCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PRICEWATCH_RATE_RPS", 5.0),
			Burst:             envIntOr("PRICEWATCH_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PRICEWATCH_CACHE_MAX_ENTRIES", 500),
			TTL:        envDurationOr("PRICEWATCH_CACHE_TTL", time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("PRICEWATCH_LOG_LEVEL", "info"),
			Format: envOr("PRICEWATCH_LOG_FORMAT", "json"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("PRICEWATCH_WEBHOOK_URL"),
			Secret: os.Getenv("PRICEWATCH_WEBHOOK_SECRET"),
		},
		Trace: TraceConfig{
			Exporter: os.Getenv("PRICEWATCH_TRACE"),
		},
	}
}

// Validate reports the first inconsistency in cfg.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Extractor.Tiers) == 0 {
		errs = append(errs, errors.New("extractor: at least one tier is required"))
	}
	seen := make(map[string]struct{}, len(c.Extractor.Tiers))
	for _, t := range c.Extractor.Tiers {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, errors.New("extractor: tier with empty name"))
			continue
		}
		if _, dup := seen[t.Name]; dup {
			errs = append(errs, fmt.Errorf("extractor: duplicate tier %q", t.Name))
		}
		seen[t.Name] = struct{}{}
	}
	for host, p := range c.Extractor.BlockPolicies {
		for _, r := range p.Ranges {
			if _, ok := seen[r.Tier]; !ok {
				errs = append(errs, fmt.Errorf("extractor: block policy %q maps to unknown tier %q", host, r.Tier))
			}
		}
		for marker, tier := range p.Markers {
			if _, ok := seen[tier]; !ok {
				errs = append(errs, fmt.Errorf("extractor: block marker %q maps to unknown tier %q", marker, tier))
			}
		}
	}
	switch c.Extractor.Selection {
	case "min", "second-min":
	default:
		errs = append(errs, fmt.Errorf("extractor: unknown selection %q", c.Extractor.Selection))
	}
	if _, ok := c.Pricing.Rates[c.Pricing.TargetCurrency]; !ok {
		errs = append(errs, fmt.Errorf("pricing: no rate for target currency %q", c.Pricing.TargetCurrency))
	}
	if c.Pricing.MinPrice >= c.Pricing.MaxPrice {
		errs = append(errs, fmt.Errorf("pricing: min price %.2f must be below max price %.2f", c.Pricing.MinPrice, c.Pricing.MaxPrice))
	}
	if c.Run.MaxAttempts < 1 {
		errs = append(errs, errors.New("run: max attempts must be at least 1"))
	}
	if c.Session.MaxCreateAttempts < 1 {
		errs = append(errs, errors.New("session: max create attempts must be at least 1"))
	}
	switch c.Storage.Driver {
	case "jsonfile", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage: postgres requires a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}

// TierNames returns the configured tier names in order.
func (c ExtractorConfig) TierNames() []string {
	names := make([]string, len(c.Tiers))
	for i, t := range c.Tiers {
		names[i] = t.Name
	}
	return names
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

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/maltedev/vendor-scraper/internal/export"
	"github.com/maltedev/vendor-scraper/internal/scraper"
)

const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

type Config struct {
	Server  ServerConfig
	Scraper ScraperConfig
	Browser BrowserConfig
	Redis   RedisConfig
	Export  ExportConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	RequestDelay     time.Duration
	Timeout          time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	MaxBackoff       time.Duration
	Jitter           time.Duration
	Concurrency      int
	Fetcher          string
	CloudflareBypass bool
	UserAgents       []string
	// CookieDir enables harvested session cookies for vendors behind bot
	// walls; empty disables them.
	CookieDir        string
	CookieTTL        time.Duration
	CookieHarvest    bool
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

// RedisConfig is optional; an empty Addr disables every Redis feature.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	Stream          string
	StreamMaxLen    int64
	SharedRateLimit bool
}

type ExportConfig struct {
	Dir    string
	Prefix string
	Format string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the environment, after applying a .env file from the working
// directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	defaults := scraper.DefaultPolicy()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			RequestDelay:     getDurationOrDefault("SCRAPER_REQUEST_DELAY", defaults.RequestDelay),
			Timeout:          getDurationOrDefault("SCRAPER_TIMEOUT", defaults.Timeout),
			MaxAttempts:      getIntOrDefault("SCRAPER_MAX_ATTEMPTS", defaults.MaxAttempts),
			BackoffBase:      getDurationOrDefault("SCRAPER_BACKOFF_BASE", defaults.BackoffBase),
			MaxBackoff:       getDurationOrDefault("SCRAPER_MAX_BACKOFF", defaults.MaxBackoff),
			Jitter:           getDurationOrDefault("SCRAPER_JITTER", 0),
			Concurrency:      getIntOrDefault("SCRAPER_CONCURRENCY", 4),
			Fetcher:          strings.ToLower(getEnvOrDefault("SCRAPER_FETCHER", FetcherHTTP)),
			CloudflareBypass: getBoolOrDefault("SCRAPER_CLOUDFLARE_BYPASS", false),
			UserAgents:       getStringSliceOrDefault("SCRAPER_USER_AGENTS", defaultUserAgents()),
			CookieDir:        getEnvOrDefault("SCRAPER_COOKIE_DIR", ""),
			CookieTTL:        getDurationOrDefault("SCRAPER_COOKIE_TTL", 12*time.Hour),
			CookieHarvest:    getBoolOrDefault("SCRAPER_COOKIE_HARVEST", true),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "UTC"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Redis: RedisConfig{
			Addr:            getEnvOrDefault("REDIS_ADDR", ""),
			Password:        getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:              getIntOrDefault("REDIS_DB", 0),
			Stream:          getEnvOrDefault("REDIS_STREAM", "stream:scraped_products"),
			StreamMaxLen:    int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
			SharedRateLimit: getBoolOrDefault("REDIS_SHARED_RATE_LIMIT", false),
		},
		Export: ExportConfig{
			Dir:    getEnvOrDefault("EXPORT_DIR", "exports"),
			Prefix: getEnvOrDefault("EXPORT_PREFIX", export.DefaultPrefix),
			Format: strings.ToLower(getEnvOrDefault("EXPORT_FORMAT", string(export.FormatXLSX))),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scraper.Concurrency < 1 {
		return fmt.Errorf("SCRAPER_CONCURRENCY must be at least 1")
	}

	if c.Scraper.RequestDelay < 0 || c.Scraper.BackoffBase < 0 || c.Scraper.MaxBackoff < 0 || c.Scraper.Jitter < 0 {
		return fmt.Errorf("scraper delays must not be negative")
	}

	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("SCRAPER_TIMEOUT must be positive")
	}

	if c.Scraper.CookieDir != "" && c.Scraper.CookieTTL <= 0 {
		return fmt.Errorf("SCRAPER_COOKIE_TTL must be positive")
	}

	if c.Scraper.Fetcher != FetcherHTTP && c.Scraper.Fetcher != FetcherBrowser {
		return fmt.Errorf("SCRAPER_FETCHER must be %q or %q, got %q", FetcherHTTP, FetcherBrowser, c.Scraper.Fetcher)
	}

	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		return fmt.Errorf("EXPORT_FORMAT: %w", err)
	}

	if c.Redis.SharedRateLimit && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_SHARED_RATE_LIMIT requires REDIS_ADDR")
	}

	return nil
}

// Policy is the configured scraper policy, before per-invocation overrides.
func (c ScraperConfig) Policy() scraper.Policy {
	return scraper.Policy{
		RequestDelay: c.RequestDelay,
		Timeout:      c.Timeout,
		MaxAttempts:  c.MaxAttempts,
		BackoffBase:  c.BackoffBase,
		MaxBackoff:   c.MaxBackoff,
	}
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, s := range strings.Split(value, "|") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:141.0) Gecko/20100101 Firefox/141.0",
	}
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/newthinker/marketlens/internal/core"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Fusion    FusionConfig    `mapstructure:"fusion"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Router    RouterConfig    `mapstructure:"router"`
	Notifiers NotifiersConfig `mapstructure:"notifiers"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// LogConfig selects the zap level and encoding.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// ProviderConfig configures one upstream adapter. A provider without an
// API key is not registered.
type ProviderConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// Enabled reports whether the provider has credentials.
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

type ProvidersConfig struct {
	Polygon      ProviderConfig `mapstructure:"polygon"`
	AlphaVantage ProviderConfig `mapstructure:"alpha_vantage"`
	Finnhub      ProviderConfig `mapstructure:"finnhub"`
	TwelveData   ProviderConfig `mapstructure:"twelve_data"`
	Twitter      ProviderConfig `mapstructure:"twitter"`
}

// CacheConfig selects where cached payloads live.
type CacheConfig struct {
	Backend      string                   `mapstructure:"backend"` // memory, localfs, s3 or redis
	Path         string                   `mapstructure:"path"`    // For localfs
	S3           S3Config                 `mapstructure:"s3"`
	Redis        RedisConfig              `mapstructure:"redis"`
	TTL          map[string]time.Duration `mapstructure:"ttl"` // overrides keyed by class
	StaleEntries int                      `mapstructure:"stale_entries"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Namespace string `mapstructure:"namespace"`
}

type StorageConfig struct {
	Hot HotStorageConfig `mapstructure:"hot"`
}

type HotStorageConfig struct {
	DSN           string `mapstructure:"dsn"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// FusionConfig tunes provider fallback and indicator computation.
type FusionConfig struct {
	Primary       string        `mapstructure:"primary"`
	Secondary     string        `mapstructure:"secondary"`
	QuoteOrder    []string      `mapstructure:"quote_order"`
	MACDSignal    string        `mapstructure:"macd_signal"` // single_point or standard
	HistoryDays   int           `mapstructure:"history_days"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

// RefreshConfig drives the periodic watchlist analysis.
type RefreshConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	Watchlist   []string      `mapstructure:"watchlist"`
}

type RouterConfig struct {
	CooldownHours int     `mapstructure:"cooldown_hours"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

type NotifiersConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Secret  string            `mapstructure:"secret"`
	Retries int               `mapstructure:"retries"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Claude   ClaudeConfig  `mapstructure:"claude"`
	OpenAI   OpenAIConfig  `mapstructure:"openai"`
}

type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// envKeys binds the conventional variable names of secrets so they work
// without a config file.
var envKeys = map[string]string{
	"providers.polygon.api_key":       "POLYGON_API_KEY",
	"providers.alpha_vantage.api_key": "ALPHA_VANTAGE_API_KEY",
	"providers.finnhub.api_key":       "FINNHUB_API_KEY",
	"providers.twelve_data.api_key":   "TWELVE_DATA_API_KEY",
	"providers.twitter.api_key":       "TWITTER_BEARER_TOKEN",
	"server.api_key":                  "MARKETLENS_API_KEY",
	"storage.hot.dsn":                 "DATABASE_URL",
	"llm.claude.api_key":              "ANTHROPIC_API_KEY",
	"llm.openai.api_key":              "OPENAI_API_KEY",
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none)
// into the process environment. Missing files are skipped and variables
// already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from file on top of Defaults. An empty path
// uses the defaults and the environment only.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envKeys {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Mode:        "release",
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Providers: ProvidersConfig{
			Polygon:      ProviderConfig{Timeout: 10 * time.Second},
			AlphaVantage: ProviderConfig{Timeout: 10 * time.Second, RequestsPerMinute: 5},
			Finnhub:      ProviderConfig{Timeout: 10 * time.Second, RequestsPerMinute: 60},
			TwelveData:   ProviderConfig{Timeout: 10 * time.Second, RequestsPerMinute: 8},
			Twitter:      ProviderConfig{Timeout: 10 * time.Second},
		},
		Cache: CacheConfig{
			Backend:      "memory",
			Path:         "./data/cache",
			StaleEntries: 1024,
		},
		Storage: StorageConfig{
			Hot: HotStorageConfig{
				RetentionDays: 90,
			},
		},
		Fusion: FusionConfig{
			Primary:       core.ProviderPolygon,
			Secondary:     core.ProviderTwelveData,
			QuoteOrder:    []string{core.ProviderPolygon, core.ProviderFinnhub, core.ProviderAlphaVantage, core.ProviderTwelveData},
			MACDSignal:    "single_point",
			HistoryDays:   100,
			RetryAttempts: 2,
			RetryBackoff:  500 * time.Millisecond,
		},
		Refresh: RefreshConfig{
			Enabled:     false,
			Interval:    5 * time.Minute,
			Concurrency: 4,
		},
		Router: RouterConfig{
			CooldownHours: 4,
			MinConfidence: 0.6,
		},
		Notifiers: NotifiersConfig{
			Webhook: WebhookConfig{Timeout: 30 * time.Second},
		},
		LLM: LLMConfig{
			Timeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

var knownProviders = map[string]bool{
	core.ProviderPolygon:      true,
	core.ProviderAlphaVantage: true,
	core.ProviderFinnhub:      true,
	core.ProviderTwelveData:   true,
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Cache validation
	switch c.Cache.Backend {
	case "", "memory":
	case "localfs":
		if c.Cache.Path == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("cache.path required for localfs backend"))
		}
	case "s3":
		if c.Cache.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("cache.s3.bucket required for s3 backend"))
		}
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("cache.redis.addr required for redis backend"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cache.backend must be memory, localfs, s3 or redis, got %q", c.Cache.Backend))
	}

	// Fusion validation
	for _, name := range append([]string{c.Fusion.Primary, c.Fusion.Secondary}, c.Fusion.QuoteOrder...) {
		if name != "" && !knownProviders[name] {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown provider %q in fusion", name))
		}
	}
	switch c.Fusion.MACDSignal {
	case "", "single_point", "standard":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fusion.macd_signal must be single_point or standard, got %q", c.Fusion.MACDSignal))
	}

	// Refresh validation
	if c.Refresh.Enabled && c.Refresh.Interval < time.Second {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("refresh.interval must be at least 1s, got %s", c.Refresh.Interval))
	}

	// Router validation
	if c.Router.MinConfidence < 0 || c.Router.MinConfidence > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_confidence must be between 0 and 1, got %f", c.Router.MinConfidence))
	}
	if c.Router.CooldownHours < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cooldown_hours cannot be negative, got %d", c.Router.CooldownHours))
	}

	if c.Notifiers.Webhook.Enabled && c.Notifiers.Webhook.URL == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("notifiers.webhook.url required when enabled"))
	}

	// LLM validation - if provider set, check config exists
	switch c.LLM.Provider {
	case "":
	case "claude":
		if c.LLM.Claude.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("claude api_key required when provider is claude"))
		}
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("openai api_key required when provider is openai"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}

	return nil
}

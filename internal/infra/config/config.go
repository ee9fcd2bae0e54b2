package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverValkey   = "valkey"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	LLM         LLMConfig         `yaml:"llm"`
	Advice      AdviceConfig      `yaml:"advice"`
	Environment EnvironmentConfig `yaml:"environment"`
	Store       StoreConfig       `yaml:"store"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// LLMConfig selects and configures the AI provider.
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	APIKey         string        `yaml:"apiKey"`
	BaseURL        string        `yaml:"baseUrl"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"maxTokens"`
	Temperature    float64       `yaml:"temperature"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	RetryBackoff   time.Duration `yaml:"retryBackoff"`
}

// AdviceConfig controls the advisory pipeline.
type AdviceConfig struct {
	DefaultLocale      string        `yaml:"defaultLocale"`
	Timezone           string        `yaml:"timezone"`
	EnvironmentTimeout time.Duration `yaml:"environmentTimeout"`
	GenerationTimeout  time.Duration `yaml:"generationTimeout"`
	CacheTTL           time.Duration `yaml:"cacheTtl"`
	Retention          time.Duration `yaml:"retention"`
	FallbackLookback   int           `yaml:"fallbackLookback"`
	TopicWindowDays    int           `yaml:"topicWindowDays"`
	MaxRecentTopics    int           `yaml:"maxRecentTopics"`
	SupplementEnabled  bool          `yaml:"supplementEnabled"`
}

// EnvironmentConfig points at the weather and air quality APIs.
type EnvironmentConfig struct {
	WeatherBaseURL    string `yaml:"weatherBaseUrl"`
	AirQualityBaseURL string `yaml:"airQualityBaseUrl"`
}

// StoreConfig selects the advice KV backend.
type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Memory   MemoryConfig   `yaml:"memory"`
	Valkey   ValkeyConfig   `yaml:"valkey"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// MemoryConfig bounds the in-process store.
type MemoryConfig struct {
	Size int `yaml:"size"`
}

// ValkeyConfig contains connection information for cache storage.
type ValkeyConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// SQLiteConfig locates the local database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from .env, a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTP.Address, "HTTP_ADDRESS")
	setBool(&cfg.HTTP.RateLimit.Enabled, "HTTP_RATE_LIMIT_ENABLED")
	setInt(&cfg.HTTP.RateLimit.RequestsPerMinute, "HTTP_RATE_LIMIT_RPM")
	setInt(&cfg.HTTP.RateLimit.Burst, "HTTP_RATE_LIMIT_BURST")
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case ProviderAnthropic:
			setString(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
		case ProviderOpenAI:
			setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
		}
	}
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setInt(&cfg.LLM.MaxTokens, "LLM_MAX_TOKENS")
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = parsed
		}
	}
	setDuration(&cfg.LLM.RequestTimeout, "LLM_REQUEST_TIMEOUT")
	setDuration(&cfg.LLM.RetryBackoff, "LLM_RETRY_BACKOFF")

	setString(&cfg.Advice.DefaultLocale, "ADVICE_DEFAULT_LOCALE")
	setString(&cfg.Advice.Timezone, "ADVICE_TIMEZONE")
	setDuration(&cfg.Advice.EnvironmentTimeout, "ADVICE_ENVIRONMENT_TIMEOUT")
	setDuration(&cfg.Advice.GenerationTimeout, "ADVICE_GENERATION_TIMEOUT")
	setDuration(&cfg.Advice.CacheTTL, "ADVICE_CACHE_TTL")
	setDuration(&cfg.Advice.Retention, "ADVICE_RETENTION")
	setInt(&cfg.Advice.FallbackLookback, "ADVICE_FALLBACK_LOOKBACK")
	setInt(&cfg.Advice.TopicWindowDays, "ADVICE_TOPIC_WINDOW_DAYS")
	setInt(&cfg.Advice.MaxRecentTopics, "ADVICE_MAX_RECENT_TOPICS")
	setBool(&cfg.Advice.SupplementEnabled, "ADVICE_SUPPLEMENT_ENABLED")

	setString(&cfg.Environment.WeatherBaseURL, "ENVIRONMENT_WEATHER_BASE_URL")
	setString(&cfg.Environment.AirQualityBaseURL, "ENVIRONMENT_AIR_QUALITY_BASE_URL")

	setString(&cfg.Store.Driver, "STORE_DRIVER")
	setInt(&cfg.Store.Memory.Size, "STORE_MEMORY_SIZE")
	setString(&cfg.Store.Valkey.Addr, "STORE_VALKEY_ADDR")
	setString(&cfg.Store.Valkey.Prefix, "STORE_VALKEY_PREFIX")
	setString(&cfg.Store.Postgres.DSN, "STORE_POSTGRES_DSN")
	if v := os.Getenv("STORE_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Store.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("STORE_POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Store.Postgres.MinConns = int32(parsed)
		}
	}
	setString(&cfg.Store.SQLite.Path, "STORE_SQLITE_PATH")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		LLM: LLMConfig{
			Provider:       ProviderAnthropic,
			Model:          "claude-sonnet-4-5",
			MaxTokens:      1500,
			Temperature:    0.7,
			RequestTimeout: 45 * time.Second,
			RetryBackoff:   time.Second,
		},
		Advice: AdviceConfig{
			DefaultLocale:      "en",
			Timezone:           "UTC",
			EnvironmentTimeout: 5 * time.Second,
			GenerationTimeout:  60 * time.Second,
			CacheTTL:           24 * time.Hour,
			Retention:          4 * 24 * time.Hour,
			FallbackLookback:   3,
			TopicWindowDays:    14,
			MaxRecentTopics:    10,
			SupplementEnabled:  true,
		},
		Environment: EnvironmentConfig{
			WeatherBaseURL:    "https://api.open-meteo.com/v1/forecast",
			AirQualityBaseURL: "https://air-quality-api.open-meteo.com/v1/air-quality",
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			Memory: MemoryConfig{Size: 10000},
			Valkey: ValkeyConfig{Prefix: "daily-advisor"},
			Postgres: PostgresConfig{
				MaxConns: 4,
				MinConns: 0,
			},
			SQLite: SQLiteConfig{Path: "data/advice.db"},
		},
	}
}

// Location resolves the configured advice timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Advice.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// maxTemperature is the upper sampling temperature each provider accepts.
func maxTemperature(provider string) float64 {
	if provider == ProviderAnthropic {
		return 1
	}
	return 2
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("llm.provider %q must be %s or %s", c.LLM.Provider, ProviderAnthropic, ProviderOpenAI)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model cannot be empty")
	}
	if c.LLM.MaxTokens <= 0 {
		return errors.New("llm.maxTokens must be positive")
	}
	if maxTemp := maxTemperature(c.LLM.Provider); c.LLM.Temperature < 0 || c.LLM.Temperature > maxTemp {
		return fmt.Errorf("llm.temperature must be between 0 and %g for %s", maxTemp, c.LLM.Provider)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("advice.timezone: %w", err)
	}
	if c.Advice.CacheTTL <= 0 {
		return errors.New("advice.cacheTtl must be positive")
	}
	if c.Advice.FallbackLookback < 0 {
		return errors.New("advice.fallbackLookback cannot be negative")
	}
	if c.Advice.Retention < time.Duration(c.Advice.FallbackLookback+1)*24*time.Hour {
		return errors.New("advice.retention must cover the fallback lookback")
	}
	if c.Advice.TopicWindowDays <= 0 {
		return errors.New("advice.topicWindowDays must be positive")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverValkey:
		if strings.TrimSpace(c.Store.Valkey.Addr) == "" {
			return errors.New("store.valkey.addr cannot be empty when the valkey driver is selected")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.Postgres.DSN) == "" {
			return errors.New("store.postgres.dsn cannot be empty when the postgres driver is selected")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLite.Path) == "" {
			return errors.New("store.sqlite.path cannot be empty when the sqlite driver is selected")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	return nil
}

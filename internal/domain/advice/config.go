package advice

import (
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Config wires runtime knobs for the advice domain.
type Config struct {
	Model              string
	MaxTokens          int
	Temperature        fn.Option[float64]
	Credential         string
	RetryBackoff       time.Duration
	DefaultLocale      string
	Timezone           *time.Location
	EnvironmentTimeout time.Duration
	GenerationTimeout  time.Duration
	CacheTTL           time.Duration
	Retention          time.Duration
	FallbackLookback   int
	TopicWindowDays    int
	MaxRecentTopics    int
	SupplementEnabled  bool
}

const (
	defaultCacheTTL           = 24 * time.Hour
	defaultRetention          = 4 * 24 * time.Hour
	defaultFallbackLookback   = 3
	defaultTopicWindowDays    = 14
	defaultMaxRecentTopics    = 10
	defaultEnvironmentTimeout = 5 * time.Second
	defaultGenerationTimeout  = 60 * time.Second
	defaultRetryBackoff       = time.Second
	defaultMaxTokens          = 1500
	supplementGateTTL         = 48 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	if c.FallbackLookback <= 0 {
		c.FallbackLookback = defaultFallbackLookback
	}
	if c.TopicWindowDays <= 0 {
		c.TopicWindowDays = defaultTopicWindowDays
	}
	if c.MaxRecentTopics <= 0 {
		c.MaxRecentTopics = defaultMaxRecentTopics
	}
	if c.EnvironmentTimeout <= 0 {
		c.EnvironmentTimeout = defaultEnvironmentTimeout
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = defaultGenerationTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.DefaultLocale == "" {
		c.DefaultLocale = "en"
	}
	if c.Timezone == nil {
		c.Timezone = time.UTC
	}
	return c
}

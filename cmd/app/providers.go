package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/daily-advisor/internal/bootstrap"
	"github.com/yanqian/daily-advisor/internal/domain/advice"
	"github.com/yanqian/daily-advisor/internal/infra/advicestore"
	"github.com/yanqian/daily-advisor/internal/infra/config"
	"github.com/yanqian/daily-advisor/internal/infra/environment/openmeteo"
	"github.com/yanqian/daily-advisor/internal/infra/llm/anthropic"
	"github.com/yanqian/daily-advisor/internal/infra/llm/chatgpt"
)

const storeConnectTimeout = 5 * time.Second

func provideLocation(cfg *config.Config) (*time.Location, error) {
	return cfg.Location()
}

func provideAdviceConfig(cfg *config.Config, loc *time.Location) advice.Config {
	return advice.Config{
		Model:              cfg.LLM.Model,
		MaxTokens:          cfg.LLM.MaxTokens,
		Temperature:        fn.Some(cfg.LLM.Temperature),
		Credential:         cfg.LLM.APIKey,
		RetryBackoff:       cfg.LLM.RetryBackoff,
		DefaultLocale:      cfg.Advice.DefaultLocale,
		Timezone:           loc,
		EnvironmentTimeout: cfg.Advice.EnvironmentTimeout,
		GenerationTimeout:  cfg.Advice.GenerationTimeout,
		CacheTTL:           cfg.Advice.CacheTTL,
		Retention:          cfg.Advice.Retention,
		FallbackLookback:   cfg.Advice.FallbackLookback,
		TopicWindowDays:    cfg.Advice.TopicWindowDays,
		MaxRecentTopics:    cfg.Advice.MaxRecentTopics,
		SupplementEnabled:  cfg.Advice.SupplementEnabled,
	}
}

// provideKVStore opens the configured backend. Network backends that cannot
// be reached degrade to the in-memory store so the service still starts.
func provideKVStore(cfg *config.Config, logger *slog.Logger) (advice.KVStore, func(), error) {
	log := logger.With("component", "advicestore.provider")
	noop := func() {}

	switch cfg.Store.Driver {
	case config.DriverValkey:
		store, cleanup, err := openValkeyStore(cfg)
		if err == nil {
			log.Info("valkey advice store enabled", "addr", cfg.Store.Valkey.Addr)
			return store, cleanup, nil
		}
		log.Error("valkey store unavailable, falling back to memory store", "error", err)
	case config.DriverPostgres:
		store, cleanup, err := openPostgresStore(cfg)
		if err == nil {
			log.Info("postgres advice store enabled")
			return store, cleanup, nil
		}
		log.Error("postgres store unavailable, falling back to memory store", "error", err)
	case config.DriverSQLite:
		store, err := advicestore.OpenSQLite(cfg.Store.SQLite.Path, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite advice store: %w", err)
		}
		log.Info("sqlite advice store enabled", "path", cfg.Store.SQLite.Path)
		return store, func() { _ = store.Close() }, nil
	}

	store, err := advicestore.NewMemoryStore(cfg.Store.Memory.Size)
	if err != nil {
		return nil, noop, err
	}
	return store, noop, nil
}

func openValkeyStore(cfg *config.Config) (*advicestore.ValkeyStore, func(), error) {
	opt, err := buildValkeyOptions(cfg.Store.Valkey.Addr)
	if err != nil {
		return nil, nil, err
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, nil, err
	}
	return advicestore.NewValkeyStore(client, cfg.Store.Valkey.Prefix), client.Close, nil
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

func openPostgresStore(cfg *config.Config) (*advicestore.PostgresStore, func(), error) {
	poolConfig, err := pgxpool.ParseConfig(strings.TrimSpace(cfg.Store.Postgres.DSN))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.Store.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Store.Postgres.MaxConns
	}
	if cfg.Store.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Store.Postgres.MinConns
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	store, err := advicestore.NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

func providePurger(kv advice.KVStore) bootstrap.Purger {
	if purger, ok := kv.(bootstrap.Purger); ok {
		return purger
	}
	return nil
}

func provideCacheStore(kv advice.KVStore, cfg advice.Config) advice.Store {
	return advice.NewCacheStore(kv, cfg)
}

func provideSupplementGate(kv advice.KVStore) advice.SupplementGate {
	return advice.NewSupplementGate(kv)
}

func provideHealthProvider() advice.HealthProvider {
	return advice.NewBundledHealthProvider()
}

// provideEnvironmentGateway returns nil when no weather endpoint is set,
// which disables environmental context.
func provideEnvironmentGateway(cfg *config.Config, logger *slog.Logger) advice.EnvironmentGateway {
	if strings.TrimSpace(cfg.Environment.WeatherBaseURL) == "" {
		return nil
	}
	return openmeteo.NewClient(cfg.Environment.WeatherBaseURL, cfg.Environment.AirQualityBaseURL, logger)
}

func provideAIProvider(cfg *config.Config) (advice.Provider, error) {
	switch cfg.LLM.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewProvider(cfg.LLM.BaseURL, cfg.LLM.RequestTimeout), nil
	case config.ProviderOpenAI:
		return chatgpt.NewProvider(chatgpt.NewClient(cfg.LLM.BaseURL, cfg.LLM.RequestTimeout)), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
}

package advice

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	apperrors "github.com/yanqian/daily-advisor/pkg/errors"
)

// Provider is the chat-style AI backend adapter.
type Provider interface {
	Complete(ctx context.Context, req ProviderRequest) (RawModelOutput, error)
}

var placeholderCredentials = []*regexp.Regexp{
	regexp.MustCompile(`(?i)your[-_ ]?api[-_ ]?key`),
	regexp.MustCompile(`(?i)^sk-?x+$`),
	regexp.MustCompile(`^<.*>$`),
	regexp.MustCompile(`(?i)changeme`),
	regexp.MustCompile(`(?i)placeholder`),
	regexp.MustCompile(`(?i)^x+$`),
	regexp.MustCompile(`(?i)replace[-_ ]?me`),
	regexp.MustCompile(`(?i)dummy`),
	regexp.MustCompile(`(?i)test[-_]?key`),
}

// ValidateCredential rejects empty and obviously fake api keys.
func ValidateCredential(credential string) error {
	trimmed := strings.TrimSpace(credential)
	if trimmed == "" {
		return apperrors.Wrap(CodeCredential, "api credential is not configured", nil)
	}
	for _, pattern := range placeholderCredentials {
		if pattern.MatchString(trimmed) {
			return apperrors.Wrap(CodeCredential, "api credential looks like a placeholder", nil)
		}
	}
	return nil
}

// Generator sends layered prompts to a Provider with one bounded retry.
type Generator struct {
	provider    Provider
	model       string
	maxTokens   int
	temperature fn.Option[float64]
	backoff     time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewGenerator wires a generation client over provider.
func NewGenerator(cfg Config, provider Provider, logger *slog.Logger) *Generator {
	cfg = cfg.withDefaults()
	return &Generator{
		provider:    provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		backoff:     cfg.RetryBackoff,
		logger:      logger.With("component", "advice.generator"),
		sleep:       sleepContext,
	}
}

// Generate validates credential before any network call, then calls the
// provider, retrying once on retryable failures.
func (g *Generator) Generate(ctx context.Context, prompt LayeredPrompt, credential string) (RawModelOutput, error) {
	if err := ValidateCredential(credential); err != nil {
		return RawModelOutput{}, err
	}
	req := ProviderRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Credential:  strings.TrimSpace(credential),
		System:      prompt.SystemLayers(),
		User:        prompt.UserData.Text,
	}

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.backoff << (attempt - 1)
			g.logger.Warn("retrying provider call", "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := g.sleep(ctx, delay); err != nil {
				return RawModelOutput{}, apperrors.Wrap(CodeConnection, "provider retry interrupted", err)
			}
		}
		out, err := g.provider.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = classifyProviderError(err)
		if !IsRetryable(lastErr) {
			break
		}
	}
	return RawModelOutput{}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/yanqian/daily-advisor/internal/domain/advice"
	"github.com/yanqian/daily-advisor/pkg/metrics"
)

const maxErrorBody = 4 << 10

// Provider adapts the Anthropic Messages API to advice.Provider. Cacheable
// system layers carry an ephemeral cache_control marker.
type Provider struct {
	client anthropic.Client
}

// NewProvider builds the adapter. SDK retries are disabled because the
// generation client owns the retry policy.
func NewProvider(baseURL string, timeout time.Duration) *Provider {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Provider{client: anthropic.NewClient(opts...)}
}

func (p *Provider) Complete(ctx context.Context, req advice.ProviderRequest) (advice.RawModelOutput, error) {
	system := make([]anthropic.TextBlockParam, 0, len(req.System))
	for _, layer := range req.System {
		block := anthropic.TextBlockParam{Text: layer.Text}
		if layer.Cacheable {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		system = append(system, block)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		System:    system,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	req.Temperature.WhenSome(func(t float64) {
		params.Temperature = anthropic.Float(t)
	})

	msg, err := p.client.Messages.New(ctx, params, option.WithAPIKey(req.Credential))
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			body := apiErr.RawJSON()
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			return advice.RawModelOutput{}, &advice.ProviderStatusError{StatusCode: apiErr.StatusCode, Body: body}
		}
		return advice.RawModelOutput{}, err
	}

	out := advice.RawModelOutput{
		Model: string(msg.Model),
		Usage: metrics.TokenUsage{
			PromptTokens:        int(msg.Usage.InputTokens),
			CompletionTokens:    int(msg.Usage.OutputTokens),
			TotalTokens:         int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
			CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
		},
	}
	for _, block := range msg.Content {
		out.Blocks = append(out.Blocks, advice.ContentBlock{Type: block.Type, Text: block.Text})
	}
	return out, nil
}

var _ advice.Provider = (*Provider)(nil)

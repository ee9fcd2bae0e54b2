package chatgpt

import (
	"context"
	"errors"
	"strings"

	"github.com/yanqian/daily-advisor/internal/domain/advice"
	apperrors "github.com/yanqian/daily-advisor/pkg/errors"
	"github.com/yanqian/daily-advisor/pkg/metrics"
)

// Provider adapts the ChatGPT client to advice.Provider. Chat completions
// have no per-segment cache hints, so system layers are joined.
type Provider struct {
	client *Client
}

// NewProvider constructs the adapter.
func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Complete(ctx context.Context, req advice.ProviderRequest) (advice.RawModelOutput, error) {
	system := make([]string, 0, len(req.System))
	for _, layer := range req.System {
		system = append(system, layer.Text)
	}
	chatReq := ChatCompletionRequest{
		Model:               req.Model,
		MaxCompletionTokens: req.MaxTokens,
		Messages: []Message{
			{Role: "system", Content: strings.Join(system, "\n\n")},
			{Role: "user", Content: req.User},
		},
	}
	req.Temperature.WhenSome(func(t float64) {
		temperature := float32(t)
		chatReq.Temperature = &temperature
	})

	resp, err := p.client.CreateChatCompletion(ctx, req.Credential, chatReq)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return advice.RawModelOutput{}, &advice.ProviderStatusError{StatusCode: statusErr.StatusCode, Body: statusErr.Body}
		}
		if errors.Is(err, ErrDecode) {
			return advice.RawModelOutput{}, apperrors.Wrap(advice.CodeMalformedResponse, "chat completion body is not valid json", err)
		}
		return advice.RawModelOutput{}, err
	}

	out := advice.RawModelOutput{
		Model: resp.Model,
		Usage: metrics.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			CacheReadTokens:  resp.Usage.PromptTokensDetails.CachedTokens,
		},
	}
	for _, choice := range resp.Choices {
		out.Blocks = append(out.Blocks, advice.ContentBlock{Type: "text", Text: choice.Message.Content})
	}
	return out, nil
}

var _ advice.Provider = (*Provider)(nil)

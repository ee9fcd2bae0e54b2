package advice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/daily-advisor/pkg/errors"
)

type stubProvider struct {
	responses []RawModelOutput
	errs      []error
	calls     int
	last      ProviderRequest
}

func (s *stubProvider) Complete(_ context.Context, req ProviderRequest) (RawModelOutput, error) {
	idx := s.calls
	s.calls++
	s.last = req
	if idx < len(s.errs) && s.errs[idx] != nil {
		return RawModelOutput{}, s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	if len(s.responses) > 0 {
		return s.responses[len(s.responses)-1], nil
	}
	return RawModelOutput{}, errors.New("no stub response")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGenerator(provider Provider) (*Generator, *[]time.Duration) {
	gen := NewGenerator(Config{Model: "test-model", RetryBackoff: 250 * time.Millisecond}, provider, discardLogger())
	var slept []time.Duration
	gen.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return gen, &slept
}

const validKey = "sk-ant-live-0123456789"

func TestValidateCredential(t *testing.T) {
	rejected := []string{"", "   ", "your-api-key", "YOUR_API_KEY", "sk-xxxx", "<api key>", "changeme", "placeholder", "xxxxxxxx", "replace_me", "dummy", "test-key"}
	for _, credential := range rejected {
		err := ValidateCredential(credential)
		require.True(t, apperrors.IsCode(err, CodeCredential), credential)
	}
	require.NoError(t, ValidateCredential(validKey))
}

func TestGenerateRejectsCredentialBeforeNetwork(t *testing.T) {
	provider := &stubProvider{}
	gen, _ := newTestGenerator(provider)

	_, err := gen.Generate(context.Background(), NewPromptBuilder().Build(sampleContext()), "your-api-key")
	require.True(t, apperrors.IsCode(err, CodeCredential))
	require.Zero(t, provider.calls)
}

func TestGenerateSendsLayers(t *testing.T) {
	provider := &stubProvider{responses: []RawModelOutput{textOutput(completeAdviceJSON)}}
	gen, slept := newTestGenerator(provider)
	prompt := NewPromptBuilder().Build(sampleContext())

	out, err := gen.Generate(context.Background(), prompt, "  "+validKey+" ")
	require.NoError(t, err)
	require.Len(t, out.Blocks, 1)
	require.Equal(t, 1, provider.calls)
	require.Empty(t, *slept)
	require.Equal(t, validKey, provider.last.Credential)
	require.Equal(t, "test-model", provider.last.Model)
	require.Len(t, provider.last.System, 2)
	require.Equal(t, prompt.UserData.Text, provider.last.User)
}

func TestGenerateRetriesOnceOnTransientErrors(t *testing.T) {
	provider := &stubProvider{
		errs:      []error{errors.New("connection reset")},
		responses: []RawModelOutput{{}, textOutput(completeAdviceJSON)},
	}
	gen, slept := newTestGenerator(provider)

	_, err := gen.Generate(context.Background(), LayeredPrompt{}, validKey)
	require.NoError(t, err)
	require.Equal(t, 2, provider.calls)
	require.Equal(t, []time.Duration{250 * time.Millisecond}, *slept)
}

func TestGenerateGivesUpAfterOneRetry(t *testing.T) {
	overloaded := &ProviderStatusError{StatusCode: 529}
	provider := &stubProvider{errs: []error{overloaded, overloaded, overloaded}}
	gen, _ := newTestGenerator(provider)

	_, err := gen.Generate(context.Background(), LayeredPrompt{}, validKey)
	require.True(t, apperrors.IsCode(err, CodeProvider))
	require.Equal(t, 529, StatusCodeOf(err))
	require.Equal(t, 2, provider.calls)
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, CodeProvider},
		{http.StatusTooManyRequests, CodeProvider},
		{http.StatusUnauthorized, CodeCredential},
		{http.StatusForbidden, CodeCredential},
	}
	for _, tc := range tests {
		provider := &stubProvider{errs: []error{&ProviderStatusError{StatusCode: tc.status}}}
		gen, slept := newTestGenerator(provider)

		_, err := gen.Generate(context.Background(), LayeredPrompt{}, validKey)
		require.True(t, apperrors.IsCode(err, tc.code), "status %d", tc.status)
		require.Equal(t, 1, provider.calls)
		require.Empty(t, *slept)
	}
}

func TestGenerateDoesNotRetryMalformedBodies(t *testing.T) {
	malformed := apperrors.Wrap(CodeMalformedResponse, "body is not json", errors.New("invalid character '<'"))
	provider := &stubProvider{errs: []error{malformed, malformed}}
	gen, slept := newTestGenerator(provider)

	_, err := gen.Generate(context.Background(), LayeredPrompt{}, validKey)
	require.True(t, apperrors.IsCode(err, CodeMalformedResponse))
	require.True(t, Recoverable(err))
	require.Equal(t, 1, provider.calls)
	require.Empty(t, *slept)
}

func TestGeneratePassesTemperatureThrough(t *testing.T) {
	provider := &stubProvider{responses: []RawModelOutput{{}}}
	gen := NewGenerator(Config{Temperature: fn.Some(0.0)}, provider, discardLogger())

	_, err := gen.Generate(context.Background(), LayeredPrompt{}, validKey)
	require.NoError(t, err)
	require.Equal(t, fn.Some(0.0), provider.last.Temperature)

	gen = NewGenerator(Config{}, provider, discardLogger())
	_, err = gen.Generate(context.Background(), LayeredPrompt{}, validKey)
	require.NoError(t, err)
	require.True(t, provider.last.Temperature.IsNone())
}

func TestGenerateClassifiesTimeouts(t *testing.T) {
	provider := &stubProvider{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded}}
	gen, _ := newTestGenerator(provider)

	_, err := gen.Generate(context.Background(), LayeredPrompt{}, validKey)
	require.True(t, apperrors.IsCode(err, CodeConnection))
	require.True(t, Recoverable(err))
}

func TestGenerateRetrySleepHonorsContext(t *testing.T) {
	provider := &stubProvider{errs: []error{errors.New("dial tcp: refused")}}
	gen := NewGenerator(Config{RetryBackoff: time.Hour}, provider, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Generate(ctx, LayeredPrompt{}, validKey)
	require.True(t, apperrors.IsCode(err, CodeConnection))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, provider.calls)
}

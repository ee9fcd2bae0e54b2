package advice

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/yanqian/daily-advisor/pkg/errors"
)

// Error codes produced by the advice pipeline.
const (
	CodeInvalidInput          = "invalid_input"
	CodeCoordinateOutOfRange  = "coordinate_out_of_range"
	CodeCredential            = "credential_error"
	CodeConnection            = "connection_error"
	CodeProvider              = "provider_error"
	CodeMalformedResponse     = "malformed_response"
	CodeNotJSON               = "not_json"
	CodeIncompleteAdvice      = "incomplete_advice"
	CodeHealthDataUnavailable = "health_data_unavailable"
)

// ProviderStatusError is returned by provider adapters for non-2xx replies.
type ProviderStatusError struct {
	StatusCode int
	Body       string
}

func (e *ProviderStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider status=%d", e.StatusCode)
	}
	return fmt.Sprintf("provider status=%d body=%s", e.StatusCode, e.Body)
}

// MissingFieldError names the first required advice field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field " + e.Field
}

// ErrHealthDataUnavailable is returned by health providers with nothing to offer.
var ErrHealthDataUnavailable = errors.New("no health measurements for the requested day")

// StatusCodeOf extracts the provider status code carried by err, or 0.
func StatusCodeOf(err error) int {
	var statusErr *ProviderStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// MissingFieldOf extracts the missing field carried by an incomplete_advice error.
func MissingFieldOf(err error) string {
	var fieldErr *MissingFieldError
	if errors.As(err, &fieldErr) {
		return fieldErr.Field
	}
	return ""
}

// Recoverable reports whether the orchestrator should serve the fallback
// chain for err. Request-shape errors are the only ones surfaced to callers.
func Recoverable(err error) bool {
	switch apperrors.CodeOf(err) {
	case CodeInvalidInput, CodeCoordinateOutOfRange:
		return false
	default:
		return err != nil
	}
}

// IsRetryable reports whether the generation client may retry err once.
func IsRetryable(err error) bool {
	switch apperrors.CodeOf(err) {
	case CodeConnection:
		return true
	case CodeProvider:
		return StatusCodeOf(err) >= http.StatusInternalServerError
	default:
		return false
	}
}

// classifyProviderError normalizes an adapter error into the three
// generation client classes.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	switch apperrors.CodeOf(err) {
	case CodeCredential, CodeConnection, CodeProvider, CodeMalformedResponse:
		return err
	}
	var statusErr *ProviderStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.Wrap(CodeCredential, "provider rejected the api credential", err)
		default:
			return apperrors.Wrap(CodeProvider, fmt.Sprintf("provider returned status %d", statusErr.StatusCode), err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(CodeConnection, "provider call timed out", err)
	}
	return apperrors.Wrap(CodeConnection, "provider unreachable", err)
}

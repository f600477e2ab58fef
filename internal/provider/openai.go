// Package provider adapts remote speech-to-text services to the narrow
// Transcribe capability the engine consumes. The default implementation
// targets OpenAI's transcription API; errors are classified into apierr
// sentinels at this boundary.
//
// The provider performs no retries of its own: backoff and retry budgets
// belong to the governor and the chunk processor.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-transcribe-engine/internal/apierr"
	"github.com/alnah/go-transcribe-engine/internal/job"
	"github.com/alnah/go-transcribe-engine/internal/lang"
)

// DefaultModel is the cost-effective transcription model used when a job
// does not name one.
const DefaultModel = "gpt-4o-mini-transcribe"

// audioTranscriber is the slice of the OpenAI client we use.
// *openai.Client implements this implicitly; tests inject mocks.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Compile-time interface compliance check.
var _ audioTranscriber = (*openai.Client)(nil)

// OpenAITranscriber transcribes audio chunks through OpenAI.
// Clients are created per credential handle, so jobs submitted with
// different API keys do not share authorization.
type OpenAITranscriber struct {
	newClient func(apiKey string) audioTranscriber
}

// Option configures an OpenAITranscriber.
type Option func(*OpenAITranscriber)

// WithClientFactory sets the client constructor (for testing).
func WithClientFactory(fn func(apiKey string) audioTranscriber) Option {
	return func(t *OpenAITranscriber) {
		t.newClient = fn
	}
}

// NewOpenAITranscriber creates the default provider adapter.
func NewOpenAITranscriber(opts ...Option) *OpenAITranscriber {
	t := &OpenAITranscriber{
		newClient: func(apiKey string) audioTranscriber {
			return openai.NewClient(apiKey)
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcribe converts one audio file to text using the job's configuration.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string, cfg job.Config) (string, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	req := openai.AudioRequest{
		Model:    model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
		Prompt:   cfg.Prompt,
		Language: lang.BaseCode(cfg.Language), // provider accepts ISO 639-1 base codes only
	}
	if cfg.Temperature != nil {
		req.Temperature = float32(*cfg.Temperature)
	}

	resp, err := t.newClient(cfg.APIKey).CreateTranscription(ctx, req)
	if err != nil {
		return "", classifyError(err)
	}
	return resp.Text, nil
}

// classifyError maps OpenAI API errors to apierr sentinels. 429s become
// typed RateLimitErrors unless the message indicates a quota/billing issue,
// which is not retryable and must not trip the governor's backoff.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			if strings.Contains(apiErr.Message, "quota") ||
				strings.Contains(apiErr.Message, "billing") {
				return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
			}
			return &apierr.RateLimitError{Message: apiErr.Message}
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrAuthFailed)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrTimeout)
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrBadRequest)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}

	return err
}

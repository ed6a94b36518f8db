// Package outreach generates personalized property-sales outreach messages
// through the OpenAI chat completions API.
package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/pysugar/roleplay-nexus/internal/logging"
)

const (
	SystemPrompt = "You are a property sales assistant generating personalized outreach messages."

	model       = openai.ChatModelGPT4oMini
	temperature = 0.7
)

var ErrMissingPrompt = errors.New("missing prompt")

// UpstreamError carries the status code of a failed OpenAI call.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("openai request failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type Generator struct {
	client openai.Client
}

// NewGenerator creates a generator. Extra options are appended after the
// key and base URL.
func NewGenerator(apiKey, baseURL string, opts ...option.RequestOption) *Generator {
	all := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	return &Generator{client: openai.NewClient(all...)}
}

// Generate returns the provider's raw chat completion JSON for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (json.RawMessage, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrMissingPrompt
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		status := http.StatusBadGateway
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
			status = apiErr.StatusCode
		}
		logging.FromContext(ctx).Error("outreach generation failed", "status", status, "error", err)
		return nil, &UpstreamError{StatusCode: status, Err: err}
	}

	raw := completion.RawJSON()
	if raw == "" {
		b, err := json.Marshal(completion)
		if err != nil {
			return nil, fmt.Errorf("encode completion: %w", err)
		}
		return b, nil
	}
	return json.RawMessage(raw), nil
}

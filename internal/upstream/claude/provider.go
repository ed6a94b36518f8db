// Package claude builds Anthropic Messages API requests.
package claude

import (
	"context"
	"net/http"

	"github.com/pysugar/roleplay-nexus/internal/providers/catalog"
	"github.com/pysugar/roleplay-nexus/internal/upstream/keyproxy"
)

const (
	Model      = "claude-3-opus-20240229"
	APIVersion = "2023-06-01"

	maxTokens = 500
	replyPath = "content.0.text"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type Provider struct{}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) BuildRequest(ctx context.Context, desc catalog.ModelDescriptor, prompt string) (*http.Request, error) {
	return keyproxy.NewJSONRequest(ctx, desc.URL, messagesRequest{
		Model:     Model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	}, map[string]string{
		"x-api-key":         desc.APIKey,
		"anthropic-version": APIVersion,
	})
}

func (p *Provider) ExtractReply(body []byte) (string, bool) {
	return keyproxy.StringAt(body, replyPath)
}

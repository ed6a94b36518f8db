// Package openaicompat builds chat/completions requests for the providers that
// speak the OpenAI wire format (deepseek, chatgpt, alibaba).
package openaicompat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pysugar/roleplay-nexus/internal/providers/catalog"
	"github.com/pysugar/roleplay-nexus/internal/upstream/keyproxy"
)

const (
	DeepSeekModel = "deepseek-chat"
	ChatGPTModel  = "gpt-4o-mini"
	AlibabaModel  = "qwen-plus"

	// AlibabaSystemPrompt is sent as the leading system turn to dashscope.
	AlibabaSystemPrompt = "You are an assistant."

	maxTokens = 500
	replyPath = "choices.0.message.content"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

// Provider is one OpenAI-compatible request shape. It carries no credential;
// the key and endpoint come from the descriptor on every call.
type Provider struct {
	model        string
	systemPrompt string
}

// NewProvider returns a shape that sends model and, when systemPrompt is
// non-empty, a leading system turn.
func NewProvider(model, systemPrompt string) *Provider {
	return &Provider{
		model:        strings.TrimSpace(model),
		systemPrompt: strings.TrimSpace(systemPrompt),
	}
}

func NewDeepSeek() *Provider { return NewProvider(DeepSeekModel, "") }
func NewChatGPT() *Provider  { return NewProvider(ChatGPTModel, "") }
func NewAlibaba() *Provider  { return NewProvider(AlibabaModel, AlibabaSystemPrompt) }

func (p *Provider) BuildRequest(ctx context.Context, desc catalog.ModelDescriptor, prompt string) (*http.Request, error) {
	if p.model == "" {
		return nil, fmt.Errorf("openai compat provider %s has no model", desc.ID)
	}

	messages := make([]message, 0, 2)
	if p.systemPrompt != "" {
		messages = append(messages, message{Role: "system", Content: p.systemPrompt})
	}
	messages = append(messages, message{Role: "user", Content: prompt})

	return keyproxy.NewJSONRequest(ctx, desc.URL, chatRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}, map[string]string{
		"Authorization": "Bearer " + desc.APIKey,
	})
}

func (p *Provider) ExtractReply(body []byte) (string, bool) {
	return keyproxy.StringAt(body, replyPath)
}

// Package geminikey builds generateContent requests for Google AI Studio,
// authenticating with a server-side API key in the query string.
package geminikey

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pysugar/roleplay-nexus/internal/providers/catalog"
	"github.com/pysugar/roleplay-nexus/internal/upstream/keyproxy"
)

const replyPath = "candidates.0.content.parts.0.text"

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type Provider struct{}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) BuildRequest(ctx context.Context, desc catalog.ModelDescriptor, prompt string) (*http.Request, error) {
	if strings.TrimSpace(desc.URL) == "" {
		return nil, fmt.Errorf("gemini endpoint is not configured")
	}
	target, err := keyproxy.WithQueryKey(desc.URL, desc.APIKey)
	if err != nil {
		return nil, err
	}
	return keyproxy.NewJSONRequest(ctx, target, generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}, nil)
}

func (p *Provider) ExtractReply(body []byte) (string, bool) {
	return keyproxy.StringAt(body, replyPath)
}

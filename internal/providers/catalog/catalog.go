// Package catalog is the provider registry: it maps a model identifier to the
// credential, endpoint and request shape used to reach that provider.
//
// The table is built once from config.Models and never mutated afterwards.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pysugar/roleplay-nexus/internal/config"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

// ModelID is one of the fixed model identifiers accepted from callers.
type ModelID string

const (
	ModelClaude   ModelID = "claude"
	ModelDeepSeek ModelID = "deepseek"
	ModelChatGPT  ModelID = "chatgpt"
	ModelAlibaba  ModelID = "alibaba"
	ModelGemini   ModelID = "gemini"
)

// Shape selects how a request is authenticated, encoded and decoded.
type Shape string

const (
	ShapeClaude   Shape = "anthropic-messages"
	ShapeDeepSeek Shape = "deepseek-chat"
	ShapeChatGPT  Shape = "openai-chat"
	ShapeAlibaba  Shape = "dashscope-chat"
	ShapeGemini   Shape = "gemini-generate"
)

var shapeByModel = map[ModelID]Shape{
	ModelClaude:   ShapeClaude,
	ModelDeepSeek: ShapeDeepSeek,
	ModelChatGPT:  ShapeChatGPT,
	ModelAlibaba:  ShapeAlibaba,
	ModelGemini:   ShapeGemini,
}

var defaultURLs = map[ModelID]string{
	ModelClaude:   config.DefaultClaudeURL,
	ModelDeepSeek: config.DefaultDeepSeekURL,
	ModelChatGPT:  config.DefaultOpenAIURL,
	ModelAlibaba:  config.DefaultAlibabaURL,
	ModelGemini:   config.DefaultGeminiURL,
}

// ErrUnknownModel is returned by ResolveStrict for identifiers outside the fixed set.
var ErrUnknownModel = errors.New("unknown model")

// ModelDescriptor is the resolved {credential, URL, shape} tuple for a model.
type ModelDescriptor struct {
	ID     ModelID `json:"id"`
	APIKey string  `json:"-"`
	URL    string  `json:"url"`
	Shape  Shape   `json:"shape"`
}

// DescriptorInfo is the display form of a descriptor; the key is masked.
type DescriptorInfo struct {
	ModelDescriptor
	Default    bool   `json:"default"`
	Configured bool   `json:"configured"`
	MaskedKey  string `json:"api_key,omitempty"`
}

type Registry struct {
	byID     map[ModelID]ModelDescriptor
	ids      []ModelID
	fallback ModelID
}

// New builds the registry from configuration. Providers missing from cfg get
// their default URL and an empty key. An unrecognized default falls back to gemini.
func New(cfg config.Models) *Registry {
	r := &Registry{byID: make(map[ModelID]ModelDescriptor, len(shapeByModel))}

	for id, shape := range shapeByModel {
		p := cfg.Providers[string(id)]
		url := strings.TrimSpace(p.URL)
		if url == "" {
			url = defaultURLs[id]
		}
		r.byID[id] = ModelDescriptor{
			ID:     id,
			APIKey: strings.TrimSpace(p.APIKey),
			URL:    url,
			Shape:  shape,
		}
		r.ids = append(r.ids, id)
	}
	sort.Slice(r.ids, func(i, j int) bool { return r.ids[i] < r.ids[j] })

	r.fallback = ModelGemini
	if id := normalize(cfg.Default); id != "" {
		if _, ok := r.byID[id]; ok {
			r.fallback = id
		}
	}
	return r
}

// Resolve returns the descriptor for model. Matching is exact and
// case-sensitive; identifiers outside the fixed set silently resolve to the
// default descriptor.
func (r *Registry) Resolve(model string) ModelDescriptor {
	if d, ok := r.byID[ModelID(model)]; ok {
		return d
	}
	return r.byID[r.fallback]
}

// ResolveStrict is Resolve without the permissive fallback.
func (r *Registry) ResolveStrict(model string) (ModelDescriptor, error) {
	if d, ok := r.byID[ModelID(model)]; ok {
		return d, nil
	}
	return ModelDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
}

// Default returns the identifier unknown models resolve to.
func (r *Registry) Default() ModelID {
	return r.fallback
}

// IDs returns the known identifiers in sorted order.
func (r *Registry) IDs() []ModelID {
	return append([]ModelID(nil), r.ids...)
}

// Descriptors returns every descriptor in display form.
func (r *Registry) Descriptors() []DescriptorInfo {
	result := make([]DescriptorInfo, 0, len(r.ids))
	for _, id := range r.ids {
		d := r.byID[id]
		result = append(result, DescriptorInfo{
			ModelDescriptor: d,
			Default:         id == r.fallback,
			Configured:      d.APIKey != "",
			MaskedKey:       util.MaskSecret(d.APIKey),
		})
	}
	return result
}

// normalize tidies the operator-configured default only.
func normalize(model string) ModelID {
	return ModelID(strings.ToLower(strings.TrimSpace(model)))
}

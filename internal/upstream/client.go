// Package upstream is the request dispatcher: it resolves a model identifier
// through the provider registry, builds the provider-specific request, makes a
// single outbound call and extracts the reply text.
//
// Any upstream failure collapses to SentinelReply. Callers never see transport
// or decoding errors.
package upstream

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/metrics"
	"github.com/pysugar/roleplay-nexus/internal/providers/catalog"
	"github.com/pysugar/roleplay-nexus/internal/upstream/claude"
	"github.com/pysugar/roleplay-nexus/internal/upstream/geminikey"
	"github.com/pysugar/roleplay-nexus/internal/upstream/keyproxy"
	"github.com/pysugar/roleplay-nexus/internal/upstream/openaicompat"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

// SentinelReply is returned in place of a reply whenever a provider call fails.
const SentinelReply = "Hello?"

const (
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 8 << 20
)

// Strategy encodes requests for, and decodes replies from, one request shape.
type Strategy interface {
	BuildRequest(ctx context.Context, desc catalog.ModelDescriptor, prompt string) (*http.Request, error)
	ExtractReply(body []byte) (string, bool)
}

// DefaultStrategies returns the strategy table for every known shape.
func DefaultStrategies() map[catalog.Shape]Strategy {
	return map[catalog.Shape]Strategy{
		catalog.ShapeClaude:   claude.NewProvider(),
		catalog.ShapeDeepSeek: openaicompat.NewDeepSeek(),
		catalog.ShapeChatGPT:  openaicompat.NewChatGPT(),
		catalog.ShapeAlibaba:  openaicompat.NewAlibaba(),
		catalog.ShapeGemini:   geminikey.NewProvider(),
	}
}

// Client dispatches prompts to chat-completion providers.
type Client struct {
	registry   *catalog.Registry
	strategies map[catalog.Shape]Strategy
	httpClient *http.Client
	timeout    time.Duration
	strict     bool
	metrics    *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithStrict rejects unknown model identifiers instead of resolving them to
// the default provider.
func WithStrict(strict bool) Option {
	return func(c *Client) { c.strict = strict }
}

// WithStrategy overrides the strategy for one shape.
func WithStrategy(shape catalog.Shape, s Strategy) Option {
	return func(c *Client) { c.strategies[shape] = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a dispatcher over registry.
func NewClient(registry *catalog.Registry, opts ...Option) *Client {
	c := &Client{
		registry:   registry,
		strategies: DefaultStrategies(),
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Dispatch sends prompt to the provider selected by model and returns the
// reply text, or SentinelReply on any upstream failure. The only error is
// catalog.ErrUnknownModel in strict mode.
func (c *Client) Dispatch(ctx context.Context, model, prompt string) (string, error) {
	var desc catalog.ModelDescriptor
	if c.strict {
		d, err := c.registry.ResolveStrict(model)
		if err != nil {
			return "", err
		}
		desc = d
	} else {
		desc = c.registry.Resolve(model)
	}

	start := time.Now()
	reply, outcome, status := c.call(ctx, desc, prompt)
	elapsed := time.Since(start)

	c.metrics.ObserveDispatch(string(desc.ID), outcome, elapsed)
	logging.FromContext(ctx).Info("dispatch",
		"requested_model", model,
		"provider", string(desc.ID),
		"shape", string(desc.Shape),
		"prompt", util.TruncateLog(prompt, util.SignatureMaxLen),
		"status", status,
		"outcome", outcome,
		"reply", util.TruncateLog(reply, util.SignatureMaxLen),
		"duration_ms", elapsed.Milliseconds(),
	)
	return reply, nil
}

func (c *Client) call(ctx context.Context, desc catalog.ModelDescriptor, prompt string) (reply, outcome string, status int) {
	log := logging.FromContext(ctx)

	strategy, ok := c.strategies[desc.Shape]
	if !ok || strategy == nil {
		log.Error("no strategy for shape", "shape", string(desc.Shape))
		return SentinelReply, metrics.OutcomeNoStrategy, 0
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := strategy.BuildRequest(ctx, desc, prompt)
	if err != nil {
		log.Error("failed to build provider request", "provider", string(desc.ID), "error", err)
		return SentinelReply, metrics.OutcomeBuildError, 0
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("provider request failed",
			"provider", string(desc.ID),
			"url", keyproxy.RedactURL(req.URL),
			"error", err,
		)
		return SentinelReply, metrics.OutcomeTransportError, 0
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.Warn("failed to read provider response", "provider", string(desc.ID), "error", err)
		return SentinelReply, metrics.OutcomeReadError, resp.StatusCode
	}
	log.Debug("provider response", "provider", string(desc.ID), "body", util.TruncateBytes(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("provider returned error status",
			"provider", string(desc.ID),
			"status", resp.StatusCode,
			"body", util.TruncateBytes(body),
		)
		return SentinelReply, metrics.OutcomeBadStatus, resp.StatusCode
	}

	text, ok := strategy.ExtractReply(body)
	if !ok {
		log.Warn("provider response has no reply text", "provider", string(desc.ID), "body", util.TruncateBytes(body))
		return SentinelReply, metrics.OutcomeMissingReply, resp.StatusCode
	}
	return text, metrics.OutcomeOK, resp.StatusCode
}

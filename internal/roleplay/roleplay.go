// Package roleplay turns sales-call roleplay requests into prompts and sends
// them through the dispatcher.
package roleplay

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

const (
	DefaultRole    = "prospect"
	DefaultProduct = "a generic software product"
	DefaultModel   = "gemini"
)

// jsonBlock matches from the first '{' to the last '}' across newlines.
var jsonBlock = regexp.MustCompile(`\{[\s\S]*\}`)

// Dispatcher sends a prompt to the named model and returns the reply text.
type Dispatcher interface {
	Dispatch(ctx context.Context, model, prompt string) (string, error)
}

// ChatTurn is one line of conversation history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type StartRequest struct {
	Role         string `json:"role"`
	Product      string `json:"product"`
	CustomPrompt string `json:"custom_prompt"`
	Model        string `json:"model"`
}

type ChatRequest struct {
	History      []ChatTurn `json:"history"`
	UserInput    string     `json:"user_input"`
	Role         string     `json:"role"`
	Product      string     `json:"product"`
	CustomPrompt string     `json:"custom_prompt"`
	Model        string     `json:"model"`
}

type ScorecardRequest struct {
	Transcript string `json:"transcript"`
	Model      string `json:"model"`
}

type Service struct {
	dispatcher Dispatcher
}

func NewService(d Dispatcher) *Service {
	return &Service{dispatcher: d}
}

// StartSession returns the prospect's opening line.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (string, error) {
	prompt := BuildStartPrompt(req)
	model := orDefault(req.Model, DefaultModel)

	msg, err := s.dispatcher.Dispatch(ctx, model, prompt)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).Info("session started", "model", model, "message", util.TruncateLog(msg, util.SignatureMaxLen))
	return msg, nil
}

// Chat returns the prospect's next reply.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (string, error) {
	prompt := BuildChatPrompt(req)
	model := orDefault(req.Model, DefaultModel)

	reply, err := s.dispatcher.Dispatch(ctx, model, prompt)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).Info("chat reply", "model", model, "turns", len(req.History), "reply", util.TruncateLog(reply, util.SignatureMaxLen))
	return reply, nil
}

// Scorecard asks the model to grade transcript and parses the first JSON
// object in its reply. An unparseable reply yields {"error": "Invalid JSON"}.
func (s *Service) Scorecard(ctx context.Context, req ScorecardRequest) (map[string]any, error) {
	model := orDefault(req.Model, DefaultModel)

	raw, err := s.dispatcher.Dispatch(ctx, model, BuildScorecardPrompt(req.Transcript))
	if err != nil {
		return nil, err
	}

	result := ParseScorecard(raw)
	logging.FromContext(ctx).Info("scorecard generated",
		"model", model,
		"raw_text", util.TruncateLog(raw, util.DefaultLogMaxLen),
		"parsed", result["error"] == nil,
	)
	return result, nil
}

func BuildStartPrompt(req StartRequest) string {
	if custom := strings.TrimSpace(req.CustomPrompt); custom != "" {
		return custom
	}
	return render(coldCallTemplate, map[string]string{
		"role":    orDefault(req.Role, DefaultRole),
		"product": orDefault(req.Product, DefaultProduct),
	})
}

func BuildChatPrompt(req ChatRequest) string {
	history := FormatHistory(req.History)
	if strings.TrimSpace(req.CustomPrompt) != "" {
		return req.CustomPrompt + "\n\nConversation so far:\n" + history + "\n\nUser: " + req.UserInput
	}
	return render(continuationTemplate, map[string]string{
		"role":    orDefault(req.Role, DefaultRole),
		"product": orDefault(req.Product, DefaultProduct),
		"history": history,
		"input":   req.UserInput,
	})
}

func BuildScorecardPrompt(transcript string) string {
	return render(scorecardTemplate, map[string]string{"transcript": transcript})
}

// FormatHistory renders turns as "role: content" lines.
func FormatHistory(turns []ChatTurn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.Role + ": " + t.Content
	}
	return strings.Join(lines, "\n")
}

func ParseScorecard(raw string) map[string]any {
	match := jsonBlock.FindString(raw)
	if match == "" {
		return invalidJSON()
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(match), &out); err != nil || out == nil {
		return invalidJSON()
	}
	return out
}

func invalidJSON() map[string]any {
	return map[string]any{"error": "Invalid JSON"}
}

// render substitutes {{name}} placeholders in a single pass so values that
// themselves contain placeholders are left untouched.
func render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package roleplay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	reply  string
	err    error
	model  string
	prompt string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, model, prompt string) (string, error) {
	f.model = model
	f.prompt = prompt
	return f.reply, f.err
}

func TestStartSession_DefaultPrompt(t *testing.T) {
	d := &fakeDispatcher{reply: "Hello? Who's this?"}
	svc := NewService(d)

	msg, err := svc.StartSession(context.Background(), StartRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Hello? Who's this?", msg)
	assert.Equal(t, "gemini", d.model)
	assert.Contains(t, d.prompt, "- Role: prospect, you are a client")
	assert.Contains(t, d.prompt, "could reasonably need a generic software product")
	assert.Contains(t, d.prompt, "A salesperson will call you to offer a generic software product.")
	assert.NotContains(t, d.prompt, "{{")
}

func TestStartSession_CustomPromptOverrides(t *testing.T) {
	d := &fakeDispatcher{reply: "hi"}
	svc := NewService(d)

	_, err := svc.StartSession(context.Background(), StartRequest{
		Role:         "CFO",
		CustomPrompt: "  Act as a grumpy landlord.  ",
		Model:        "claude",
	})
	require.NoError(t, err)
	assert.Equal(t, "Act as a grumpy landlord.", d.prompt)
	assert.Equal(t, "claude", d.model)

	_, err = svc.StartSession(context.Background(), StartRequest{CustomPrompt: "   ", Role: "CTO"})
	require.NoError(t, err)
	assert.Contains(t, d.prompt, "- Role: CTO")
}

func TestChat_ContinuationPrompt(t *testing.T) {
	d := &fakeDispatcher{reply: "Go on."}
	svc := NewService(d)

	reply, err := svc.Chat(context.Background(), ChatRequest{
		History: []ChatTurn{
			{Role: "assistant", Content: "Hello?"},
			{Role: "user", Content: "Hi, this is Sam from Acme."},
		},
		UserInput: "Do you have a minute?",
		Role:      "office manager",
		Product:   "cloud backup",
		Model:     "deepseek",
	})
	require.NoError(t, err)
	assert.Equal(t, "Go on.", reply)
	assert.Equal(t, "deepseek", d.model)
	assert.Contains(t, d.prompt, "Conversation so far:\nassistant: Hello?\nuser: Hi, this is Sam from Acme.\n\nSales: Do you have a minute?")
	assert.Contains(t, d.prompt, "- The product being offered: cloud backup")
	assert.Contains(t, d.prompt, "as a real human office manager,")
}

func TestChat_CustomPrompt(t *testing.T) {
	d := &fakeDispatcher{reply: "ok"}
	svc := NewService(d)

	_, err := svc.Chat(context.Background(), ChatRequest{
		History:      []ChatTurn{{Role: "assistant", Content: "Yes?"}},
		UserInput:    "Hello",
		CustomPrompt: "Be a tenant.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Be a tenant.\n\nConversation so far:\nassistant: Yes?\n\nUser: Hello", d.prompt)
}

func TestChat_HistoryIsNotMutated(t *testing.T) {
	history := []ChatTurn{{Role: "user", Content: "a"}}
	d := &fakeDispatcher{reply: "b"}
	_, err := NewService(d).Chat(context.Background(), ChatRequest{History: history, UserInput: "c"})
	require.NoError(t, err)
	assert.Equal(t, []ChatTurn{{Role: "user", Content: "a"}}, history)
}

func TestChat_PlaceholderInInputIsLiteral(t *testing.T) {
	prompt := BuildChatPrompt(ChatRequest{UserInput: "my {{role}} is"})
	assert.Contains(t, prompt, "Sales: my {{role}} is")
}

func TestScorecard(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		check func(t *testing.T, got map[string]any)
	}{
		{
			name:  "fenced json",
			reply: "Here you go:\n```json\n{\n  \"overall_score\": 7,\n  \"summary\": \"solid\"\n}\n```",
			check: func(t *testing.T, got map[string]any) {
				assert.Equal(t, float64(7), got["overall_score"])
				assert.Equal(t, "solid", got["summary"])
			},
		},
		{
			name:  "no json",
			reply: "Hello?",
			check: func(t *testing.T, got map[string]any) {
				assert.Equal(t, map[string]any{"error": "Invalid JSON"}, got)
			},
		},
		{
			name:  "broken json",
			reply: `{"overall_score": 7,}`,
			check: func(t *testing.T, got map[string]any) {
				assert.Equal(t, map[string]any{"error": "Invalid JSON"}, got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{reply: tt.reply}
			got, err := NewService(d).Scorecard(context.Background(), ScorecardRequest{Transcript: "Sales: hi\nProspect: bye"})
			require.NoError(t, err)
			tt.check(t, got)
			assert.True(t, strings.Contains(d.prompt, "Transcript:\nSales: hi\nProspect: bye"))
			assert.Equal(t, "gemini", d.model)
		})
	}
}

func TestDispatcherErrorPropagates(t *testing.T) {
	sentinel := errors.New("unknown model")
	d := &fakeDispatcher{err: sentinel}
	svc := NewService(d)

	_, err := svc.StartSession(context.Background(), StartRequest{Model: "bogus"})
	assert.ErrorIs(t, err, sentinel)
	_, err = svc.Chat(context.Background(), ChatRequest{Model: "bogus"})
	assert.ErrorIs(t, err, sentinel)
	_, err = svc.Scorecard(context.Background(), ScorecardRequest{Model: "bogus"})
	assert.ErrorIs(t, err, sentinel)
}

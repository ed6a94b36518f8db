package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/pysugar/roleplay-nexus/internal/auth/google"
	"github.com/pysugar/roleplay-nexus/internal/auth/session"
	"github.com/pysugar/roleplay-nexus/internal/auth/token"
	"github.com/pysugar/roleplay-nexus/internal/config"
	"github.com/pysugar/roleplay-nexus/internal/csvfiles"
	"github.com/pysugar/roleplay-nexus/internal/db"
	"github.com/pysugar/roleplay-nexus/internal/insights"
	"github.com/pysugar/roleplay-nexus/internal/mail"
	"github.com/pysugar/roleplay-nexus/internal/metrics"
	"github.com/pysugar/roleplay-nexus/internal/outreach"
	"github.com/pysugar/roleplay-nexus/internal/providers/catalog"
	"github.com/pysugar/roleplay-nexus/internal/roleplay"
	"github.com/pysugar/roleplay-nexus/internal/upstream"
)

type fakeDispatcher struct {
	prompts []string
	reply   string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, model, prompt string) (string, error) {
	if model == "bogus" {
		return "", fmt.Errorf("%w: %s", catalog.ErrUnknownModel, model)
	}
	f.prompts = append(f.prompts, prompt)
	return f.reply, nil
}

type fakeSpeech struct{}

func (fakeSpeech) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	return "hello there", nil
}

func (fakeSpeech) Synthesize(_ context.Context, text string) (string, error) {
	if text == "fail" {
		return "", errors.New("no audio")
	}
	return "data:audio/mp3;base64,AAAA", nil
}

type fakeMail struct {
	connected bool
	sent      []string
}

func (f *fakeMail) ListByLead(_ context.Context, _ uint, lead string) ([]mail.Summary, error) {
	if !f.connected {
		return nil, token.ErrNotConnected
	}
	return []mail.Summary{{ID: "m1", Subject: "Hi", From: lead}}, nil
}

func (f *fakeMail) Send(_ context.Context, _ uint, to, _, _ string) error {
	if !f.connected {
		return token.ErrNotConnected
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeTokens struct{ disconnected []uint }

func (f *fakeTokens) Disconnect(_ context.Context, id uint) error {
	f.disconnected = append(f.disconnected, id)
	return nil
}

func (f *fakeTokens) Connect(context.Context, uint, string, ...oauth2.AuthCodeOption) error {
	return nil
}

type fakeOutreach struct{}

func (fakeOutreach) Generate(_ context.Context, prompt string) (json.RawMessage, error) {
	switch prompt {
	case "":
		return nil, outreach.ErrMissingPrompt
	case "quota":
		return nil, &outreach.UpstreamError{StatusCode: http.StatusTooManyRequests, Err: errors.New("rate limited")}
	}
	return json.RawMessage(`{"id":"chatcmpl-1","choices":[{"message":{"content":"Dear lead"}}]}`), nil
}

type harness struct {
	handler    http.Handler
	dispatcher *fakeDispatcher
	mail       *fakeMail
	tokens     *fakeTokens
	sessions   *session.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	reg := prometheus.NewRegistry()
	metrics.New(reg)

	h := &harness{
		dispatcher: &fakeDispatcher{reply: "Yes, who's this?"},
		mail:       &fakeMail{},
		tokens:     &fakeTokens{},
		sessions:   session.NewService(gdb, "test-secret", time.Hour),
	}
	storage := t.TempDir()
	api := New(Deps{
		AppName:  "Roleplay Nexus",
		Registry: catalog.New(config.Default().Models),
		Roleplay: roleplay.NewService(h.dispatcher),
		Speech:   fakeSpeech{},
		Accounts: h.sessions,
		Google:   google.NewHandler(google.Config(config.Google{ClientID: "id", ClientSecret: "secret"}), h.sessions, h.tokens),
		Mail:     h.mail,
		Tokens:   h.tokens,
		CSV:      csvfiles.NewService(gdb, storage),
		Insights: insights.NewStore(storage),
		Outreach: fakeOutreach{},
		Gatherer: reg,
	})
	h.handler = api.Routes()
	return h
}

func (h *harness) do(t *testing.T, method, target, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestStatusAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","app":"Roleplay Nexus"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAccounts(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t)

	rec := h.do(t, http.MethodGet, "/api/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody(t, rec)
	assert.Equal(t, "ada@example.com", me["email"])
	assert.NotContains(t, me, "password")

	rec = h.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing token", decodeBody(t, rec)["error"])

	rec = h.do(t, http.MethodGet, "/api/me", "garbage", nil)
	assert.Equal(t, "Invalid token", decodeBody(t, rec)["error"])

	rec = h.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decodeBody(t, rec)["error"])

	rec = h.do(t, http.MethodPost, "/api/register", "", map[string]string{"name": "Ada", "email": "ADA@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/register", "", map[string]string{"email": "not-email", "password": "123"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs := decodeBody(t, rec)["errors"].(map[string]any)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
}

func TestRoleplayEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/session/start", "", map[string]string{"role": "CFO"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Yes, who's this?"}`, rec.Body.String())
	assert.Contains(t, h.dispatcher.prompts[0], "CFO")

	rec = h.do(t, http.MethodPost, "/api/chat", "", map[string]any{
		"history":    []map[string]string{{"role": "sales", "content": "Hi"}},
		"user_input": "Got a minute?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"Yes, who's this?"}`, rec.Body.String())
	assert.Contains(t, h.dispatcher.prompts[1], "sales: Hi")

	h.dispatcher.reply = "Sure: {\"overall_score\": 7}"
	rec = h.do(t, http.MethodPost, "/api/scorecard", "", map[string]string{"transcript": "..."})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"overall_score":7}`, rec.Body.String())

	h.dispatcher.reply = "no json here"
	rec = h.do(t, http.MethodPost, "/api/scorecard", "", map[string]string{"transcript": "..."})
	assert.JSONEq(t, `{"error":"Invalid JSON"}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/chat", "", map[string]string{"model": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/session/start", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "empty body uses defaults")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{broken"))
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoleplayEndpoints_StrictUnknownModel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	reg := catalog.New(config.Default().Models)
	client := upstream.NewClient(reg, upstream.WithStrict(true), upstream.WithHTTPClient(srv.Client()))
	api := New(Deps{Registry: reg, Roleplay: roleplay.NewService(client)})

	for _, tc := range []struct {
		name    string
		handler http.HandlerFunc
		body    string
	}{
		{"start", api.StartSession, `{"role":"CFO","model":"gpt-9"}`},
		{"chat", api.Chat, `{"user_input":"Hi","model":"gpt-9"}`},
		{"scorecard", api.Scorecard, `{"transcript":"...","model":"gpt-9"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			tc.handler(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"Unknown model"}`, rec.Body.String())
		})
	}
	assert.Zero(t, hits.Load())
}

func TestModels(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/models", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "gemini", body["default"])
	assert.Len(t, body["models"], 5)
}

func multipartRequest(t *testing.T, target, field, filename string, content []byte, auth string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	return req
}

func TestSpeechEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, multipartRequest(t, "/api/speech-to-text", "audio", "a.webm", []byte("opus"), ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"hello there"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, multipartRequest(t, "/api/speech-to-text", "", "", nil, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No audio file uploaded"}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/text-to-speech", "", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"audio":"data:audio/mp3;base64,AAAA"}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/text-to-speech", "", map[string]string{})
	assert.JSONEq(t, `{"error":"No text provided"}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/text-to-speech", "", map[string]string{"text": "fail"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to generate speech"}`, rec.Body.String())
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newHarness(t)
	for _, target := range []string{"/api/google/emails?email=a@b.c", "/api/csv/files", "/api/insights"} {
		rec := h.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.JSONEq(t, `{"error":"Unauthenticated"}`, rec.Body.String())
	}
}

func TestGoogleEndpoints(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t)

	rec := h.do(t, http.MethodGet, "/api/google/emails", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing lead email"}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/google/emails?email=lead@example.com", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Gmail not connected"}`, rec.Body.String())

	h.mail.connected = true
	rec = h.do(t, http.MethodGet, "/api/google/emails?email=lead@example.com", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []mail.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "lead@example.com", list[0].From)

	rec = h.do(t, http.MethodPost, "/api/google/send", tok, map[string]string{"to": "lead@example.com", "subject": "Hi", "body": "<p>Hello</p>"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Email sent successfully"}`, rec.Body.String())
	assert.Equal(t, []string{"lead@example.com"}, h.mail.sent)

	rec = h.do(t, http.MethodPost, "/api/google/send", tok, map[string]string{"to": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/google/disconnect", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Disconnected from Gmail"}`, rec.Body.String())
	assert.Len(t, h.tokens.disconnected, 1)

	rec = h.do(t, http.MethodGet, "/auth/google/redirect?auth="+tok, "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestCSVEndpoints(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, multipartRequest(t, "/api/csv/upload", "csv_file", "leads.csv", []byte("name\nJane\n"), tok))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decodeBody(t, rec)
	assert.Equal(t, "File uploaded and stored successfully.", up["message"])
	path := up["path"].(string)

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, multipartRequest(t, "/api/csv/upload", "csv_file", "photo.png", []byte("x"), tok))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/csv/files", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var files []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 1)
	assert.Equal(t, "leads.csv", files[0]["original_name"])
	assert.NotNil(t, files[0]["user_id"])

	rec = h.do(t, http.MethodPost, "/api/csv/process", tok, map[string]string{"selected_csv_path": path})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "name\nJane\n", decodeBody(t, rec)["csv_content"])

	rec = h.do(t, http.MethodPost, "/api/csv/process", tok, map[string]string{"selected_csv_path": "csv_uploads/missing.csv"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Error: File not found on storage disk."}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/csv/process", tok, map[string]string{"selected_csv_path": "../nexus.db"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/csv/process", tok, map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestInsightEndpoints(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/insights", tok, map[string]any{"user_email": "ada@example.com", "insight": "Call back Friday"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "Insight saved to file", created["message"])
	id := created["data"].(map[string]any)["id"].(string)

	rec = h.do(t, http.MethodPost, "/api/insights", tok, map[string]any{"insight": "no email"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	update := map[string]any{"id": id, "user_email": "ada@example.com", "priority": "high", "status": "open", "tab_context": "leads"}
	rec = h.do(t, http.MethodPut, "/api/insights/"+id, tok, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Insight updated successfully", decodeBody(t, rec)["message"])

	rec = h.do(t, http.MethodPut, "/api/insights/other", tok, update)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Mismatched item ID in request."}`, rec.Body.String())

	update["id"] = "ghost"
	rec = h.do(t, http.MethodPut, "/api/insights/ghost", tok, update)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/insights", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, "high", all[0]["priority"])

	rec = h.do(t, http.MethodDelete, "/api/insights/"+id, tok, nil)
	assert.JSONEq(t, `{"message":"Insight deleted successfully"}`, rec.Body.String())
	rec = h.do(t, http.MethodDelete, "/api/insights/"+id, tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOutreachEndpoint(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/outreach/generate", tok, map[string]string{"prompt": "Write to Jane"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"chatcmpl-1","choices":[{"message":{"content":"Dear lead"}}]}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/outreach/generate", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing prompt"}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/outreach/generate", tok, map[string]string{"prompt": "quota"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"OpenAI request failed"}`, rec.Body.String())
}

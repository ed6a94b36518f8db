package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/providers/catalog"
	"github.com/pysugar/roleplay-nexus/internal/roleplay"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

const maxAudioBytes = 25 << 20

func (a *API) StartSession(w http.ResponseWriter, r *http.Request) {
	var req roleplay.StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	msg, err := a.Roleplay.StartSession(r.Context(), req)
	if err != nil {
		a.dispatchFailed(w, r, err, "Failed to start session")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (a *API) Chat(w http.ResponseWriter, r *http.Request) {
	var req roleplay.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	reply, err := a.Roleplay.Chat(r.Context(), req)
	if err != nil {
		a.dispatchFailed(w, r, err, "Chat generation failed")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (a *API) Scorecard(w http.ResponseWriter, r *http.Request) {
	var req roleplay.ScorecardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	result, err := a.Roleplay.Scorecard(r.Context(), req)
	if err != nil {
		a.dispatchFailed(w, r, err, "Scorecard generation failed")
		return
	}
	util.WriteJSON(w, http.StatusOK, result)
}

// dispatchFailed maps a dispatcher error: unknown models in strict mode are
// the caller's fault, anything else is ours.
func (a *API) dispatchFailed(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, catalog.ErrUnknownModel) {
		util.WriteError(w, http.StatusBadRequest, "Unknown model")
		return
	}
	logging.FromContext(r.Context()).Error(msg, "error", err)
	util.WriteError(w, http.StatusInternalServerError, msg)
}

func (a *API) SpeechToText(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)

	file, header, err := r.FormFile("audio")
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "No audio file uploaded")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "No audio file uploaded")
		return
	}
	if a.Speech == nil {
		util.WriteError(w, http.StatusServiceUnavailable, "Speech-to-text is not configured")
		return
	}

	text, err := a.Speech.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		log.Error("speech-to-text failed", "error", err)
		util.WriteError(w, http.StatusInternalServerError, "Speech-to-text failed")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"text": text})
}

type ttsRequest struct {
	Text string `json:"text"`
}

func (a *API) TextToSpeech(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Text == "" {
		util.WriteError(w, http.StatusBadRequest, "No text provided")
		return
	}
	if a.Speech == nil {
		util.WriteError(w, http.StatusServiceUnavailable, "Text-to-speech is not configured")
		return
	}

	audio, err := a.Speech.Synthesize(r.Context(), req.Text)
	if err != nil {
		logging.FromContext(r.Context()).Error("text-to-speech failed", "error", err)
		util.WriteError(w, http.StatusInternalServerError, "Failed to generate speech")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"audio": audio})
}

func (a *API) Models(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]any{
		"default": a.Registry.Default(),
		"models":  a.Registry.Descriptors(),
	})
}

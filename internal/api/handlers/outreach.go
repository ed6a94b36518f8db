package handlers

import (
	"errors"
	"net/http"

	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/outreach"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

type outreachRequest struct {
	Prompt string `json:"prompt"`
}

func (a *API) GenerateOutreach(w http.ResponseWriter, r *http.Request) {
	var req outreachRequest
	if err := decodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	raw, err := a.Outreach.Generate(r.Context(), req.Prompt)
	var upstream *outreach.UpstreamError
	switch {
	case errors.Is(err, outreach.ErrMissingPrompt):
		util.WriteError(w, http.StatusBadRequest, "Missing prompt")
	case errors.As(err, &upstream):
		logging.FromContext(r.Context()).Warn("outreach upstream failed",
			"status", upstream.StatusCode, "error", upstream.Err)
		util.WriteError(w, upstream.StatusCode, "OpenAI request failed")
	case err != nil:
		util.WriteError(w, http.StatusInternalServerError, "OpenAI request failed")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pysugar/roleplay-nexus/internal/api/middleware"
	"github.com/pysugar/roleplay-nexus/internal/auth/token"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/mail"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

type sendEmailRequest struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

func (a *API) Emails(w http.ResponseWriter, r *http.Request) {
	lead := strings.TrimSpace(r.URL.Query().Get("email"))
	if lead == "" {
		util.WriteError(w, http.StatusBadRequest, "Missing lead email")
		return
	}
	user := middleware.UserFrom(r.Context())

	emails, err := a.Mail.ListByLead(r.Context(), user.ID, lead)
	if errors.Is(err, token.ErrNotConnected) {
		util.WriteError(w, http.StatusUnauthorized, "Gmail not connected")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("fetch emails failed", "user_id", user.ID, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "Failed to fetch emails")
		return
	}
	util.WriteJSON(w, http.StatusOK, emails)
}

func (a *API) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if !a.bind(w, r, &req) {
		return
	}
	user := middleware.UserFrom(r.Context())

	err := a.Mail.Send(r.Context(), user.ID, req.To, req.Subject, req.Body)
	switch {
	case err == nil:
		util.WriteMessage(w, http.StatusOK, "Email sent successfully")
	case errors.Is(err, token.ErrNotConnected):
		util.WriteError(w, http.StatusUnauthorized, "Gmail not connected")
	case errors.Is(err, mail.ErrInvalidRecipient):
		util.WriteError(w, http.StatusBadRequest, "Invalid recipient")
	default:
		util.WriteError(w, http.StatusInternalServerError, "Failed to send email")
	}
}

func (a *API) DisconnectGoogle(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	if err := a.Tokens.Disconnect(r.Context(), user.ID); err != nil {
		logging.FromContext(r.Context()).Error("disconnect failed", "user_id", user.ID, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "Failed to disconnect Gmail")
		return
	}
	util.WriteMessage(w, http.StatusOK, "Disconnected from Gmail")
}

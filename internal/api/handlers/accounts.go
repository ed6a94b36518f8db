package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pysugar/roleplay-nexus/internal/auth/session"
	"github.com/pysugar/roleplay-nexus/internal/db"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.bind(w, r, &req) {
		return
	}

	_, err := a.Accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if errors.Is(err, db.ErrEmailTaken) {
		util.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The given data was invalid.",
			"errors":  map[string]string{"email": "The email has already been taken."},
		})
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("register failed", "error", err)
		util.WriteError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	util.WriteMessage(w, http.StatusOK, "User registered successfully")
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	token, user, err := a.Accounts.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		util.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("login failed", "error", err)
		util.WriteError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		util.WriteError(w, http.StatusUnauthorized, "Missing token")
		return
	}
	user, err := a.Accounts.Authenticate(r.Context(), raw)
	if err != nil {
		util.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	util.WriteJSON(w, http.StatusOK, user)
}

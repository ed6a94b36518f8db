package google

import (
	"encoding/base64"
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/pysugar/roleplay-nexus/internal/auth/token"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

// ConnectedRedirect is where the browser lands after a successful consent.
const ConnectedRedirect = "/?google=connected"

// HandleCallback exchanges the authorization code and stores the tokens for
// the user named in state.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	query := r.URL.Query()

	decoded, err := base64.StdEncoding.DecodeString(query.Get("state"))
	if err != nil || len(decoded) == 0 {
		http.Error(w, "Missing state or JWT", http.StatusBadRequest)
		return
	}

	user, err := h.sessions.Authenticate(r.Context(), string(decoded))
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	if msg := query.Get("error"); msg != "" {
		log.Warn("google consent denied", "user_id", user.ID, "error", msg)
		util.WriteError(w, http.StatusBadRequest, orDefault(query.Get("error_description"), "OAuth failed"))
		return
	}

	var opts []oauth2.AuthCodeOption
	if h.oauth.RedirectURL == "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURL(r)))
	}
	if err := h.tokens.Connect(r.Context(), user.ID, query.Get("code"), opts...); err != nil {
		var he *token.HandshakeError
		if errors.As(err, &he) {
			log.Warn("google code exchange failed", "user_id", user.ID, "code", he.Code, "error", he.Description)
			util.WriteError(w, http.StatusBadRequest, orDefault(he.Description, "OAuth failed"))
			return
		}
		log.Error("failed to store google tokens", "user_id", user.ID, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "Failed to store Google tokens")
		return
	}

	http.Redirect(w, r, ConnectedRedirect, http.StatusFound)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

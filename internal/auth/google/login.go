package google

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/pysugar/roleplay-nexus/internal/db"
	"github.com/pysugar/roleplay-nexus/internal/db/models"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

// AuthQueryParam carries the session token when the browser cannot set an
// Authorization header.
const AuthQueryParam = "auth"

// Sessions resolves a raw Authorization value to a user.
type Sessions interface {
	Authenticate(ctx context.Context, raw string) (*models.User, error)
}

// Connector stores the tokens obtained from an authorization code.
type Connector interface {
	Connect(ctx context.Context, userID uint, code string, opts ...oauth2.AuthCodeOption) error
}

type Handler struct {
	oauth    *oauth2.Config
	sessions Sessions
	tokens   Connector
}

func NewHandler(oauthCfg *oauth2.Config, sessions Sessions, tokens Connector) *Handler {
	return &Handler{oauth: oauthCfg, sessions: sessions, tokens: tokens}
}

// HandleLogin redirects to Google's consent page. The caller's session token
// travels through the state parameter so the callback can tell whom the
// tokens belong to.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		authHeader = strings.TrimSpace(r.URL.Query().Get(AuthQueryParam))
	}
	if authHeader == "" {
		util.WriteError(w, http.StatusUnauthorized, "Missing JWT")
		return
	}

	user, err := h.sessions.Authenticate(r.Context(), authHeader)
	if errors.Is(err, db.ErrUserNotFound) {
		util.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		util.WriteError(w, http.StatusUnauthorized, "Invalid JWT")
		return
	}

	state := base64.StdEncoding.EncodeToString([]byte(authHeader))
	authURL := withRedirect(h.oauth, r).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	logging.FromContext(r.Context()).Info("redirecting to google consent", "user_id", user.ID)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Package google runs the Gmail consent flow: it sends a signed-in user to
// Google's consent page and stores the resulting tokens on callback.
package google

import (
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/pysugar/roleplay-nexus/internal/config"
)

// CallbackPath is where Google redirects after consent.
const CallbackPath = "/auth/google/callback"

// Scopes requested for Gmail list and send.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
	"email",
	"profile",
}

// Config returns the OAuth2 config for the Gmail consent flow. An empty
// redirect URI is filled in per request from the inbound host.
func Config(cfg config.Google) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       Scopes,
		Endpoint:     googleOAuth.Endpoint,
	}
}

// IsConfigured reports whether client credentials are present.
func IsConfigured(cfg config.Google) bool {
	return strings.TrimSpace(cfg.ClientID) != "" && strings.TrimSpace(cfg.ClientSecret) != ""
}

// redirectURL derives the callback URL from the request.
func redirectURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + CallbackPath
}

func withRedirect(cfg *oauth2.Config, r *http.Request) *oauth2.Config {
	if cfg.RedirectURL != "" {
		return cfg
	}
	cp := *cfg
	cp.RedirectURL = redirectURL(r)
	return &cp
}

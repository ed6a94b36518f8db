// Package token keeps each user's Google OAuth access/refresh token pair alive.
//
// A user is Disconnected when no access token is stored, Connected while the
// stored access token is unexpired, and Expired afterwards. GetValidAccessToken
// moves an Expired user back to Connected with a single refresh, or reports
// ErrNotConnected when that is impossible.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/metrics"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

const (
	// DefaultLifetime applies when the token endpoint omits expires_in.
	DefaultLifetime = 3600 * time.Second

	defaultHTTPTimeout = 30 * time.Second
)

// ErrNotConnected means the user has no usable Google authorization and must
// go through the consent flow again.
var ErrNotConnected = errors.New("gmail not connected")

// Record is the persisted token state of one user.
type Record struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Connected reports whether an access token is stored.
func (r *Record) Connected() bool {
	return r != nil && r.AccessToken != ""
}

// Store persists token records. LoadTokenRecord returns (nil, nil) when the
// user has no record. Saving a zero Record clears the stored fields.
type Store interface {
	LoadTokenRecord(ctx context.Context, userID uint) (*Record, error)
	SaveTokenRecord(ctx context.Context, userID uint, rec Record) error
	// ListExpiring returns users holding a refresh token whose access token
	// expires before the given instant.
	ListExpiring(ctx context.Context, before time.Time) ([]uint, error)
}

// HandshakeError is returned when an authorization code cannot be exchanged.
type HandshakeError struct {
	Code        string
	Description string
	Err         error
}

func (e *HandshakeError) Error() string {
	if e.Code != "" && e.Description != "" && e.Code != e.Description {
		return fmt.Sprintf("oauth handshake failed: %s: %s", e.Code, e.Description)
	}
	if e.Description != "" {
		return "oauth handshake failed: " + e.Description
	}
	return "oauth handshake failed: " + e.Code
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

type Manager struct {
	store      Store
	oauth      *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
	metrics    *metrics.Metrics
	group      singleflight.Group

	// locks holds one *sync.Mutex per user. Every load-then-save of a
	// record happens under it.
	locks sync.Map
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) {
		if hc != nil {
			m.httpClient = hc
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a token manager backed by store, refreshing and
// exchanging through oauthCfg.
func NewManager(store Store, oauthCfg *oauth2.Config, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		oauth:      oauthCfg,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidAccessToken returns an access token usable right now. An unexpired
// stored token is returned without any network call; an expired one is
// refreshed exactly once.
func (m *Manager) GetValidAccessToken(ctx context.Context, userID uint) (string, error) {
	rec, err := m.store.LoadTokenRecord(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load token record: %w", err)
	}
	if !rec.Connected() {
		return "", ErrNotConnected
	}
	if m.now().Before(rec.ExpiresAt) {
		return rec.AccessToken, nil
	}

	fresh, err := m.refresh(ctx, userID, m.now())
	if err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// refresh renews the user's access token unless the stored one already
// outlives deadline. Concurrent calls for one user share a single refresh.
func (m *Manager) refresh(ctx context.Context, userID uint, deadline time.Time) (*Record, error) {
	key := strconv.FormatUint(uint64(userID), 10)
	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.refreshLocked(context.WithoutCancel(ctx), userID, deadline)
	})
	if err != nil {
		return nil, err
	}
	rec := *(v.(*Record))
	return &rec, nil
}

func (m *Manager) userLock(userID uint) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (m *Manager) refreshLocked(ctx context.Context, userID uint, deadline time.Time) (*Record, error) {
	log := logging.FromContext(ctx).With("user_id", userID)

	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := m.store.LoadTokenRecord(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load token record: %w", err)
	}
	if !rec.Connected() {
		return nil, ErrNotConnected
	}
	// Refreshed by an earlier flight.
	if deadline.Before(rec.ExpiresAt) {
		return rec, nil
	}
	if rec.RefreshToken == "" {
		m.metrics.ObserveRefresh(metrics.RefreshSkipped)
		log.Warn("access token expired and no refresh token is stored")
		return nil, ErrNotConnected
	}

	src := m.oauth.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		m.metrics.ObserveRefresh(metrics.RefreshFailure)
		log.Error("token refresh failed",
			"error", err,
			"permanent", IsPermanentRefreshError(err),
		)
		return nil, fmt.Errorf("%w: refresh failed", ErrNotConnected)
	}

	updated := Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    m.expiry(tok),
	}
	if tok.RefreshToken != "" && tok.RefreshToken != rec.RefreshToken {
		log.Info("rotating refresh token", "refresh_token", util.MaskSecret(tok.RefreshToken))
		updated.RefreshToken = tok.RefreshToken
	}

	if err := m.store.SaveTokenRecord(ctx, userID, updated); err != nil {
		m.metrics.ObserveRefresh(metrics.RefreshPersistFailure)
		log.Error("failed to save refreshed token", "error", err)
		return &updated, nil
	}

	m.metrics.ObserveRefresh(metrics.RefreshSuccess)
	log.Info("refreshed access token",
		"access_token", util.MaskSecret(updated.AccessToken),
		"expires_at", updated.ExpiresAt.Format(time.RFC3339),
	)
	return &updated, nil
}

// ExchangeAuthorizationCode trades a consent-flow code for a token pair.
// Failures are reported as *HandshakeError.
func (m *Manager) ExchangeAuthorizationCode(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*Record, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &HandshakeError{Code: "invalid_request", Description: "missing authorization code"}
	}

	tok, err := m.oauth.Exchange(m.oauthContext(ctx), code, opts...)
	if err != nil {
		return nil, newHandshakeError(err)
	}
	if tok.AccessToken == "" {
		return nil, &HandshakeError{Code: "invalid_response", Description: "token endpoint returned no access token"}
	}
	return &Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    m.expiry(tok),
	}, nil
}

// Connect exchanges code and stores the result for userID. A previously
// stored refresh token is kept when the provider does not return a new one.
func (m *Manager) Connect(ctx context.Context, userID uint, code string, opts ...oauth2.AuthCodeOption) error {
	rec, err := m.ExchangeAuthorizationCode(ctx, code, opts...)
	if err != nil {
		return err
	}

	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if rec.RefreshToken == "" {
		prev, err := m.store.LoadTokenRecord(ctx, userID)
		if err != nil {
			return fmt.Errorf("load token record: %w", err)
		}
		if prev != nil {
			rec.RefreshToken = prev.RefreshToken
		}
	}

	if err := m.store.SaveTokenRecord(ctx, userID, *rec); err != nil {
		return fmt.Errorf("save token record: %w", err)
	}
	logging.FromContext(ctx).Info("google account connected",
		"user_id", userID,
		"has_refresh_token", rec.RefreshToken != "",
		"expires_at", rec.ExpiresAt.Format(time.RFC3339),
	)
	return nil
}

// Disconnect clears the user's stored tokens. It is idempotent.
// A refresh already in flight finishes before the record is cleared.
func (m *Manager) Disconnect(ctx context.Context, userID uint) error {
	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := m.store.SaveTokenRecord(ctx, userID, Record{}); err != nil {
		return fmt.Errorf("clear token record: %w", err)
	}
	m.group.Forget(strconv.FormatUint(uint64(userID), 10))
	logging.FromContext(ctx).Info("google account disconnected", "user_id", userID)
	return nil
}

// StartRefreshLoop refreshes, every interval, the tokens that expire within
// window. It stops when ctx is done.
func (m *Manager) StartRefreshLoop(ctx context.Context, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RefreshExpiring(ctx, window)
			}
		}
	}()
	logging.FromContext(ctx).Info("token refresh loop started",
		"interval", interval.String(),
		"window", window.String(),
	)
}

// RefreshExpiring refreshes every token expiring within window and returns
// how many were renewed.
func (m *Manager) RefreshExpiring(ctx context.Context, window time.Duration) int {
	deadline := m.now().Add(window)
	ids, err := m.store.ListExpiring(ctx, deadline)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list expiring tokens", "error", err)
		return 0
	}

	refreshed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := m.refresh(ctx, id, deadline); err == nil {
			refreshed++
		}
	}
	return refreshed
}

func (m *Manager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) expiry(tok *oauth2.Token) time.Time {
	switch {
	case tok.ExpiresIn > 0:
		return m.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
	case !tok.Expiry.IsZero():
		return tok.Expiry.UTC()
	default:
		return m.now().Add(DefaultLifetime).UTC()
	}
}

func newHandshakeError(err error) *HandshakeError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		he := &HandshakeError{Code: re.ErrorCode, Description: re.ErrorDescription, Err: err}
		if he.Description == "" {
			he.Description = he.Code
		}
		if he.Description == "" {
			he.Description = err.Error()
		}
		return he
	}
	return &HandshakeError{Code: "exchange_failed", Description: err.Error(), Err: err}
}

// IsPermanentRefreshError reports whether a refresh failure needs the user to
// re-consent rather than a later retry.
func IsPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pysugar/roleplay-nexus/internal/auth/token"
	"github.com/pysugar/roleplay-nexus/internal/db/models"
)

// TokenStore persists Google token records on the users table.
type TokenStore struct {
	db *gorm.DB
}

var _ token.Store = (*TokenStore)(nil)

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) LoadTokenRecord(ctx context.Context, userID uint) (*token.Record, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Select("id", "google_access_token", "google_refresh_token", "google_token_expires_at").
		First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token record for user %d: %w", userID, err)
	}

	if user.GoogleAccessToken == nil && user.GoogleRefreshToken == nil {
		return nil, nil
	}
	rec := &token.Record{}
	if user.GoogleAccessToken != nil {
		rec.AccessToken = *user.GoogleAccessToken
	}
	if user.GoogleRefreshToken != nil {
		rec.RefreshToken = *user.GoogleRefreshToken
	}
	if user.GoogleTokenExpiresAt != nil {
		rec.ExpiresAt = user.GoogleTokenExpiresAt.UTC()
	}
	return rec, nil
}

// SaveTokenRecord writes all three token columns. Empty fields are stored as NULL.
func (s *TokenStore) SaveTokenRecord(ctx context.Context, userID uint, rec token.Record) error {
	updates := map[string]any{
		"google_access_token":     nullableString(rec.AccessToken),
		"google_refresh_token":    nullableString(rec.RefreshToken),
		"google_token_expires_at": nullableTime(rec.ExpiresAt),
	}
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("save token record for user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("save token record: %w", ErrUserNotFound)
	}
	return nil
}

func (s *TokenStore) ListExpiring(ctx context.Context, before time.Time) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("google_refresh_token IS NOT NULL AND google_refresh_token <> ''").
		Where("google_token_expires_at IS NOT NULL AND google_token_expires_at < ?", before.UTC()).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list expiring tokens: %w", err)
	}
	return ids, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

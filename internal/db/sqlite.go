// Package db owns the sqlite schema and the queries the services run on it.
package db

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pysugar/roleplay-nexus/internal/db/models"
	"github.com/pysugar/roleplay-nexus/internal/logging"
)

const jwtSecretKey = "jwt_secret"

// InitDB opens the sqlite database at dbPath and migrates the schema.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.New(slogWriter{}, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// slogWriter routes gorm's logger output through the process logger.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	logging.Logger().Warn(fmt.Sprintf(format, args...), slog.String("component", "gorm"))
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.CsvFile{}, &models.Config{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// EnsureJWTSecret returns the configured secret, or the persisted one,
// generating and storing a new secret on first run.
func EnsureJWTSecret(db *gorm.DB, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	var cfg models.Config
	err := db.Where("key = ?", jwtSecretKey).First(&cfg).Error
	if err == nil && cfg.Value != "" {
		return cfg.Value, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("load jwt secret: %w", err)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	secret := hex.EncodeToString(b)
	if err := db.Save(&models.Config{Key: jwtSecretKey, Value: secret}).Error; err != nil {
		return "", fmt.Errorf("save jwt secret: %w", err)
	}
	logging.Logger().Info("generated new JWT signing secret", slog.String("key", jwtSecretKey))
	return secret, nil
}

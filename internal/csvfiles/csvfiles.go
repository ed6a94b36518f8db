// Package csvfiles stores uploaded CSV files on disk and records them in the
// database.
package csvfiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pysugar/roleplay-nexus/internal/db"
	"github.com/pysugar/roleplay-nexus/internal/db/models"
	"github.com/pysugar/roleplay-nexus/internal/logging"
)

const (
	UploadDir     = "csv_uploads"
	MaxUploadSize = 10 << 20
)

var allowedExtensions = map[string]bool{".csv": true, ".txt": true}

var (
	ErrUnsupportedType = errors.New("file must be a csv or txt file")
	ErrTooLarge        = errors.New("file exceeds 10MB")
	ErrInvalidPath     = errors.New("invalid stored path")
	ErrNotFound        = errors.New("file not found on storage disk")
)

type Service struct {
	db   *gorm.DB
	root string
}

// NewService stores blobs under storageDir/csv_uploads.
func NewService(database *gorm.DB, storageDir string) *Service {
	return &Service{db: database, root: storageDir}
}

// Save writes content under a fresh name and records the upload. The stored
// path returned in the record is relative to the storage dir.
func (s *Service) Save(ctx context.Context, originalName string, content io.Reader, userID *uint) (*models.CsvFile, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return nil, ErrUnsupportedType
	}

	dir := filepath.Join(s.root, UploadDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	storedPath := path.Join(UploadDir, uuid.NewString()+ext)
	fullPath := filepath.Join(s.root, filepath.FromSlash(storedPath))

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create stored file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(content, MaxUploadSize+1))
	closeErr := f.Close()
	if copyErr == nil && n > MaxUploadSize {
		copyErr = ErrTooLarge
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(fullPath)
		if errors.Is(copyErr, ErrTooLarge) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("write stored file: %w", copyErr)
	}

	record := &models.CsvFile{
		OriginalName: filepath.Base(originalName),
		StoredPath:   storedPath,
		UserID:       userID,
	}
	if err := db.CreateCsvFile(ctx, s.db, record); err != nil {
		_ = os.Remove(fullPath)
		return nil, err
	}

	logging.FromContext(ctx).Info("csv file stored", "original_name", record.OriginalName, "stored_path", storedPath, "bytes", n)
	return record, nil
}

// List returns all uploads, newest first.
func (s *Service) List(ctx context.Context) ([]models.CsvFile, error) {
	return db.ListCsvFiles(ctx, s.db)
}

// Read returns the raw content at storedPath, which must name a file inside
// the upload directory and have been recorded by Save.
func (s *Service) Read(ctx context.Context, storedPath string) ([]byte, error) {
	clean, err := cleanStoredPath(storedPath)
	if err != nil {
		return nil, err
	}

	// Only files recorded by Save are served.
	if _, err := db.FindCsvFileByPath(ctx, s.db, clean); err != nil {
		if errors.Is(err, db.ErrCsvFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	content, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(clean)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	logging.FromContext(ctx).Debug("csv file read", "stored_path", clean, "bytes", len(content))
	return content, nil
}

func cleanStoredPath(storedPath string) (string, error) {
	p := strings.TrimSpace(filepath.ToSlash(storedPath))
	if p == "" || path.IsAbs(p) || strings.Contains(p, "..") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if path.Dir(clean) != UploadDir {
		return "", ErrInvalidPath
	}
	return clean, nil
}

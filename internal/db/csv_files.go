package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pysugar/roleplay-nexus/internal/db/models"
)

var ErrCsvFileNotFound = errors.New("csv file not found")

func CreateCsvFile(ctx context.Context, db *gorm.DB, file *models.CsvFile) error {
	if err := db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	return nil
}

// ListCsvFiles returns every upload, newest first.
func ListCsvFiles(ctx context.Context, db *gorm.DB) ([]models.CsvFile, error) {
	var files []models.CsvFile
	if err := db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list csv files: %w", err)
	}
	return files, nil
}

func FindCsvFileByPath(ctx context.Context, db *gorm.DB, storedPath string) (*models.CsvFile, error) {
	var file models.CsvFile
	err := db.WithContext(ctx).Where("stored_path = ?", storedPath).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCsvFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find csv file: %w", err)
	}
	return &file, nil
}

package models

import "time"

// CsvFile records an uploaded CSV blob stored on disk.
type CsvFile struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OriginalName string    `gorm:"not null" json:"original_name"`
	StoredPath   string    `gorm:"uniqueIndex;not null" json:"stored_path"` // relative to the storage dir
	UserID       *uint     `gorm:"index" json:"user_id"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

package models

import "time"

// Config stores generated server settings such as the JWT signing secret.
type Config struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

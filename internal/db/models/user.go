package models

import "time"

// User is an application account. The Google token columns are NULL until
// the user links Gmail and again after they disconnect.
type User struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	Name                 string     `gorm:"not null" json:"name"`
	Email                string     `gorm:"uniqueIndex;not null" json:"email"`
	Password             string     `gorm:"not null" json:"-"` // bcrypt hash
	GoogleAccessToken    *string    `json:"-"`
	GoogleRefreshToken   *string    `json:"-"`
	GoogleTokenExpiresAt *time.Time `gorm:"index" json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

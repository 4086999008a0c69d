package models

import "time"

// DocumentEntry stores one key of a named persisted document (credentials, tokens).
type DocumentEntry struct {
	Document  string `gorm:"primaryKey"` // e.g. "tokens"
	Key       string `gorm:"primaryKey"` // e.g. "twin_a_token"
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

package models

import "time"

// GmailToken is one issued OAuth token pair. Rows are append-only; the row
// with the highest ID is the current one.
type GmailToken struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	AccessToken  string `gorm:"not null"`
	RefreshToken string
	ExpiresAt    int64 `gorm:"not null"` // unix seconds
	CreatedAt    time.Time
}

// TableName keeps the table name of the original deployment.
func (GmailToken) TableName() string {
	return "gmail_tokens"
}

package models

import "time"

// Email is a fetched guest message, optionally assigned to a booking.
type Email struct {
	ID         string    `gorm:"primaryKey" json:"id"` // Gmail message ID
	ThreadID   string    `gorm:"index" json:"threadId"`
	FromEmail  string    `json:"fromEmail"`
	FromName   string    `json:"fromName"`
	Subject    string    `json:"subject"`
	Snippet    string    `gorm:"type:text" json:"snippet"`
	Body       string    `gorm:"type:text" json:"body"`
	Date       string    `json:"date"`                    // formatted for display
	ReceivedAt int64     `gorm:"index" json:"receivedAt"` // unix seconds
	BookingID  *string   `gorm:"index" json:"bookingId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

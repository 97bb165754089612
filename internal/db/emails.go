package db

import (
	"context"
	"fmt"

	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmailStore persists fetched guest emails and their booking assignment.
type EmailStore struct {
	db *gorm.DB
}

// NewEmailStore creates an EmailStore on db.
func NewEmailStore(db *gorm.DB) *EmailStore {
	return &EmailStore{db: db}
}

var (
	emailContentColumns = []string{"thread_id", "from_email", "from_name", "subject", "snippet", "date", "received_at", "updated_at"}
	emailBodyColumns    = append([]string{"body"}, emailContentColumns...)
)

// SaveEmails upserts emails by ID. A stored booking assignment survives
// re-fetching the same message.
func (s *EmailStore) SaveEmails(ctx context.Context, emails []models.Email) error {
	return s.upsert(ctx, emails, emailBodyColumns)
}

// SaveEmailHeaders upserts emails read without their body. New rows are
// inserted as given; existing rows keep their stored body.
func (s *EmailStore) SaveEmailHeaders(ctx context.Context, emails []models.Email) error {
	return s.upsert(ctx, emails, emailContentColumns)
}

func (s *EmailStore) upsert(ctx context.Context, emails []models.Email, columns []string) error {
	if len(emails) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Omit("booking_id").Create(&emails).Error
	if err != nil {
		return fmt.Errorf("save emails: %w", err)
	}
	return nil
}

// ListEmails returns stored emails, newest first. A non-empty bookingID
// restricts the list to that booking.
func (s *EmailStore) ListEmails(ctx context.Context, bookingID string) ([]models.Email, error) {
	query := s.db.WithContext(ctx).Order("received_at DESC")
	if bookingID != "" {
		query = query.Where("booking_id = ?", bookingID)
	}
	var emails []models.Email
	if err := query.Find(&emails).Error; err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	return emails, nil
}

// AssignEmail links an email to a booking; an empty bookingID clears the link.
func (s *EmailStore) AssignEmail(ctx context.Context, emailID, bookingID string) error {
	var value *string
	if bookingID != "" {
		value = &bookingID
	}
	res := s.db.WithContext(ctx).Model(&models.Email{}).
		Where("id = ?", emailID).
		Update("booking_id", value)
	if res.Error != nil {
		return fmt.Errorf("assign email: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("email %s: %w", emailID, ErrNotFound)
	}
	return nil
}

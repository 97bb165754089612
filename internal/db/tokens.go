package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"gorm.io/gorm"
)

// TokenStore persists Gmail OAuth tokens in the append-only gmail_tokens table.
type TokenStore struct {
	db *gorm.DB
}

// NewTokenStore creates a TokenStore on db.
func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Latest returns the most recently inserted token, or ErrNoToken.
func (s *TokenStore) Latest(ctx context.Context) (models.GmailToken, error) {
	var tok models.GmailToken
	err := s.db.WithContext(ctx).Order("id DESC").First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tok, ErrNoToken
	}
	if err != nil {
		return tok, fmt.Errorf("load latest token: %w", err)
	}
	return tok, nil
}

// Append inserts tok as the new current token.
func (s *TokenStore) Append(ctx context.Context, tok models.GmailToken) (models.GmailToken, error) {
	tok.ID = 0
	if err := s.db.WithContext(ctx).Create(&tok).Error; err != nil {
		return tok, fmt.Errorf("append token: %w", err)
	}
	return tok, nil
}

// History returns up to limit tokens, newest first.
func (s *TokenStore) History(ctx context.Context, limit int) ([]models.GmailToken, error) {
	if limit <= 0 {
		limit = 10
	}
	var toks []models.GmailToken
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&toks).Error; err != nil {
		return nil, fmt.Errorf("load token history: %w", err)
	}
	return toks, nil
}

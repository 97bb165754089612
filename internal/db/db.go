package db

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNoToken is returned when no Gmail token has been stored yet.
	ErrNoToken = errors.New("no gmail token stored")
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
)

// Open connects to the database named by url and runs migrations.
// postgres:// and postgresql:// URLs select Postgres; anything else is a
// SQLite path or DSN.
func Open(url string) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(url), &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}

	if db.Dialector.Name() == "sqlite" {
		// SQLite serializes writers; one connection avoids "database is locked".
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.GmailToken{}, &models.Email{}, &models.Activity{})
}

func dialector(url string) gorm.Dialector {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		log.Printf("🐘 Using Postgres database")
		return postgres.Open(url)
	}
	log.Printf("📦 Using SQLite database: %s", url)
	return sqlite.Open(url)
}

package activity

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rentaldesk/rentaldesk/internal/db/models"
	"github.com/rentaldesk/rentaldesk/internal/logging"
	"github.com/rentaldesk/rentaldesk/internal/metrics"
	"gorm.io/gorm"
)

const (
	// MaxErrorSize limits stored error text to 4KB
	MaxErrorSize = 4 * 1024
	// MaxMemoryEntries limits in-memory activity cache
	MaxMemoryEntries = 100
)

// Operation names recorded in the activity log.
const (
	OpFetch     = "fetch"
	OpSend      = "send"
	OpRefresh   = "refresh"
	OpAuthorize = "authorize"
	OpAssign    = "assign"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder keeps a log of Gmail operations with running totals.
type Recorder struct {
	db *gorm.DB

	recent   []models.Activity
	recentMu sync.RWMutex

	total   atomic.Int64
	success atomic.Int64
	errors  atomic.Int64

	pending sync.WaitGroup
}

func NewRecorder(db *gorm.DB) *Recorder {
	r := &Recorder{
		db:     db,
		recent: make([]models.Activity, 0, MaxMemoryEntries),
	}
	r.loadStatsFromDB()
	return r
}

// Track starts timing op; call the returned func once the operation ends.
func (r *Recorder) Track(ctx context.Context, op string) func(count, failed int, err error) {
	start := time.Now()
	return func(count, failed int, err error) {
		entry := models.Activity{
			Operation: op,
			Status:    StatusSuccess,
			Duration:  time.Since(start).Milliseconds(),
			Count:     count,
			Failed:    failed,
		}
		if err != nil {
			entry.Status = StatusError
			entry.Error = err.Error()
		}
		r.Record(ctx, entry)
	}
}

// Record stores an entry (async, non-blocking).
func (r *Recorder) Record(ctx context.Context, entry models.Activity) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	if entry.RequestID == "" {
		entry.RequestID = logging.GetRequestID(ctx)
	}
	if len(entry.Error) > MaxErrorSize {
		entry.Error = entry.Error[:MaxErrorSize] + "...[truncated]"
	}

	r.total.Add(1)
	if entry.Status == StatusError {
		r.errors.Add(1)
	} else {
		r.success.Add(1)
	}
	metrics.GmailOperations.WithLabelValues(entry.Operation, entry.Status).Inc()

	r.recentMu.Lock()
	r.recent = append([]models.Activity{entry}, r.recent...)
	if len(r.recent) > MaxMemoryEntries {
		r.recent = r.recent[:MaxMemoryEntries]
	}
	r.recentMu.Unlock()

	r.pending.Add(1)
	go func(a models.Activity) {
		defer r.pending.Done()
		if err := r.db.Create(&a).Error; err != nil {
			log.Printf("[Activity] Failed to save entry: %v", err)
		}
	}(entry)
}

// Flush waits for pending writes.
func (r *Recorder) Flush() {
	r.pending.Wait()
}

// Recent returns up to limit entries, newest first, optionally filtered by operation.
func (r *Recorder) Recent(limit int, operation string) []models.Activity {
	if limit <= 0 {
		limit = 50
	}

	var entries []models.Activity
	query := r.db.Order("timestamp DESC").Limit(limit)
	if operation != "" {
		query = query.Where("operation = ?", operation)
	}
	if err := query.Find(&entries).Error; err != nil {
		log.Printf("[Activity] Failed to load entries from DB: %v", err)
		return r.recentFromMemory(limit, operation)
	}
	return entries
}

// Stats returns the running totals.
func (r *Recorder) Stats() models.ActivityStats {
	return models.ActivityStats{
		Total:   r.total.Load(),
		Success: r.success.Load(),
		Errors:  r.errors.Load(),
	}
}

// Clear removes all entries from memory and database.
func (r *Recorder) Clear() error {
	r.Flush()

	r.recentMu.Lock()
	r.recent = r.recent[:0]
	r.recentMu.Unlock()

	r.total.Store(0)
	r.success.Store(0)
	r.errors.Store(0)

	if err := r.db.Where("1 = 1").Delete(&models.Activity{}).Error; err != nil {
		log.Printf("[Activity] Failed to clear entries: %v", err)
		return err
	}
	log.Printf("[Activity] All entries cleared")
	return nil
}

func (r *Recorder) recentFromMemory(limit int, operation string) []models.Activity {
	r.recentMu.RLock()
	defer r.recentMu.RUnlock()
	out := make([]models.Activity, 0, limit)
	for _, a := range r.recent {
		if operation != "" && a.Operation != operation {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (r *Recorder) loadStatsFromDB() {
	var total, success, errCount int64

	r.db.Model(&models.Activity{}).Count(&total)
	r.db.Model(&models.Activity{}).Where("status = ?", StatusSuccess).Count(&success)
	r.db.Model(&models.Activity{}).Where("status = ?", StatusError).Count(&errCount)

	r.total.Store(total)
	r.success.Store(success)
	r.errors.Store(errCount)

	log.Printf("[Activity] Loaded stats: total=%d, success=%d, errors=%d", total, success, errCount)
}

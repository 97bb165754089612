package models

// Activity records one Gmail operation for the dashboard's activity view.
type Activity struct {
	ID        string `gorm:"primaryKey" json:"id"`
	Timestamp int64  `gorm:"index" json:"timestamp"` // unix milliseconds
	Operation string `gorm:"index" json:"operation"` // fetch, send, refresh, authorize
	Status    string `json:"status"`                 // success, error
	Duration  int64  `json:"duration"`               // milliseconds
	Count     int    `json:"count,omitempty"`        // messages fetched or failed
	Failed    int    `json:"failed,omitempty"`
	Error     string `gorm:"type:text" json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// TableName groups the table with the other Gmail tables.
func (Activity) TableName() string {
	return "gmail_activity"
}

// ActivityStats holds aggregated counts for the activity log.
type ActivityStats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Errors  int64 `json:"errors"`
}

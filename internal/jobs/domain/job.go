package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Job status constants
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job type constants. New job types register a handler with the worker
// registry; the queue itself never interprets the tag.
const (
	JobTypeLibraryScan        = "library_scan"
	JobTypeDownload           = "download"
	JobTypeChapterUpdateCheck = "chapter_update_check"
)

const (
	// DefaultMaxRetries is applied when a job is enqueued without an
	// explicit retry budget.
	DefaultMaxRetries = 3

	// MinPriority and MaxPriority bound the claim-ordering hint.
	MinPriority = 1
	MaxPriority = 10
)

// Payload is the job-type-specific argument map. The queue stores it as
// JSONB and never looks inside it; each handler decodes the keys it needs.
type Payload map[string]any

// Value implements driver.Valuer so sqlx can write the payload as JSONB.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for reading the JSONB column back.
func (p *Payload) Scan(src any) error {
	if src == nil {
		*p = Payload{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Payload", src)
	}

	return json.Unmarshal(data, p)
}

// String returns the payload value for key if present and a string.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Job is one durable unit of queued work.
type Job struct {
	ID           string     `db:"id"`
	JobType      string     `db:"job_type"`
	Payload      Payload    `db:"payload"`
	Status       string     `db:"status"`
	Priority     int        `db:"priority"`
	RetryCount   int        `db:"retry_count"`
	MaxRetries   int        `db:"max_retries"`
	WorkerID     *string    `db:"worker_id"`
	ScheduledAt  time.Time  `db:"scheduled_at"`
	StartedAt    *time.Time `db:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"`
	ErrorMessage *string    `db:"error_message"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// ValidatePriority checks the claim-ordering hint is inside [1,10].
func ValidatePriority(priority int) error {
	if priority < MinPriority || priority > MaxPriority {
		return fmt.Errorf("%w: priority %d must be between %d and %d",
			ErrInvalidPriority, priority, MinPriority, MaxPriority)
	}
	return nil
}

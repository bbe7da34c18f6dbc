package catalog

import "time"

// LibraryPath is a root directory of chapter archives. The scheduler reads
// its recurrence metadata; the scan handler writes last_scan back after a
// successful import.
type LibraryPath struct {
	ID                string     `db:"id"`
	Path              string     `db:"path"`
	Enabled           bool       `db:"enabled"`
	ScanIntervalHours int        `db:"scan_interval_hours"`
	LastScan          *time.Time `db:"last_scan"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// ScanDue reports whether the path is due for a recurring scan at now.
// A never-scanned path is due immediately; otherwise it is due once a full
// interval has elapsed, boundary inclusive.
func (p *LibraryPath) ScanDue(now time.Time) bool {
	if p.LastScan == nil {
		return true
	}
	next := p.LastScan.Add(time.Duration(p.ScanIntervalHours) * time.Hour)
	return !now.Before(next)
}

// Series is a manga series tracked by the library. Watched series with an
// external catalog id get periodic chapter update checks.
type Series struct {
	ID              string     `db:"id"`
	Title           string     `db:"title"`
	MangaDxID       *string    `db:"mangadx_id"`
	WatchingEnabled bool       `db:"watching_enabled"`
	TotalChapters   int        `db:"total_chapters"`
	LastCheckedAt   *time.Time `db:"last_checked_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

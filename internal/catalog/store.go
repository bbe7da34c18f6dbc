package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mangashelf/mangashelf/internal/jobs/domain"
)

// Storage handles database operations on library paths and series
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ListEnabledPaths returns all enabled library paths
func (s *Storage) ListEnabledPaths(ctx context.Context) ([]LibraryPath, error) {
	query := `
		SELECT id, path, enabled, scan_interval_hours, last_scan, created_at, updated_at
		FROM library_paths
		WHERE enabled = TRUE
		ORDER BY path
	`

	var paths []LibraryPath
	if err := s.db.SelectContext(ctx, &paths, query); err != nil {
		return nil, fmt.Errorf("failed to list library paths: %w", err)
	}

	return paths, nil
}

// GetPath retrieves a library path by its ID
func (s *Storage) GetPath(ctx context.Context, pathID string) (*LibraryPath, error) {
	query := `
		SELECT id, path, enabled, scan_interval_hours, last_scan, created_at, updated_at
		FROM library_paths
		WHERE id = $1
	`

	var path LibraryPath
	err := s.db.GetContext(ctx, &path, query, pathID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLibraryPathNotFound
		}
		return nil, fmt.Errorf("failed to get library path: %w", err)
	}

	return &path, nil
}

// SetLastScan records the time a path was last successfully scanned
func (s *Storage) SetLastScan(ctx context.Context, pathID string, scannedAt time.Time) error {
	query := `UPDATE library_paths SET last_scan = $1, updated_at = NOW() WHERE id = $2`

	if _, err := s.db.ExecContext(ctx, query, scannedAt, pathID); err != nil {
		return fmt.Errorf("failed to set last scan: %w", err)
	}

	return nil
}

// ListWatchedSeries returns series with watching enabled and an external
// catalog id, the ones eligible for chapter update checks
func (s *Storage) ListWatchedSeries(ctx context.Context) ([]Series, error) {
	query := `
		SELECT id, title, mangadx_id, watching_enabled, total_chapters,
		       last_checked_at, created_at, updated_at
		FROM series
		WHERE watching_enabled = TRUE AND mangadx_id IS NOT NULL
		ORDER BY title
	`

	var series []Series
	if err := s.db.SelectContext(ctx, &series, query); err != nil {
		return nil, fmt.Errorf("failed to list watched series: %w", err)
	}

	return series, nil
}

// GetSeries retrieves a series by its ID
func (s *Storage) GetSeries(ctx context.Context, seriesID string) (*Series, error) {
	query := `
		SELECT id, title, mangadx_id, watching_enabled, total_chapters,
		       last_checked_at, created_at, updated_at
		FROM series
		WHERE id = $1
	`

	var sr Series
	err := s.db.GetContext(ctx, &sr, query, seriesID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("series %s: %w", seriesID, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get series: %w", err)
	}

	return &sr, nil
}

// SetSeriesChecked records the chapter total observed by an update check
func (s *Storage) SetSeriesChecked(ctx context.Context, seriesID string, totalChapters int, checkedAt time.Time) error {
	query := `
		UPDATE series
		SET total_chapters = $1, last_checked_at = $2, updated_at = NOW()
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, totalChapters, checkedAt, seriesID); err != nil {
		return fmt.Errorf("failed to update series check state: %w", err)
	}

	return nil
}

package library

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mangashelf/mangashelf/internal/catalog"
)

// Chapter archive extensions the importer recognizes.
var archiveExtensions = map[string]bool{
	".cbz":  true,
	".cbr":  true,
	".zip":  true,
	".rar":  true,
	".pdf":  true,
	".epub": true,
}

// PathStore resolves library paths for a scan
type PathStore interface {
	ListEnabledPaths(ctx context.Context) ([]catalog.LibraryPath, error)
	GetPath(ctx context.Context, pathID string) (*catalog.LibraryPath, error)
}

// ScanSummary reports one import pass over one or more library paths
type ScanSummary struct {
	PathIDs       []string
	SeriesFound   int
	ArchivesFound int
}

// Importer walks library paths for chapter archives. Each first-level
// directory containing at least one archive counts as a series.
type Importer struct {
	paths  PathStore
	logger *slog.Logger
}

// NewImporter creates a new Importer
func NewImporter(paths PathStore, logger *slog.Logger) *Importer {
	return &Importer{
		paths:  paths,
		logger: logger,
	}
}

// Scan imports archives under one library path, or under every enabled path
// when pathID is empty.
func (i *Importer) Scan(ctx context.Context, pathID string) (*ScanSummary, error) {
	var targets []catalog.LibraryPath

	if pathID != "" {
		path, err := i.paths.GetPath(ctx, pathID)
		if err != nil {
			return nil, err
		}
		targets = []catalog.LibraryPath{*path}
	} else {
		paths, err := i.paths.ListEnabledPaths(ctx)
		if err != nil {
			return nil, err
		}
		targets = paths
	}

	summary := &ScanSummary{}
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		series, archives, err := i.scanRoot(target.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", target.Path, err)
		}

		summary.PathIDs = append(summary.PathIDs, target.ID)
		summary.SeriesFound += series
		summary.ArchivesFound += archives

		i.logger.Debug("Library path scanned",
			slog.String("library_path_id", target.ID),
			slog.String("path", target.Path),
			slog.Int("series", series),
			slog.Int("archives", archives),
		)
	}

	return summary, nil
}

// scanRoot walks one library root, counting archives and the series
// directories that contain them.
func (i *Importer) scanRoot(root string) (series, archives int, err error) {
	seriesDirs := make(map[string]bool)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtrees are skipped, not fatal: one bad
			// directory must not sink the whole scan.
			if os.IsPermission(walkErr) {
				i.logger.Warn("Skipping unreadable path",
					slog.String("path", path),
					slog.Any("error", walkErr),
				)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return walkErr
		}

		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !archiveExtensions[ext] {
			return nil
		}

		archives++
		seriesDirs[filepath.Dir(path)] = true
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return len(seriesDirs), archives, nil
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mangashelf/mangashelf/internal/catalog"
	"github.com/mangashelf/mangashelf/internal/jobs/domain"
	"github.com/mangashelf/mangashelf/internal/library"
	"github.com/mangashelf/mangashelf/internal/mangadx"
)

// Payload keys read by the built-in handlers. These mirror what the
// scheduler writes.
const (
	payloadKeyLibraryPathID = "library_path_id"
	payloadKeyMangaID       = "manga_id"
	payloadKeyDownloadType  = "download_type"
	payloadKeySeriesID      = "series_id"
	payloadKeyMangaDxID     = "mangadx_id"
)

// LibraryImporter is the library-import collaborator boundary
type LibraryImporter interface {
	Scan(ctx context.Context, pathID string) (*library.ScanSummary, error)
}

// ScanCatalog records scan completion on library paths
type ScanCatalog interface {
	SetLastScan(ctx context.Context, pathID string, scannedAt time.Time) error
}

// LibraryScanHandler imports chapter archives from one path, or from all
// enabled paths when the payload names none, then stamps last_scan on every
// path the import touched.
type LibraryScanHandler struct {
	importer LibraryImporter
	catalog  ScanCatalog
	logger   *slog.Logger
}

// NewLibraryScanHandler creates a new LibraryScanHandler
func NewLibraryScanHandler(importer LibraryImporter, scanCatalog ScanCatalog, logger *slog.Logger) *LibraryScanHandler {
	return &LibraryScanHandler{
		importer: importer,
		catalog:  scanCatalog,
		logger:   logger,
	}
}

// Execute implements Handler
func (h *LibraryScanHandler) Execute(ctx context.Context, job *domain.Job) (domain.Payload, error) {
	pathID, _ := job.Payload.String(payloadKeyLibraryPathID)

	summary, err := h.importer.Scan(ctx, pathID)
	if err != nil {
		return nil, fmt.Errorf("library scan failed: %w", err)
	}

	now := time.Now()
	for _, id := range summary.PathIDs {
		if err := h.catalog.SetLastScan(ctx, id, now); err != nil {
			return nil, fmt.Errorf("failed to record scan completion: %w", err)
		}
	}

	h.logger.Info("Library scan finished",
		slog.String("job_id", job.ID),
		slog.Int("paths_scanned", len(summary.PathIDs)),
		slog.Int("series_found", summary.SeriesFound),
		slog.Int("archives_found", summary.ArchivesFound),
	)

	return domain.Payload{
		"paths_scanned":  len(summary.PathIDs),
		"series_found":   summary.SeriesFound,
		"archives_found": summary.ArchivesFound,
	}, nil
}

// CatalogClient is the MangaDx-like API collaborator boundary
type CatalogClient interface {
	GetManga(ctx context.Context, mangaID string) (*mangadx.Manga, error)
	GetChapters(ctx context.Context, mangaID string) ([]mangadx.Chapter, error)
}

// DownloadHandler resolves a manga and its chapter feed from the external
// catalog. Page archive retrieval belongs to the archive layer and is
// invoked downstream of the chapter list.
type DownloadHandler struct {
	client CatalogClient
	logger *slog.Logger
}

// NewDownloadHandler creates a new DownloadHandler
func NewDownloadHandler(client CatalogClient, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		client: client,
		logger: logger,
	}
}

// Execute implements Handler
func (h *DownloadHandler) Execute(ctx context.Context, job *domain.Job) (domain.Payload, error) {
	mangaID, ok := job.Payload.String(payloadKeyMangaID)
	if !ok || mangaID == "" {
		return nil, fmt.Errorf("%w: manga_id is required for download jobs", domain.ErrInvalidPayload)
	}

	downloadType, _ := job.Payload.String(payloadKeyDownloadType)

	manga, err := h.client.GetManga(ctx, mangaID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manga %s: %w", mangaID, err)
	}

	chapters, err := h.client.GetChapters(ctx, mangaID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chapter feed for %s: %w", mangaID, err)
	}

	h.logger.Info("Download resolved",
		slog.String("job_id", job.ID),
		slog.String("manga_id", mangaID),
		slog.String("title", manga.Title),
		slog.Int("chapters", len(chapters)),
	)

	return domain.Payload{
		"manga_id":      mangaID,
		"title":         manga.Title,
		"download_type": downloadType,
		"chapters":      len(chapters),
	}, nil
}

// SeriesCatalog reads and updates watched series state
type SeriesCatalog interface {
	GetSeries(ctx context.Context, seriesID string) (*catalog.Series, error)
	SetSeriesChecked(ctx context.Context, seriesID string, totalChapters int, checkedAt time.Time) error
}

// UpdateCheckHandler compares a watched series against the external catalog's
// chapter feed and records the observed total.
type UpdateCheckHandler struct {
	client  CatalogClient
	catalog SeriesCatalog
	logger  *slog.Logger
}

// NewUpdateCheckHandler creates a new UpdateCheckHandler
func NewUpdateCheckHandler(client CatalogClient, seriesCatalog SeriesCatalog, logger *slog.Logger) *UpdateCheckHandler {
	return &UpdateCheckHandler{
		client:  client,
		catalog: seriesCatalog,
		logger:  logger,
	}
}

// Execute implements Handler
func (h *UpdateCheckHandler) Execute(ctx context.Context, job *domain.Job) (domain.Payload, error) {
	seriesID, ok := job.Payload.String(payloadKeySeriesID)
	if !ok || seriesID == "" {
		return nil, fmt.Errorf("%w: series_id is required for update check jobs", domain.ErrInvalidPayload)
	}

	mangaDxID, _ := job.Payload.String(payloadKeyMangaDxID)

	series, err := h.catalog.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to load series %s: %w", seriesID, err)
	}
	if mangaDxID == "" {
		if series.MangaDxID == nil {
			return nil, fmt.Errorf("%w: series %s has no external catalog id", domain.ErrInvalidPayload, seriesID)
		}
		mangaDxID = *series.MangaDxID
	}

	chapters, err := h.client.GetChapters(ctx, mangaDxID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chapter feed for series %s: %w", seriesID, err)
	}

	newChapters := len(chapters) - series.TotalChapters
	if newChapters < 0 {
		newChapters = 0
	}

	now := time.Now()
	if err := h.catalog.SetSeriesChecked(ctx, seriesID, len(chapters), now); err != nil {
		return nil, fmt.Errorf("failed to record update check: %w", err)
	}

	h.logger.Info("Chapter update check finished",
		slog.String("job_id", job.ID),
		slog.String("series_id", seriesID),
		slog.String("title", series.Title),
		slog.Int("total_chapters", len(chapters)),
		slog.Int("new_chapters", newChapters),
	)

	return domain.Payload{
		"series_id":      seriesID,
		"title":          series.Title,
		"total_chapters": len(chapters),
		"new_chapters":   newChapters,
	}, nil
}

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangashelf/mangashelf/internal/catalog"
	"github.com/mangashelf/mangashelf/internal/jobs/domain"
	"github.com/mangashelf/mangashelf/internal/library"
	"github.com/mangashelf/mangashelf/internal/mangadx"
)

type fakeImporter struct {
	summary *library.ScanSummary
	err     error
	pathID  string
}

func (f *fakeImporter) Scan(ctx context.Context, pathID string) (*library.ScanSummary, error) {
	f.pathID = pathID
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

type fakeScanCatalog struct {
	stamped []string
}

func (f *fakeScanCatalog) SetLastScan(ctx context.Context, pathID string, scannedAt time.Time) error {
	f.stamped = append(f.stamped, pathID)
	return nil
}

type fakeCatalogClient struct {
	manga    *mangadx.Manga
	chapters []mangadx.Chapter
	mangaErr error
}

func (f *fakeCatalogClient) GetManga(ctx context.Context, mangaID string) (*mangadx.Manga, error) {
	if f.mangaErr != nil {
		return nil, f.mangaErr
	}
	return f.manga, nil
}

func (f *fakeCatalogClient) GetChapters(ctx context.Context, mangaID string) ([]mangadx.Chapter, error) {
	return f.chapters, nil
}

type fakeSeriesCatalog struct {
	series        *catalog.Series
	checkedTotal  int
	checkedSeries string
}

func (f *fakeSeriesCatalog) GetSeries(ctx context.Context, seriesID string) (*catalog.Series, error) {
	return f.series, nil
}

func (f *fakeSeriesCatalog) SetSeriesChecked(ctx context.Context, seriesID string, totalChapters int, checkedAt time.Time) error {
	f.checkedSeries = seriesID
	f.checkedTotal = totalChapters
	return nil
}

func TestLibraryScanHandler_Execute(t *testing.T) {
	importer := &fakeImporter{summary: &library.ScanSummary{
		PathIDs:       []string{"path-1", "path-2"},
		SeriesFound:   4,
		ArchivesFound: 31,
	}}
	scanCatalog := &fakeScanCatalog{}
	h := NewLibraryScanHandler(importer, scanCatalog, discardLogger())

	job := runningJob(domain.JobTypeLibraryScan)
	job.Payload = domain.Payload{payloadKeyLibraryPathID: "path-1"}

	result, err := h.Execute(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "path-1", importer.pathID)
	assert.Equal(t, []string{"path-1", "path-2"}, scanCatalog.stamped)
	assert.Equal(t, 2, result["paths_scanned"])
	assert.Equal(t, 4, result["series_found"])
	assert.Equal(t, 31, result["archives_found"])
}

func TestDownloadHandler_Execute(t *testing.T) {
	t.Run("resolves manga and chapter feed", func(t *testing.T) {
		client := &fakeCatalogClient{
			manga: &mangadx.Manga{ID: "dx-1", Title: "Berserk"},
			chapters: []mangadx.Chapter{
				{ID: "c1", Chapter: "1"},
				{ID: "c2", Chapter: "2"},
			},
		}
		h := NewDownloadHandler(client, discardLogger())

		job := runningJob(domain.JobTypeDownload)
		job.Payload = domain.Payload{
			payloadKeyMangaID:      "dx-1",
			payloadKeyDownloadType: "manga",
		}

		result, err := h.Execute(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, "Berserk", result["title"])
		assert.Equal(t, 2, result["chapters"])
	})

	t.Run("missing manga id", func(t *testing.T) {
		h := NewDownloadHandler(&fakeCatalogClient{}, discardLogger())

		job := runningJob(domain.JobTypeDownload)
		job.Payload = domain.Payload{}

		_, err := h.Execute(context.Background(), job)
		assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	})

	t.Run("catalog not found propagates", func(t *testing.T) {
		client := &fakeCatalogClient{mangaErr: mangadx.ErrMangaNotFound}
		h := NewDownloadHandler(client, discardLogger())

		job := runningJob(domain.JobTypeDownload)
		job.Payload = domain.Payload{payloadKeyMangaID: "gone"}

		_, err := h.Execute(context.Background(), job)
		assert.ErrorIs(t, err, mangadx.ErrMangaNotFound)
	})
}

func TestUpdateCheckHandler_Execute(t *testing.T) {
	dxID := "dx-1"

	t.Run("records new chapter count", func(t *testing.T) {
		client := &fakeCatalogClient{chapters: make([]mangadx.Chapter, 12)}
		seriesCatalog := &fakeSeriesCatalog{series: &catalog.Series{
			ID:            "series-1",
			Title:         "One Piece",
			MangaDxID:     &dxID,
			TotalChapters: 10,
		}}
		h := NewUpdateCheckHandler(client, seriesCatalog, discardLogger())

		job := runningJob(domain.JobTypeChapterUpdateCheck)
		job.Payload = domain.Payload{
			payloadKeySeriesID:  "series-1",
			payloadKeyMangaDxID: dxID,
		}

		result, err := h.Execute(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, 12, result["total_chapters"])
		assert.Equal(t, 2, result["new_chapters"])
		assert.Equal(t, "series-1", seriesCatalog.checkedSeries)
		assert.Equal(t, 12, seriesCatalog.checkedTotal)
	})

	t.Run("new chapter count never negative", func(t *testing.T) {
		client := &fakeCatalogClient{chapters: make([]mangadx.Chapter, 5)}
		seriesCatalog := &fakeSeriesCatalog{series: &catalog.Series{
			ID:            "series-1",
			MangaDxID:     &dxID,
			TotalChapters: 10,
		}}
		h := NewUpdateCheckHandler(client, seriesCatalog, discardLogger())

		job := runningJob(domain.JobTypeChapterUpdateCheck)
		job.Payload = domain.Payload{payloadKeySeriesID: "series-1"}

		result, err := h.Execute(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, 0, result["new_chapters"])
	})

	t.Run("missing payload catalog id falls back to series record", func(t *testing.T) {
		client := &fakeCatalogClient{chapters: make([]mangadx.Chapter, 3)}
		seriesCatalog := &fakeSeriesCatalog{series: &catalog.Series{
			ID:        "series-1",
			MangaDxID: &dxID,
		}}
		h := NewUpdateCheckHandler(client, seriesCatalog, discardLogger())

		job := runningJob(domain.JobTypeChapterUpdateCheck)
		job.Payload = domain.Payload{payloadKeySeriesID: "series-1"}

		_, err := h.Execute(context.Background(), job)
		require.NoError(t, err)
	})

	t.Run("series without catalog id anywhere fails", func(t *testing.T) {
		seriesCatalog := &fakeSeriesCatalog{series: &catalog.Series{ID: "series-1"}}
		h := NewUpdateCheckHandler(&fakeCatalogClient{}, seriesCatalog, discardLogger())

		job := runningJob(domain.JobTypeChapterUpdateCheck)
		job.Payload = domain.Payload{payloadKeySeriesID: "series-1"}

		_, err := h.Execute(context.Background(), job)
		assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	})

	t.Run("missing series id", func(t *testing.T) {
		h := NewUpdateCheckHandler(&fakeCatalogClient{}, &fakeSeriesCatalog{}, discardLogger())

		job := runningJob(domain.JobTypeChapterUpdateCheck)
		job.Payload = domain.Payload{}

		_, err := h.Execute(context.Background(), job)
		assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	})
}

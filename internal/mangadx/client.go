package mangadx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sentinel errors for catalog client failures.
var (
	ErrMangaNotFound = errors.New("manga not found in catalog")
	ErrCatalogError  = errors.New("catalog request failed")
)

// chapterFeedPageSize is the maximum page size the catalog API accepts.
const chapterFeedPageSize = 500

// Config holds catalog client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Manga is the catalog's metadata for a series
type Manga struct {
	ID     string
	Title  string
	Status string
}

// Chapter is one entry from the catalog's chapter feed
type Chapter struct {
	ID          string
	Chapter     string
	Title       string
	PublishedAt time.Time
}

// Client talks to the MangaDx-compatible catalog HTTP API
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewClient creates a new catalog client
func NewClient(cfg *Config) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type mangaResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Title  map[string]string `json:"title"`
			Status string            `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// GetManga fetches metadata for one manga by its catalog id
func (c *Client) GetManga(ctx context.Context, mangaID string) (*Manga, error) {
	u := fmt.Sprintf("%s/manga/%s", c.baseURL, url.PathEscape(mangaID))

	var decoded mangaResponse
	if err := c.getJSON(ctx, u, &decoded); err != nil {
		return nil, err
	}

	title := decoded.Data.Attributes.Title["en"]
	if title == "" {
		// Fall back to whatever localization the catalog has.
		for _, t := range decoded.Data.Attributes.Title {
			title = t
			break
		}
	}

	return &Manga{
		ID:     decoded.Data.ID,
		Title:  title,
		Status: decoded.Data.Attributes.Status,
	}, nil
}

type chapterFeedResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Chapter   string    `json:"chapter"`
			Title     string    `json:"title"`
			PublishAt time.Time `json:"publishAt"`
		} `json:"attributes"`
	} `json:"data"`
	Total int `json:"total"`
}

// GetChapters fetches the full chapter feed for a manga, paging until the
// catalog reports no more entries.
func (c *Client) GetChapters(ctx context.Context, mangaID string) ([]Chapter, error) {
	var chapters []Chapter
	offset := 0

	for {
		params := url.Values{
			"limit":  {strconv.Itoa(chapterFeedPageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		u := fmt.Sprintf("%s/manga/%s/feed?%s", c.baseURL, url.PathEscape(mangaID), params.Encode())

		var decoded chapterFeedResponse
		if err := c.getJSON(ctx, u, &decoded); err != nil {
			return nil, err
		}

		for _, entry := range decoded.Data {
			chapters = append(chapters, Chapter{
				ID:          entry.ID,
				Chapter:     entry.Attributes.Chapter,
				Title:       entry.Attributes.Title,
				PublishedAt: entry.Attributes.PublishAt,
			})
		}

		offset += len(decoded.Data)
		if len(decoded.Data) == 0 || offset >= decoded.Total {
			break
		}
	}

	return chapters, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogError, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrMangaNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrCatalogError, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding catalog response: %w", err)
	}

	return nil
}

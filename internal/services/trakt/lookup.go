package trakt

import (
	"context"
	"fmt"
	"strings"

	"github.com/amaumene/stremarr/internal/models"
)

type ids struct {
	Trakt int    `json:"trakt"`
	IMDB  string `json:"imdb"` // e.g. "tt0133093"
	TMDB  int    `json:"tmdb"`
	TVDB  int    `json:"tvdb"`
}

type entry struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   ids    `json:"ids"`
}

// searchResult represents one item of a Trakt id lookup
type searchResult struct {
	Type  string `json:"type"` // "movie" or "show"
	Movie *entry `json:"movie,omitempty"`
	Show  *entry `json:"show,omitempty"`
}

func (r searchResult) entry() *entry {
	if r.Movie != nil {
		return r.Movie
	}
	return r.Show
}

func searchType(kind models.MediaKind) string {
	if kind == models.MediaKindSeries {
		return "show"
	}
	return "movie"
}

func (c *Client) lookup(ctx context.Context, source string, id int, kind models.MediaKind) (*entry, error) {
	path := fmt.Sprintf("/search/%s/%d?type=%s", source, id, searchType(kind))

	var results []searchResult
	if err := c.doRequest(ctx, path, &results); err != nil {
		return nil, fmt.Errorf("failed to lookup %s id %d: %w", source, id, err)
	}

	for _, result := range results {
		if e := result.entry(); e != nil {
			return e, nil
		}
	}
	return nil, nil
}

// ResolveExternalID returns the IMDB ID Trakt knows for a TMDB movie or series.
// An empty string with a nil error means no mapping.
func (c *Client) ResolveExternalID(ctx context.Context, tmdbID int, kind models.MediaKind) (string, error) {
	e, err := c.lookup(ctx, "tmdb", tmdbID, kind)
	if err != nil || e == nil {
		return "", err
	}
	return strings.TrimSpace(e.IDs.IMDB), nil
}

// FindByTVDB maps a TVDB series id onto its TMDB id, zero when unknown
func (c *Client) FindByTVDB(ctx context.Context, tvdbID int) (int, error) {
	e, err := c.lookup(ctx, "tvdb", tvdbID, models.MediaKindSeries)
	if err != nil || e == nil {
		return 0, err
	}
	return e.IDs.TMDB, nil
}

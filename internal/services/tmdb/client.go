package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amaumene/stremarr/internal/config"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// ErrNotFound is returned when TMDB has no record for the requested id
var ErrNotFound = errors.New("tmdb record not found")

// externalIDs models the /movie/{id}/external_ids and /tv/{id}/external_ids payloads
type externalIDs struct {
	ID     int    `json:"id"`
	IMDBId string `json:"imdb_id"`
	TVDBId int    `json:"tvdb_id"`
}

// findResponse models the /find/{id} payload
type findResponse struct {
	MovieResults []struct {
		ID int `json:"id"`
	} `json:"movie_results"`
	TVResults []struct {
		ID int `json:"id"`
	} `json:"tv_results"`
}

// Client resolves external ids through the TMDB v3 API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	logger     *logrus.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried
func WithMaxRetries(n uint64) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a new TMDB client
func NewClient(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.TMDBAPIKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.TMDBBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ResolveExternalID returns the IMDB ID TMDB knows for a movie or series.
// An empty string with a nil error means TMDB has no IMDB mapping.
func (c *Client) ResolveExternalID(ctx context.Context, tmdbID int, kind models.MediaKind) (string, error) {
	if tmdbID <= 0 {
		return "", fmt.Errorf("invalid tmdb id %d", tmdbID)
	}

	segment := "movie"
	if kind == models.MediaKindSeries {
		segment = "tv"
	}

	var payload externalIDs
	if err := c.get(ctx, fmt.Sprintf("/%s/%d/external_ids", segment, tmdbID), nil, &payload); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve external ids for tmdb %s %d: %w", segment, tmdbID, err)
	}

	return strings.TrimSpace(payload.IMDBId), nil
}

// FindByTVDB maps a TVDB series id onto its TMDB id.
// Returns zero with a nil error when TMDB has no match.
func (c *Client) FindByTVDB(ctx context.Context, tvdbID int) (int, error) {
	if tvdbID <= 0 {
		return 0, fmt.Errorf("invalid tvdb id %d", tvdbID)
	}

	params := url.Values{}
	params.Set("external_source", "tvdb_id")

	var payload findResponse
	if err := c.get(ctx, fmt.Sprintf("/find/%d", tvdbID), params, &payload); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find tvdb %d: %w", tvdbID, err)
	}

	if len(payload.TVResults) == 0 {
		return 0, nil
	}
	return payload.TVResults[0].ID, nil
}

// get performs a GET request, retrying transport failures, 429 and 5xx answers
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries),
		ctx,
	)

	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("tmdb returned status %d", resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("tmdb returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}

		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"path":    path,
			"attempt": attempt,
			"wait":    wait,
		}).WithError(err).Debug("TMDB request failed, retrying")
	}

	return backoff.RetryNotify(operation, policy, notify)
}

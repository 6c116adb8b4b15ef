package stremio

import (
	"bytes"
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
	"github.com/sirupsen/logrus"
)

const (
	defaultAPIURL = "https://api.strem.io"
	userAgent     = "stremarr/1.0"
	maxBodySize   = 8 * 1024 * 1024
)

// ErrAuth is returned when the user's auth key is missing or rejected
var ErrAuth = errors.New("stremio auth key missing or rejected")

// NetworkError is returned when the Stremio API or an addon cannot be reached
// or answers with a non-2xx status
type NetworkError struct {
	URL        string
	StatusCode int // 0 on transport failure
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Client talks to the Stremio account API and to addon transports
type Client struct {
	apiURL     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new Stremio client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.StremioAPIURL), "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	return &Client{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ListStreamCapableAddons fetches the user's addon collection and keeps the
// addons whose manifest declares the stream resource
func (c *Client) ListStreamCapableAddons(ctx context.Context, authKey string) ([]AddonDescriptor, error) {
	authKey = strings.TrimSpace(authKey)
	if authKey == "" {
		return nil, ErrAuth
	}

	body, err := json.Marshal(addonCollectionRequest{
		Type:    "AddonCollectionGet",
		AuthKey: authKey,
		Update:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := c.apiURL + "/api/addonCollectionGet"
	c.logger.WithField("url", endpoint).Debug("Fetching Stremio addon collection")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	var payload addonCollectionResponse
	if err := c.doJSON(req, &payload); err != nil {
		return nil, err
	}

	if payload.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrAuth, payload.Error.Message)
	}
	if payload.Result == nil {
		return nil, fmt.Errorf("addon collection response has no result")
	}

	addons := make([]AddonDescriptor, 0, len(payload.Result.Addons))
	for _, addon := range payload.Result.Addons {
		descriptor := newDescriptor(addon)
		if !descriptor.ServesStreams() {
			continue
		}
		addons = append(addons, descriptor)
	}

	c.logger.WithFields(logrus.Fields{
		"installed":      len(payload.Result.Addons),
		"stream_capable": len(addons),
	}).Debug("Stremio addon collection fetched")

	return addons, nil
}

// GetStreams asks one addon for the streams of a movie or episode id.
// The caller bounds the call through ctx.
func (c *Client) GetStreams(ctx context.Context, addon AddonDescriptor, kind models.MediaKind, id string) ([]Stream, error) {
	endpoint := fmt.Sprintf("%s/stream/%s/%s.json", addon.BaseURL(), kind, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	var payload streamResponse
	if err := c.doJSON(req, &payload); err != nil {
		return nil, err
	}
	return payload.Streams, nil
}

// doJSON performs the request and decodes a 2xx JSON body into result
func (c *Client) doJSON(req *http.Request, result interface{}) error {
	endpoint := req.URL.String()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &NetworkError{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

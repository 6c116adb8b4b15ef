package webhook

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
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const userAgent = "stremarr/1.0"

// Notifier is told when a media item becomes available for the first time
type Notifier interface {
	OnAvailable(ctx context.Context, media *models.Media) error
}

// Event is the JSON body posted to the webhook URL
type Event struct {
	Event       string    `json:"event"`
	Message     string    `json:"message"`
	MediaID     uint64    `json:"media_id"`
	UserID      uint64    `json:"user_id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Year        int       `json:"year,omitempty"`
	IMDBId      string    `json:"imdb_id,omitempty"`
	TMDBId      int       `json:"tmdb_id,omitempty"`
	StreamCount int       `json:"stream_count"`
	Addons      []string  `json:"addons"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewNotifier builds a notifier for the configured targets.
// When neither a webhook URL nor Jellyseerr is configured, a noop is returned.
func NewNotifier(cfg *config.Config, logger *logrus.Logger) Notifier {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	jellyseerrURL := strings.TrimRight(strings.TrimSpace(cfg.JellyseerrURL), "/")
	if jellyseerrURL != "" && strings.TrimSpace(cfg.JellyseerrAPIKey) == "" {
		logger.Warn("JELLYSEERR_URL is set without JELLYSEERR_API_KEY, Jellyseerr sync disabled")
		jellyseerrURL = ""
	}
	if webhookURL == "" && jellyseerrURL == "" {
		return noopNotifier{}
	}

	return &httpNotifier{
		webhookURL:    webhookURL,
		jellyseerrURL: jellyseerrURL,
		jellyseerrKey: strings.TrimSpace(cfg.JellyseerrAPIKey),
		syncJob:       strings.TrimSpace(cfg.JellyseerrSyncJob),
		client:        &http.Client{Timeout: 10 * time.Second},
		maxRetries:    2,
		logger:        logger,
	}
}

type noopNotifier struct{}

func (noopNotifier) OnAvailable(context.Context, *models.Media) error { return nil }

type httpNotifier struct {
	webhookURL    string
	jellyseerrURL string
	jellyseerrKey string
	syncJob       string
	client        *http.Client
	maxRetries    uint64 // retries after the first attempt
	logger        *logrus.Logger
}

// OnAvailable posts the availability event and triggers the Jellyseerr library sync.
// Both targets are attempted; their errors are joined.
func (n *httpNotifier) OnAvailable(ctx context.Context, media *models.Media) error {
	var errs []error

	if n.webhookURL != "" {
		body, err := json.Marshal(newEvent(media, time.Now()))
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if err := n.post(ctx, n.webhookURL, body, nil); err != nil {
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		}
	}

	if n.jellyseerrURL != "" && n.syncJob != "" {
		endpoint := fmt.Sprintf("%s/api/v1/settings/jobs/%s/run", n.jellyseerrURL, url.PathEscape(n.syncJob))
		headers := map[string]string{"X-Api-Key": n.jellyseerrKey}
		if err := n.post(ctx, endpoint, nil, headers); err != nil {
			errs = append(errs, fmt.Errorf("jellyseerr sync: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"media_id": media.ID,
		"title":    media.Title,
	}).Info("Availability notification sent")
	return nil
}

func (n *httpNotifier) post(ctx context.Context, endpoint string, body []byte, headers map[string]string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), n.maxRetries),
		ctx,
	)

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
		}
		return nil
	}

	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		n.logger.WithError(err).WithField("wait", wait).Debug("Notification failed, retrying")
	})
}

func newEvent(media *models.Media, now time.Time) Event {
	kind := cases.Title(language.English).String(string(media.Kind))

	addons := make([]string, 0, len(media.StreamsDetail))
	for _, addon := range media.StreamsDetail {
		addons = append(addons, addon.AddonName)
	}

	title := media.Title
	if title == "" {
		title = media.IMDBId
	}

	return Event{
		Event:       "media.available",
		Message:     fmt.Sprintf("%s available: %s (%d streams)", kind, title, media.StreamCount),
		MediaID:     media.ID,
		UserID:      media.UserID,
		Kind:        string(media.Kind),
		Title:       media.Title,
		Year:        media.Year,
		IMDBId:      media.IMDBId,
		TMDBId:      media.TMDBId,
		StreamCount: media.StreamCount,
		Addons:      addons,
		Timestamp:   now.UTC(),
	}
}

package controllers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/amaumene/stremarr/internal/metrics"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/services/webhook"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Trigger names what started an availability check
type Trigger string

const (
	TriggerRegistered Trigger = "registered"
	TriggerManual     Trigger = "manual"
	TriggerRecheck    Trigger = "recheck"
	TriggerFreshness  Trigger = "freshness"
)

// AvailabilityController runs probe cycles and records their verdicts
type AvailabilityController struct {
	db       *models.Database
	probe    *ProbeController
	notifier webhook.Notifier
	metrics  *metrics.Metrics
	inflight singleflight.Group
	logger   *logrus.Logger

	mu     sync.Mutex
	shared map[string]*sharedCheck
}

// sharedCheck is the context an in-flight check runs on. It is detached from
// the callers and cancelled once every caller waiting on it has gone.
type sharedCheck struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewAvailabilityController creates a new availability controller
func NewAvailabilityController(db *models.Database, probe *ProbeController, notifier webhook.Notifier, m *metrics.Metrics, logger *logrus.Logger) *AvailabilityController {
	return &AvailabilityController{
		db:       db,
		probe:    probe,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		shared:   make(map[string]*sharedCheck),
	}
}

// CheckAvailability probes a media item with its owner's addons and records
// the verdict. Concurrent checks of the same item share one probe cycle, which
// keeps running as long as one caller still waits for it.
// The first time an item becomes available the notifier is called.
func (c *AvailabilityController) CheckAvailability(ctx context.Context, media *models.Media, trigger Trigger) (models.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return models.Verdict{}, fmt.Errorf("availability check of media %d interrupted: %w", media.ID, err)
	}

	key := strconv.FormatUint(media.ID, 10)
	shared := c.join(ctx, key)
	defer c.leave(key, shared)

	results := c.inflight.DoChan(key, func() (interface{}, error) {
		return c.check(shared.ctx, media.ID, trigger)
	})

	select {
	case res := <-results:
		if res.Shared {
			c.logger.WithFields(logrus.Fields{
				"media_id": media.ID,
				"trigger":  trigger,
			}).Debug("Joined in-flight availability check")
		}
		if res.Err != nil {
			return models.Verdict{}, res.Err
		}
		return res.Val.(models.Verdict), nil
	case <-ctx.Done():
		return models.Verdict{}, fmt.Errorf("availability check of media %d interrupted: %w", media.ID, ctx.Err())
	}
}

// join registers the caller on the shared context of key, creating it when
// no check of that item is running
func (c *AvailabilityController) join(ctx context.Context, key string) *sharedCheck {
	c.mu.Lock()
	defer c.mu.Unlock()

	shared, ok := c.shared[key]
	if !ok {
		sharedCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		shared = &sharedCheck{ctx: sharedCtx, cancel: cancel}
		c.shared[key] = shared
	}
	shared.waiters++
	return shared
}

// leave unregisters the caller. The last one out cancels the shared context
// and forgets the in-flight call so later callers start a fresh check.
func (c *AvailabilityController) leave(key string, shared *sharedCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()

	shared.waiters--
	if shared.waiters > 0 {
		return
	}
	if c.shared[key] == shared {
		delete(c.shared, key)
		c.inflight.Forget(key)
	}
	shared.cancel()
}

func (c *AvailabilityController) check(ctx context.Context, mediaID uint64, trigger Trigger) (models.Verdict, error) {
	// Reload so the transition check sees the latest stored state
	media, err := c.db.GetMediaByID(mediaID)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("failed to load media %d: %w", mediaID, err)
	}

	var (
		authKey  string
		selected []string
		filters  *models.FilterPreferences
	)
	user, err := c.db.GetUserByID(media.UserID)
	switch {
	case err == nil:
		authKey = user.StremioAuthKey
		selected = user.SelectedAddons
		if !user.Filters.IsZero() {
			prefs := user.Filters
			filters = &prefs
		}
	case models.IsNotFound(err):
		c.logger.WithFields(logrus.Fields{
			"media_id": media.ID,
			"user_id":  media.UserID,
		}).Warn("Media owner not found, probing without credentials")
	default:
		return models.Verdict{}, fmt.Errorf("failed to load user %d: %w", media.UserID, err)
	}

	wasAvailable := media.StreamsAvailable
	verdict := c.probe.Probe(ctx, media, authKey, selected, filters)

	// A cancelled probe says nothing about the addons, keep the previous verdict
	if err := ctx.Err(); err != nil {
		return models.Verdict{}, fmt.Errorf("availability check of media %d interrupted: %w", media.ID, err)
	}

	updated, err := c.db.RecordVerdict(media.ID, verdict)
	if err != nil {
		return models.Verdict{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"media_id":     updated.ID,
		"title":        updated.Title,
		"trigger":      trigger,
		"available":    updated.StreamsAvailable,
		"stream_count": updated.StreamCount,
	}).Info("Availability recorded")

	if !wasAvailable && updated.StreamsAvailable && updated.AvailableNotifiedAt == nil {
		c.notifyAvailable(ctx, updated)
	}

	return verdict, nil
}

// notifyAvailable dispatches the availability notification and stamps the item
// so it is sent only once
func (c *AvailabilityController) notifyAvailable(ctx context.Context, media *models.Media) {
	if err := c.notifier.OnAvailable(ctx, media); err != nil {
		c.metrics.NotificationsTotal.WithLabelValues("error").Inc()
		c.logger.WithError(err).WithField("media_id", media.ID).Warn("Failed to send availability notification")
		return
	}
	c.metrics.NotificationsTotal.WithLabelValues("sent").Inc()

	if err := c.db.MarkAvailableNotified(media.ID, time.Now()); err != nil {
		c.logger.WithError(err).WithField("media_id", media.ID).Warn("Failed to record availability notification")
	}
}

package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amaumene/stremarr/internal/config"
	"github.com/amaumene/stremarr/internal/controllers"
	"github.com/amaumene/stremarr/internal/metrics"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// recheckSlackPercent is the share of the interval taken off the recheck
// cutoff. Items probed late in the previous pass are less than one interval
// old on the next tick.
const recheckSlackPercent = 10

// recheckMaxAge returns the age past which an unavailable item is due
func recheckMaxAge(interval time.Duration) time.Duration {
	return interval - interval*recheckSlackPercent/100
}

// Scheduler manages scheduled availability rechecks and background checks
type Scheduler struct {
	cron             *cron.Cron
	availabilityCtrl *controllers.AvailabilityController
	cleanupCtrl      *controllers.CleanupController
	db               *models.Database
	metrics          *metrics.Metrics
	logger           *logrus.Logger

	interval     time.Duration
	pacing       time.Duration
	startupDelay time.Duration
	freshness    time.Duration

	// scheduled holds the ids of items with a pending freshness reprobe
	scheduled *cache.Cache
	passing   atomic.Bool

	mu         sync.Mutex
	started    bool
	stopped    bool
	startTimer *time.Timer
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(
	availabilityCtrl *controllers.AvailabilityController,
	cleanupCtrl *controllers.CleanupController,
	db *models.Database,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	var cronLogger cron.Logger = cron.PrintfLogger(logger.WithField("component", "cron"))
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		cronLogger = cron.VerbosePrintfLogger(logger.WithField("component", "cron"))
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		availabilityCtrl: availabilityCtrl,
		cleanupCtrl:      cleanupCtrl,
		db:               db,
		metrics:          m,
		logger:           logger,
		interval:         cfg.RecheckInterval,
		pacing:           cfg.RecheckPacing,
		startupDelay:     cfg.RecheckStartupDelay,
		freshness:        cfg.FreshnessWindow,
		scheduled:        cache.New(cfg.FreshnessWindow, 10*time.Minute),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start starts the scheduler. Calling it again is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return fmt.Errorf("scheduler already stopped")
	}

	s.logger.WithFields(logrus.Fields{
		"interval":      s.interval,
		"startup_delay": s.startupDelay,
	}).Info("Starting scheduler")

	// Every recheck interval: re-probe unavailable items
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.runRecheck)
	if err != nil {
		return fmt.Errorf("failed to add recheck job: %w", err)
	}

	// Every hour: Cleanup watched medias
	_, err = s.cron.AddFunc("0 * * * *", s.runCleanupWatched)
	if err != nil {
		return fmt.Errorf("failed to add cleanup job: %w", err)
	}

	s.cron.Start()
	s.startTimer = time.AfterFunc(s.startupDelay, s.runRecheck)
	s.started = true

	s.logger.Info("Scheduler started")
	return nil
}

// Stop stops the scheduler. An in-flight pass is interrupted between items,
// and Stop waits for running jobs and background checks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	if s.startTimer != nil {
		s.startTimer.Stop()
	}
	started := s.started
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	if started {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// track registers a background task unless the scheduler is stopping
func (s *Scheduler) track() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, false
	}
	s.wg.Add(1)
	return s.wg.Done, true
}

// runRecheck executes the unavailable recheck job
func (s *Scheduler) runRecheck() {
	done, ok := s.track()
	if !ok {
		return
	}
	defer done()

	// The startup timer and the cron tick may meet; one pass at a time
	if !s.passing.CompareAndSwap(false, true) {
		s.logger.Info("Recheck pass already running, skipping")
		return
	}
	defer s.passing.Store(false)

	if _, err := s.RecheckUnavailable(s.ctx); err != nil {
		s.logger.WithError(err).Error("Recheck job failed")
	}
}

// RecheckUnavailable re-probes, one after another, the unavailable items not
// checked within the recheck interval. It returns how many items were probed.
func (s *Scheduler) RecheckUnavailable(ctx context.Context) (int, error) {
	s.logger.Info("Running scheduled recheck of unavailable medias")

	medias, err := s.db.GetMediaByAvailability(false)
	if err != nil {
		return 0, fmt.Errorf("failed to get unavailable medias: %w", err)
	}

	maxAge := recheckMaxAge(s.interval)
	now := time.Now()
	due := make([]*models.Media, 0, len(medias))
	for _, media := range medias {
		if media.IsStale(now, maxAge) {
			due = append(due, media)
		}
	}

	if len(due) == 0 {
		s.logger.Debug("No unavailable medias due for recheck")
		s.metrics.RecheckPasses.Inc()
		return 0, nil
	}

	s.logger.WithFields(logrus.Fields{
		"due":         len(due),
		"unavailable": len(medias),
	}).Info("Rechecking unavailable medias")

	checked := 0
	for i, media := range due {
		if i > 0 && !sleep(ctx, s.pacingDelay()) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		if _, err := s.availabilityCtrl.CheckAvailability(ctx, media, controllers.TriggerRecheck); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"media_id": media.ID,
				"title":    media.Title,
			}).Error("Recheck failed")
			continue
		}
		checked++
		s.metrics.RecheckItems.Inc()
	}

	if err := ctx.Err(); err != nil {
		s.logger.WithField("checked", checked).Info("Recheck pass interrupted")
		return checked, err
	}

	s.metrics.RecheckPasses.Inc()
	s.logger.WithField("checked", checked).Info("Recheck pass completed")
	return checked, nil
}

// CheckAsync runs an availability check in the background on the scheduler's
// context, detached from the caller's request
func (s *Scheduler) CheckAsync(media *models.Media, trigger controllers.Trigger) bool {
	done, ok := s.track()
	if !ok {
		return false
	}

	go func() {
		defer done()
		if _, err := s.availabilityCtrl.CheckAvailability(s.ctx, media, trigger); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"media_id": media.ID,
				"trigger":  trigger,
			}).Warn("Background availability check failed")
		}
	}()
	return true
}

// RefreshStale schedules a background reprobe of every item whose last check
// is older than the freshness window. An item is scheduled at most once per window.
func (s *Scheduler) RefreshStale(medias []*models.Media) int {
	now := time.Now()
	scheduled := 0
	for _, media := range medias {
		if !media.IsStale(now, s.freshness) {
			continue
		}
		if err := s.scheduled.Add(strconv.FormatUint(media.ID, 10), now, cache.DefaultExpiration); err != nil {
			continue
		}
		if s.CheckAsync(media, controllers.TriggerFreshness) {
			scheduled++
		}
	}

	if scheduled > 0 {
		s.logger.WithField("count", scheduled).Debug("Scheduled freshness rechecks")
	}
	return scheduled
}

// runCleanupWatched executes the watched cleanup job
func (s *Scheduler) runCleanupWatched() {
	done, ok := s.track()
	if !ok {
		return
	}
	defer done()

	s.logger.Info("Running scheduled cleanup of watched content")
	if _, err := s.cleanupCtrl.CleanupWatched(s.ctx); err != nil {
		s.logger.WithError(err).Error("Cleanup job failed")
	} else {
		s.logger.Info("Cleanup job completed successfully")
	}
}

// pacingDelay returns the pause between two items: the pacing plus up to 50% jitter
func (s *Scheduler) pacingDelay() time.Duration {
	if s.pacing <= 0 {
		return 0
	}
	return s.pacing + time.Duration(rand.Int64N(int64(s.pacing/2)+1))
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/stremarr/internal/metrics"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/services/stremio"
	"github.com/amaumene/stremarr/internal/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Verdict reasons for probes that could not find any stream
const (
	ReasonNoExternalID     = "no external id"
	ReasonNoAuthKey        = "no stremio auth key configured"
	ReasonAddonListFailed  = "addon list failed"
	ReasonNoStreamAddons   = "no stream-capable addons"
	ReasonNoSelectedAddons = "no selected addons installed"
	ReasonNoStreamsFound   = "no streams found"
)

// Series are probed on season 1 episode 1 only
const seriesSentinelEpisodeID = ":1:1"

// AddonDirectory lists a user's addons and queries them for streams
type AddonDirectory interface {
	ListStreamCapableAddons(ctx context.Context, authKey string) ([]stremio.AddonDescriptor, error)
	GetStreams(ctx context.Context, addon stremio.AddonDescriptor, kind models.MediaKind, id string) ([]stremio.Stream, error)
}

// ProbeController asks a user's addons whether they can stream a media item
type ProbeController struct {
	addons       AddonDirectory
	resolver     *ResolverController
	blacklist    *utils.Blacklist
	addonTimeout time.Duration
	concurrency  int
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	logger       *logrus.Logger
}

// NewProbeController creates a new probe controller.
// A concurrency of 1 queries addons strictly one after another.
func NewProbeController(addons AddonDirectory, resolver *ResolverController, blacklist *utils.Blacklist, addonTimeout time.Duration, concurrency int, m *metrics.Metrics, logger *logrus.Logger) *ProbeController {
	if concurrency < 1 {
		concurrency = 1
	}
	if addonTimeout <= 0 {
		addonTimeout = 10 * time.Second
	}
	return &ProbeController{
		addons:       addons,
		resolver:     resolver,
		blacklist:    blacklist,
		addonTimeout: addonTimeout,
		concurrency:  concurrency,
		metrics:      m,
		tracer:       otel.Tracer("github.com/amaumene/stremarr/internal/controllers"),
		logger:       logger,
	}
}

// Probe runs one probe cycle for a media item and returns its verdict.
// It never fails: every problem becomes an unavailable verdict with a reason.
func (c *ProbeController) Probe(ctx context.Context, media *models.Media, authKey string, selectedAddons []string, filters *models.FilterPreferences) models.Verdict {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "probe", trace.WithAttributes(
		attribute.Int64("media.id", int64(media.ID)),
		attribute.String("media.kind", string(media.Kind)),
	))
	defer span.End()

	verdict := c.probe(ctx, media, authKey, selectedAddons, filters)

	c.metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	c.metrics.ProbesTotal.WithLabelValues(strconv.FormatBool(verdict.Available)).Inc()
	span.SetAttributes(
		attribute.Bool("available", verdict.Available),
		attribute.Int("stream_count", verdict.StreamCount),
	)
	if verdict.Reason != "" {
		span.SetAttributes(attribute.String("reason", verdict.Reason))
	}

	c.logger.WithFields(logrus.Fields{
		"media_id":     media.ID,
		"title":        media.Title,
		"available":    verdict.Available,
		"stream_count": verdict.StreamCount,
		"addons":       len(verdict.Addons),
		"reason":       verdict.Reason,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("Probe completed")

	return verdict
}

func (c *ProbeController) probe(ctx context.Context, media *models.Media, authKey string, selectedAddons []string, filters *models.FilterPreferences) models.Verdict {
	streamID, err := c.resolver.ResolveStreamID(ctx, media)
	if err != nil || streamID == "" {
		return unavailable(ReasonNoExternalID)
	}

	if strings.TrimSpace(authKey) == "" {
		return unavailable(ReasonNoAuthKey)
	}

	addons, err := c.addons.ListStreamCapableAddons(ctx, authKey)
	if err != nil {
		c.logger.WithError(err).WithField("media_id", media.ID).Warn("Failed to list Stremio addons")
		return unavailable(fmt.Sprintf("%s: %v", ReasonAddonListFailed, err))
	}
	if len(addons) == 0 {
		return unavailable(ReasonNoStreamAddons)
	}

	if len(selectedAddons) > 0 {
		addons = restrictToSelection(addons, selectedAddons)
		if len(addons) == 0 {
			return unavailable(ReasonNoSelectedAddons)
		}
	}

	eligible := make([]stremio.AddonDescriptor, 0, len(addons))
	for _, addon := range addons {
		if !addon.SupportsKind(media.Kind) {
			c.logger.WithFields(logrus.Fields{
				"addon": addon.ID,
				"kind":  media.Kind,
			}).Debug("Addon does not serve this kind, skipping")
			continue
		}
		eligible = append(eligible, addon)
	}

	lookupKey := streamID
	if media.Kind == models.MediaKindSeries {
		lookupKey = streamID + seriesSentinelEpisodeID
	}

	// Results are indexed by addon position so aggregation keeps the addon list order
	results := make([]*models.AddonEvidence, len(eligible))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, addon := range eligible {
		g.Go(func() error {
			results[i] = c.queryAddon(ctx, addon, media.Kind, lookupKey, filters)
			return nil
		})
	}
	_ = g.Wait()

	verdict := models.Verdict{CheckedAt: time.Now()}
	for _, evidence := range results {
		if evidence == nil {
			continue
		}
		verdict.StreamCount += evidence.StreamCount
		verdict.Addons = append(verdict.Addons, *evidence)
	}
	verdict.Available = verdict.StreamCount > 0
	if !verdict.Available {
		verdict.Reason = ReasonNoStreamsFound
	}
	return verdict
}

// queryAddon asks one addon for streams and returns its evidence, or nil when
// the addon failed or had no stream passing the filters
func (c *ProbeController) queryAddon(ctx context.Context, addon stremio.AddonDescriptor, kind models.MediaKind, key string, filters *models.FilterPreferences) *models.AddonEvidence {
	ctx, span := c.tracer.Start(ctx, "addon.query", trace.WithAttributes(
		attribute.String("addon.id", addon.ID),
		attribute.String("lookup.key", key),
	))
	defer span.End()

	queryCtx, cancel := context.WithTimeout(ctx, c.addonTimeout)
	defer cancel()

	streams, err := c.addons.GetStreams(queryCtx, addon, kind, key)
	if err != nil {
		result := metrics.AddonError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			result = metrics.AddonTimeout
		}
		c.metrics.AddonQueriesTotal.WithLabelValues(addon.ID, result).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, result)

		c.logger.WithFields(logrus.Fields{
			"addon":  addon.ID,
			"key":    key,
			"result": result,
		}).WithError(err).Warn("Addon query failed, skipping addon")
		return nil
	}
	c.metrics.AddonQueriesTotal.WithLabelValues(addon.ID, metrics.AddonOK).Inc()

	evidence := c.collectEvidence(addon, streams, filters)
	span.SetAttributes(
		attribute.Int("streams.raw", len(streams)),
		attribute.Int("streams.matched", evidence.StreamCount),
	)

	c.logger.WithFields(logrus.Fields{
		"addon":   addon.ID,
		"key":     key,
		"raw":     len(streams),
		"matched": evidence.StreamCount,
	}).Debug("Addon answered")

	if evidence.StreamCount == 0 {
		return nil
	}
	return evidence
}

// collectEvidence classifies and filters the streams of one addon
func (c *ProbeController) collectEvidence(addon stremio.AddonDescriptor, streams []stremio.Stream, filters *models.FilterPreferences) *models.AddonEvidence {
	evidence := &models.AddonEvidence{
		AddonID:   addon.ID,
		AddonName: addon.Name,
	}

	for _, stream := range streams {
		classified := utils.ClassifyStream(stream.Text())

		if blacklisted, term := c.blacklist.IsBlacklisted(classified.MatchText()); blacklisted {
			c.logger.WithFields(logrus.Fields{
				"stream": classified.DisplayName,
				"term":   term,
			}).Debug("Stream blacklisted")
			continue
		}
		if !utils.PassesFilters(classified, filters) {
			continue
		}

		evidence.StreamCount++
		if len(evidence.Streams) < models.MaxEvidencePerAddon {
			evidence.Streams = append(evidence.Streams, models.StreamEvidence{
				Name:    classified.DisplayName,
				Title:   classified.Title,
				Quality: classified.Quality,
				Size:    classified.Size,
			})
		}
	}

	c.metrics.StreamsMatched.Add(float64(evidence.StreamCount))
	return evidence
}

// restrictToSelection keeps the addons whose id was selected, in addon list order
func restrictToSelection(addons []stremio.AddonDescriptor, selected []string) []stremio.AddonDescriptor {
	wanted := make(map[string]bool, len(selected))
	for _, id := range selected {
		wanted[strings.TrimSpace(id)] = true
	}

	kept := make([]stremio.AddonDescriptor, 0, len(addons))
	for _, addon := range addons {
		if wanted[addon.ID] {
			kept = append(kept, addon)
		}
	}
	return kept
}

func unavailable(reason string) models.Verdict {
	return models.Verdict{
		Reason:    reason,
		CheckedAt: time.Now(),
	}
}

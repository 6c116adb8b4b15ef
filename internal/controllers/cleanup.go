package controllers

import (
	"context"
	"fmt"

	"github.com/amaumene/stremarr/internal/models"
	"github.com/sirupsen/logrus"
)

// CleanupController removes watched content from the catalog
type CleanupController struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewCleanupController creates a new cleanup controller
func NewCleanupController(db *models.Database, logger *logrus.Logger) *CleanupController {
	return &CleanupController{
		db:     db,
		logger: logger,
	}
}

// CleanupWatched deletes watched movies and series whose episodes are all watched.
// This runs hourly.
func (c *CleanupController) CleanupWatched(ctx context.Context) (int, error) {
	c.logger.Info("Starting cleanup of watched content")

	medias, err := c.db.GetAllMedias()
	if err != nil {
		return 0, fmt.Errorf("failed to get medias: %w", err)
	}

	cleanedCount := 0
	for _, media := range medias {
		if err := ctx.Err(); err != nil {
			return cleanedCount, err
		}

		var (
			done bool
			err  error
		)
		switch media.Kind {
		case models.MediaKindMovie:
			// Movies: delete once watched
			done = media.Watched
		case models.MediaKindSeries:
			done, err = c.seriesWatched(media)
		}
		if err != nil {
			c.logger.WithError(err).WithField("media_id", media.ID).Error("Failed to check watched state")
			continue
		}
		if !done {
			continue
		}

		c.logger.WithFields(logrus.Fields{
			"media_id": media.ID,
			"title":    media.Title,
			"kind":     media.Kind,
		}).Info("Cleaning up watched media")

		if err := c.db.DeleteMedia(media.ID); err != nil {
			c.logger.WithError(err).Error("Failed to delete media")
			continue
		}
		cleanedCount++
	}

	c.logger.WithField("cleaned", cleanedCount).Info("Cleanup of watched content completed")
	return cleanedCount, nil
}

// seriesWatched reports whether a series is flagged watched or has only
// watched episodes. A series without tracked episodes needs the flag.
func (c *CleanupController) seriesWatched(media *models.Media) (bool, error) {
	if media.Watched {
		return true, nil
	}

	episodes, err := c.db.GetEpisodesByMediaID(media.ID)
	if err != nil {
		return false, err
	}
	if len(episodes) == 0 {
		return false, nil
	}

	for _, episode := range episodes {
		if !episode.Watched {
			return false, nil
		}
	}
	return true, nil
}

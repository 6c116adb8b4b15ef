package controllers

import (
	"context"

	"github.com/amaumene/stremarr/internal/models"
	"github.com/sirupsen/logrus"
)

// MetadataProvider maps catalog ids onto the IMDB ID used for stream lookups
type MetadataProvider interface {
	ResolveExternalID(ctx context.Context, tmdbID int, kind models.MediaKind) (string, error)
	FindByTVDB(ctx context.Context, tvdbID int) (int, error)
}

// IMDBWriter persists a resolved IMDB ID onto a media item
type IMDBWriter interface {
	SetIMDBID(id uint64, imdbID string) error
}

// ResolverController resolves the stream lookup id of media items
type ResolverController struct {
	db        IMDBWriter
	providers []MetadataProvider
	logger    *logrus.Logger
}

// NewResolverController creates a new resolver controller.
// Providers are tried in order until one returns an id.
func NewResolverController(db IMDBWriter, logger *logrus.Logger, providers ...MetadataProvider) *ResolverController {
	return &ResolverController{
		db:        db,
		providers: providers,
		logger:    logger,
	}
}

// ResolveStreamID returns the IMDB ID of a media item, looking it up from its
// TMDB or TVDB id when missing. An empty string means the id could not be resolved.
// The only error returned is the context's.
func (c *ResolverController) ResolveStreamID(ctx context.Context, media *models.Media) (string, error) {
	if media.IMDBId != "" {
		return media.IMDBId, nil
	}

	for _, provider := range c.providers {
		imdbID := c.resolveWith(ctx, provider, media)
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if imdbID == "" {
			continue
		}

		media.IMDBId = imdbID
		if err := c.db.SetIMDBID(media.ID, imdbID); err != nil {
			c.logger.WithError(err).WithField("media_id", media.ID).Warn("Failed to store resolved IMDB ID")
		}

		c.logger.WithFields(logrus.Fields{
			"media_id": media.ID,
			"tmdb_id":  media.TMDBId,
			"imdb_id":  imdbID,
		}).Debug("Resolved IMDB ID")
		return imdbID, nil
	}

	c.logger.WithFields(logrus.Fields{
		"media_id": media.ID,
		"tmdb_id":  media.TMDBId,
		"tvdb_id":  media.TVDBId,
	}).Info("Could not resolve IMDB ID")
	return "", nil
}

func (c *ResolverController) resolveWith(ctx context.Context, provider MetadataProvider, media *models.Media) string {
	tmdbID := media.TMDBId

	if tmdbID == 0 && media.TVDBId > 0 && media.Kind == models.MediaKindSeries {
		found, err := provider.FindByTVDB(ctx, media.TVDBId)
		if err != nil {
			c.logger.WithError(err).WithField("tvdb_id", media.TVDBId).Warn("TVDB lookup failed")
			return ""
		}
		tmdbID = found
	}

	if tmdbID <= 0 {
		return ""
	}

	imdbID, err := provider.ResolveExternalID(ctx, tmdbID, media.Kind)
	if err != nil {
		c.logger.WithError(err).WithField("tmdb_id", tmdbID).Warn("External ID lookup failed")
		return ""
	}
	return imdbID
}

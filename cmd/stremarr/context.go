package main

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/amaumene/stremarr/internal/config"
	"github.com/amaumene/stremarr/internal/controllers"
	"github.com/amaumene/stremarr/internal/metrics"
	"github.com/amaumene/stremarr/internal/models"
	"github.com/amaumene/stremarr/internal/services/stremio"
	"github.com/amaumene/stremarr/internal/services/tmdb"
	"github.com/amaumene/stremarr/internal/services/trakt"
	"github.com/amaumene/stremarr/internal/services/webhook"
	"github.com/amaumene/stremarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// commandContext lazily loads what the subcommands share
type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	logger     *logrus.Logger
	configErr  error

	dbOnce sync.Once
	db     *models.Database
	dbErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, *logrus.Logger, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = fmt.Errorf("failed to load configuration: %w", err)
			return
		}
		c.config = cfg
		c.logger = utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
		c.logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Debug("Configuration loaded")
	})
	return c.config, c.logger, c.configErr
}

func (c *commandContext) ensureDatabase() (*models.Database, error) {
	cfg, logger, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.dbOnce.Do(func() {
		c.db, c.dbErr = models.NewDatabase(cfg.DatabaseFile)
		if c.dbErr != nil {
			c.dbErr = fmt.Errorf("failed to initialize database: %w", c.dbErr)
			return
		}
		logger.Debug("Database initialized")
	})
	return c.db, c.dbErr
}

func (c *commandContext) close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// buildAvailability wires the resolution pipeline from external id lookup to
// notification
func buildAvailability(cfg *config.Config, db *models.Database, m *metrics.Metrics, logger *logrus.Logger) (*controllers.AvailabilityController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var providers []controllers.MetadataProvider
	if cfg.TMDBAPIKey != "" {
		tmdbClient, err := tmdb.NewClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TMDB client: %w", err)
		}
		providers = append(providers, tmdbClient)
		logger.Info("TMDB client initialized")
	}
	if cfg.TraktClientID != "" {
		traktClient, err := trakt.NewClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Trakt client: %w", err)
		}
		providers = append(providers, traktClient)
		logger.Info("Trakt client initialized")
	}

	blacklist, err := utils.LoadBlacklist(cfg.BlacklistFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load blacklist, continuing without it")
		blacklist = utils.NewBlacklist(nil)
	} else {
		logger.WithField("terms", blacklist.Len()).Info("Blacklist loaded")
	}

	stremioClient := stremio.NewClient(cfg, logger)
	resolver := controllers.NewResolverController(db, logger, providers...)
	probe := controllers.NewProbeController(stremioClient, resolver, blacklist, cfg.AddonTimeout, cfg.AddonConcurrency, m, logger)
	notifier := webhook.NewNotifier(cfg, logger)

	return controllers.NewAvailabilityController(db, probe, notifier, m, logger), nil
}

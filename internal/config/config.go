package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Stremio
	StremioAPIURL    string
	AddonTimeout     time.Duration // Per-addon stream query bound (default: 10s)
	AddonConcurrency int           // Addons queried in parallel per probe (default: 4)
	SyncCheckTimeout time.Duration // Bound of a check run inside an HTTP request (default: 60s)

	// Metadata
	TMDBAPIKey    string
	TMDBBaseURL   string
	TraktClientID string // Optional fallback for external id lookups

	// Notifications
	WebhookURL        string
	JellyseerrURL     string
	JellyseerrAPIKey  string
	JellyseerrSyncJob string

	// Rechecks
	RecheckInterval     time.Duration // Unavailable items recheck period (default: 24h)
	RecheckPacing       time.Duration // Delay between items in one pass (default: 1s)
	RecheckStartupDelay time.Duration // Delay before the first pass (default: 60s)
	FreshnessWindow     time.Duration // Age after which a read triggers a reprobe (default: 1h)

	// Sessions
	SessionTTL time.Duration

	// Server
	ServerPort string

	// Paths
	BlacklistFile string // $CONFIG_DIR/blacklist.txt
	DatabaseFile  string // $CONFIG_DIR/stremarr.db

	// Observability
	LogLevel       string
	LogFormat      string
	TracingEnabled bool
}

// Load loads configuration from environment variables and .env file.
// Commands that talk to external services call Validate afterwards.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	setDefaults()

	configDir, err := resolveConfigDir(viper.GetString("CONFIG_DIR"))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		StremioAPIURL:    viper.GetString("STREMIO_API_URL"),
		AddonTimeout:     time.Duration(viper.GetInt("ADDON_TIMEOUT_SECONDS")) * time.Second,
		AddonConcurrency: viper.GetInt("ADDON_CONCURRENCY"),
		SyncCheckTimeout: time.Duration(viper.GetInt("SYNC_CHECK_TIMEOUT_SECONDS")) * time.Second,

		TMDBAPIKey:    viper.GetString("TMDB_API_KEY"),
		TMDBBaseURL:   viper.GetString("TMDB_BASE_URL"),
		TraktClientID: viper.GetString("TRAKT_CLIENT_ID"),

		WebhookURL:        viper.GetString("WEBHOOK_URL"),
		JellyseerrURL:     viper.GetString("JELLYSEERR_URL"),
		JellyseerrAPIKey:  viper.GetString("JELLYSEERR_API_KEY"),
		JellyseerrSyncJob: viper.GetString("JELLYSEERR_SYNC_JOB"),

		RecheckInterval:     time.Duration(viper.GetInt("RECHECK_INTERVAL_HOURS")) * time.Hour,
		RecheckPacing:       time.Duration(viper.GetInt("RECHECK_PACING_MS")) * time.Millisecond,
		RecheckStartupDelay: time.Duration(viper.GetInt("RECHECK_STARTUP_DELAY_SECONDS")) * time.Second,
		FreshnessWindow:     time.Duration(viper.GetInt("FRESHNESS_MINUTES")) * time.Minute,

		SessionTTL: time.Duration(viper.GetInt("SESSION_TTL_HOURS")) * time.Hour,

		ServerPort: viper.GetString("SERVER_PORT"),

		BlacklistFile: filepath.Join(configDir, "blacklist.txt"),
		DatabaseFile:  filepath.Join(configDir, "stremarr.db"),

		LogLevel:       viper.GetString("LOG_LEVEL"),
		LogFormat:      viper.GetString("LOG_FORMAT"),
		TracingEnabled: viper.GetBool("TRACING_ENABLED"),
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("STREMIO_API_URL", "https://api.strem.io")
	viper.SetDefault("ADDON_TIMEOUT_SECONDS", 10)
	viper.SetDefault("ADDON_CONCURRENCY", 4)
	viper.SetDefault("SYNC_CHECK_TIMEOUT_SECONDS", 60)
	viper.SetDefault("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	viper.SetDefault("JELLYSEERR_SYNC_JOB", "jellyfin-recently-added-scan")
	viper.SetDefault("RECHECK_INTERVAL_HOURS", 24)
	viper.SetDefault("RECHECK_PACING_MS", 1000)
	viper.SetDefault("RECHECK_STARTUP_DELAY_SECONDS", 60)
	viper.SetDefault("FRESHNESS_MINUTES", 60)
	viper.SetDefault("SESSION_TTL_HOURS", 720)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
}

func resolveConfigDir(configDir string) (string, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", "stremarr"), nil
	}

	absPath, err := filepath.Abs(configDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
	}
	return absPath, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.TMDBAPIKey == "" && c.TraktClientID == "" {
		return fmt.Errorf("TMDB_API_KEY or TRAKT_CLIENT_ID is required")
	}
	if c.AddonTimeout <= 0 {
		return fmt.Errorf("ADDON_TIMEOUT_SECONDS must be positive")
	}
	if c.AddonConcurrency < 1 {
		return fmt.Errorf("ADDON_CONCURRENCY must be at least 1")
	}
	if c.SyncCheckTimeout < c.AddonTimeout {
		return fmt.Errorf("SYNC_CHECK_TIMEOUT_SECONDS must be at least ADDON_TIMEOUT_SECONDS")
	}
	if c.RecheckInterval <= 0 {
		return fmt.Errorf("RECHECK_INTERVAL_HOURS must be positive")
	}
	if c.RecheckPacing < 0 || c.RecheckStartupDelay < 0 {
		return fmt.Errorf("recheck pacing and startup delay must not be negative")
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("FRESHNESS_MINUTES must be positive")
	}
	return nil
}

// Default returns a configuration populated with the built-in defaults and
// no credentials
func Default() Config {
	return Config{
		StremioAPIURL:       "https://api.strem.io",
		AddonTimeout:        10 * time.Second,
		AddonConcurrency:    4,
		SyncCheckTimeout:    60 * time.Second,
		TMDBBaseURL:         "https://api.themoviedb.org/3",
		JellyseerrSyncJob:   "jellyfin-recently-added-scan",
		RecheckInterval:     24 * time.Hour,
		RecheckPacing:       time.Second,
		RecheckStartupDelay: 60 * time.Second,
		FreshnessWindow:     time.Hour,
		SessionTTL:          720 * time.Hour,
		ServerPort:          "8080",
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

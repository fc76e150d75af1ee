// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Engine types
const (
	EngineMPD     = "mpd"
	EngineSpotify = "spotify"
)

// Library types
const (
	LibrarySpotify = "spotify"
	LibraryNone    = "none"
)

// Ledger types
const (
	LedgerMemory = "memory"
	LedgerRedis  = "redis"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Engine    EngineConfig            `yaml:"engine"`
	Library   LibraryConfig           `yaml:"library"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
	Playback  PlaybackConfig          `yaml:"playback"`
	Favorites FavoritesConfig         `yaml:"favorites"`
	Ledger    LedgerConfig            `yaml:"ledger"`
	Filters   map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr         string      `yaml:"addr" default:":8080"`
	ControlToken string      `yaml:"control_token"`
	Hooks        HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// EngineConfig selects and configures the playback engine.
type EngineConfig struct {
	Type     string         `yaml:"type" default:"mpd" validate:"oneof=mpd spotify"`
	Settings map[string]any `yaml:"settings"`
}

// LibraryConfig selects the remote library service.
type LibraryConfig struct {
	Type     string `yaml:"type" default:"none" validate:"oneof=spotify none"`
	PageSize int    `yaml:"page_size" default:"50" validate:"gte=1,lte=50"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string  `yaml:"client_id"`
	ClientSecret string  `yaml:"client_secret"`
	RefreshToken string  `yaml:"refresh_token"`
	Market       string  `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	RateLimit    float64 `yaml:"rate_limit" default:"10" validate:"gte=0"`
}

// PlaybackConfig represents playback orchestration timings.
type PlaybackConfig struct {
	CooldownMs         int  `yaml:"cooldown_ms" default:"300" validate:"gte=0,lte=10000"`
	QueueUpdateDelayMs int  `yaml:"queue_update_delay_ms" default:"200" validate:"gte=0,lte=10000"`
	SettleTimeoutMs    int  `yaml:"settle_timeout_ms" default:"1500" validate:"gte=0,lte=30000"`
	SettleIntervalMs   int  `yaml:"settle_interval_ms" default:"100" validate:"gte=1,lte=5000"`
	AppendAttempts     int  `yaml:"append_attempts" default:"8" validate:"gte=1,lte=100"`
	AppendIntervalMs   int  `yaml:"append_interval_ms" default:"200" validate:"gte=1,lte=5000"`
	FallbackTimeoutMs  int  `yaml:"fallback_timeout_ms" default:"3000" validate:"gte=0,lte=30000"`
	StrictSettle       bool `yaml:"strict_settle"`
}

// FavoritesConfig represents library mutation debounce timings.
type FavoritesConfig struct {
	DebounceMs  int `yaml:"debounce_ms" default:"700" validate:"gte=0,lte=60000"`
	RetentionMs int `yaml:"retention_ms" default:"1000" validate:"gte=0,lte=60000"`
	HoldMs      int `yaml:"hold_ms" default:"300" validate:"gte=0,lte=10000"`
}

// LedgerConfig selects where debounce entries are stored.
type LedgerConfig struct {
	Type  string      `yaml:"type" default:"memory" validate:"oneof=memory redis"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig represents Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"tunesync:debounce:"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("MPD_PASSWORD"); v != "" {
		if c.Engine.Settings == nil {
			c.Engine.Settings = make(map[string]any)
		}
		c.Engine.Settings["password"] = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Ledger.Redis.Password = v
	}
	if v := os.Getenv("CONTROL_TOKEN"); v != "" {
		c.Server.ControlToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Engine.Type == EngineSpotify || c.Library.Type == LibrarySpotify {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify client_id, client_secret and refresh_token are required")
		}
	}
	if c.Ledger.Type == LedgerRedis && c.Ledger.Redis.Addr == "" {
		return errors.New("ledger.redis.addr is required when ledger.type is redis")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Cooldown returns the play guard cooldown.
func (p PlaybackConfig) Cooldown() time.Duration { return ms(p.CooldownMs) }

// QueueUpdateDelay returns the pause after engine queue mutations.
func (p PlaybackConfig) QueueUpdateDelay() time.Duration { return ms(p.QueueUpdateDelayMs) }

// SettleTimeout returns the active index convergence timeout.
func (p PlaybackConfig) SettleTimeout() time.Duration { return ms(p.SettleTimeoutMs) }

// SettleInterval returns the active index poll interval.
func (p PlaybackConfig) SettleInterval() time.Duration { return ms(p.SettleIntervalMs) }

// AppendInterval returns the interval between append lookups.
func (p PlaybackConfig) AppendInterval() time.Duration { return ms(p.AppendIntervalMs) }

// FallbackTimeout returns the convergence timeout after a fallback rebuild.
func (p PlaybackConfig) FallbackTimeout() time.Duration { return ms(p.FallbackTimeoutMs) }

// Debounce returns the per-entity debounce window.
func (f FavoritesConfig) Debounce() time.Duration { return ms(f.DebounceMs) }

// Retention returns how long a completed mutation stays in the ledger.
func (f FavoritesConfig) Retention() time.Duration { return ms(f.RetentionMs) }

// Hold returns the active-track toggle hold.
func (f FavoritesConfig) Hold() time.Duration { return ms(f.HoldMs) }

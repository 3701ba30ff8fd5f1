package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"shadowcal/internal/shift"
	"shadowcal/internal/transit"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// TransitConfig configures the routing provider and the estimator around it.
type TransitConfig struct {
	// Endpoint is a Directions-style API base URL. Empty disables the
	// provider; every estimate then uses the offline fallback.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	APIKey   string `yaml:"api_key" json:"-"`

	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	AverageSpeedMPH float64       `yaml:"average_speed_mph" json:"average_speed_mph"`
	OverheadMinutes int           `yaml:"overhead_minutes" json:"overhead_minutes"`
	RatePerSec      float64       `yaml:"rate_per_sec" json:"rate_per_sec"`

	// BreakerTrip consecutive provider failures open the breaker for
	// BreakerCooldown (doubling while failures continue). Negative
	// disables it.
	BreakerTrip     int           `yaml:"breaker_trip" json:"breaker_trip"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" json:"breaker_cooldown"`
}

// GeocodeConfig configures address lookup. Empty Endpoint disables it.
type GeocodeConfig struct {
	Endpoint   string  `yaml:"endpoint" json:"endpoint"`
	UserAgent  string  `yaml:"user_agent" json:"user_agent"`
	RatePerSec float64 `yaml:"rate_per_sec" json:"rate_per_sec"`
}

// StorageConfig configures the SQLite event store.
type StorageConfig struct {
	Path        string        `yaml:"path" json:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone shift templates are read in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is the weekday an "upcoming week" begins on. Any English
	// day name; default "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Transit TransitConfig `yaml:"transit" json:"transit"`
	Geocode GeocodeConfig `yaml:"geocode" json:"geocode"`
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// CachePrune is the cron schedule for dropping expired transit
	// estimates.
	CachePrune string `yaml:"cache_prune" json:"cache_prune"`

	// ShiftPatterns adds or overrides employment-type shift tables.
	ShiftPatterns map[string][]shift.Spec `yaml:"shift_patterns,omitempty" json:"shift_patterns,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen     = "127.0.0.1:8080"
	defaultTimezone   = "America/New_York"
	defaultWeekStart  = "monday"
	defaultLogLevel   = "info"
	defaultCachePrune = "*/30 * * * *"
	defaultDBPath     = "./var/shadowcal.db"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Geocode: GeocodeConfig{Endpoint: "https://nominatim.openstreetmap.org"},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing or invalid values with defaults so partially
// filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if _, err := time.LoadLocation(c.Timezone); c.Timezone == "" || err != nil {
		c.Timezone = defaultTimezone
	}
	if _, err := shift.ParseWeekday(c.WeekStart); c.WeekStart == "" || err != nil {
		c.WeekStart = defaultWeekStart
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}

	t := &c.Transit
	if t.Timeout <= 0 {
		t.Timeout = transit.DefaultTimeout
	}
	if t.CacheTTL <= 0 {
		t.CacheTTL = transit.DefaultCacheTTL
	}
	if t.AverageSpeedMPH <= 0 {
		t.AverageSpeedMPH = transit.DefaultAverageSpeedMPH
	}
	if t.OverheadMinutes <= 0 {
		t.OverheadMinutes = transit.DefaultOverheadMinutes
	}
	if t.RatePerSec <= 0 {
		t.RatePerSec = 5
	}
	if t.BreakerTrip == 0 {
		t.BreakerTrip = 5
	}
	if t.BreakerCooldown <= 0 {
		t.BreakerCooldown = 30 * time.Second
	}

	if c.Geocode.RatePerSec <= 0 {
		c.Geocode.RatePerSec = 1
	}
	if c.Geocode.UserAgent == "" {
		c.Geocode.UserAgent = "shadowcal/0.1"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = defaultDBPath
	}
	if c.Storage.BusyTimeout <= 0 {
		c.Storage.BusyTimeout = 5 * time.Second
	}
	if c.CachePrune == "" {
		c.CachePrune = defaultCachePrune
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Location returns the configured zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WeekStartDay returns the configured first day of the week.
func (c *Config) WeekStartDay() time.Weekday {
	d, err := shift.ParseWeekday(c.WeekStart)
	if err != nil {
		return time.Monday
	}
	return d
}

// Patterns parses ShiftPatterns into templates keyed by normalized
// employment type.
func (c *Config) Patterns() (map[string][]shift.Template, error) {
	out := make(map[string][]shift.Template, len(c.ShiftPatterns))
	for name, specs := range c.ShiftPatterns {
		ts, err := shift.ParseTemplates(specs)
		if err != nil {
			return nil, fmt.Errorf("shift_patterns.%s: %w", name, err)
		}
		out[shift.NormalizeType(name)] = ts
	}
	return out, nil
}

// Load loads configuration from the given YAML path. A missing file is
// created with defaults (0600).
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()
	if _, err := cfg.Patterns(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save normalizes cfg and writes it atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	// atomic.WriteFile does not set permissions on new files.
	return os.Chmod(path, 0o600)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

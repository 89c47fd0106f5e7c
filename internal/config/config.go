package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. USERCAL_REMOTE_BASE_URL.
const EnvPrefix = "USERCAL_"

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultLogLevel    = "info"
	defaultBaseURL     = "http://localhost:3001"
	defaultTimeout     = 15 * time.Second
	defaultDraftTitle  = "No name"
	defaultRefreshCron = "*/15 * * * *"
	defaultProdID      = "-//usercal//EN"
	defaultHorizonDays = 90
)

// RemoteConfig describes the events service.
type RemoteConfig struct {
	// BaseURL is the service root; the events API lives under /events.
	BaseURL string `yaml:"base_url" json:"base_url" env:"BASE_URL"`

	// Timeout bounds each HTTP round trip.
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`

	// RatePerSecond paces outgoing requests. Zero disables pacing.
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second" env:"RATE_PER_SECOND"`
	Burst         int     `yaml:"burst" json:"burst" env:"BURST"`
}

// ICSConfig controls iCalendar import/export.
type ICSConfig struct {
	ProdID string `yaml:"prod_id" json:"prod_id" env:"PROD_ID"`
	// HorizonDays bounds recurrence expansion on import.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days" env:"HORIZON_DAYS"`
}

// CaptureConfig controls the headless screenshot of the web UI.
type CaptureConfig struct {
	Width      int    `yaml:"width" json:"width" env:"WIDTH"`
	Height     int    `yaml:"height" json:"height" env:"HEIGHT"`
	OutputPath string `yaml:"output_path" json:"output_path" env:"OUTPUT_PATH"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the local web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the local web UI and API.
	Listen string `yaml:"listen" json:"listen" env:"LISTEN"`

	// Timezone is the IANA zone used when rendering times in the web UI.
	Timezone string `yaml:"timezone" json:"timezone" env:"TIMEZONE"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`

	// DraftTitle is the title of events created from the UI.
	DraftTitle string `yaml:"draft_title" json:"draft_title" env:"DRAFT_TITLE"`

	// RefreshCron schedules periodic reloads (e.g. "*/15 * * * *"). The
	// literal "off" disables them.
	RefreshCron string `yaml:"refresh" json:"refresh" env:"REFRESH"`

	Remote  RemoteConfig  `yaml:"remote" json:"remote" envPrefix:"REMOTE_"`
	ICS     ICSConfig     `yaml:"ics" json:"ics" envPrefix:"ICS_"`
	Capture CaptureConfig `yaml:"capture" json:"capture" envPrefix:"CAPTURE_"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.DraftTitle == "" {
		c.DraftTitle = defaultDraftTitle
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = defaultBaseURL
	}
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = defaultTimeout
	}
	if c.Remote.RatePerSecond < 0 {
		c.Remote.RatePerSecond = 0
	}
	if c.Remote.RatePerSecond > 0 && c.Remote.Burst <= 0 {
		c.Remote.Burst = 1
	}
	if c.ICS.ProdID == "" {
		c.ICS.ProdID = defaultProdID
	}
	if c.ICS.HorizonDays <= 0 {
		c.ICS.HorizonDays = defaultHorizonDays
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote.base_url: unsupported scheme %q", u.Scheme)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("remote.base_url: query and fragment are not allowed")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// RefreshEnabled reports whether periodic reloads are configured.
func (c *Config) RefreshEnabled() bool {
	return c.RefreshCron != "off"
}

// ApplyEnv overrides fields from USERCAL_* environment variables. Unset
// variables leave the current values alone.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path and applies environment
// overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := loadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".usercal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, listen addresses, and logging level.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
	APIAddr     string `yaml:"api_addr"`
}

// Feed describes the market data connection parameters.
type Feed struct {
	Provider       string   `yaml:"provider"` // binance | poll | stub
	Symbols        []string `yaml:"symbols"`
	BaseURL        string   `yaml:"base_url"`         // poll provider only
	PollIntervalMs int      `yaml:"poll_interval_ms"` // poll provider only
	ReadTimeoutMs  int      `yaml:"read_timeout_ms"`
}

// Buffer bounds the in-memory tick queue feeding the store.
type Buffer struct {
	CapacityPerSymbol int `yaml:"capacity_per_symbol"`
}

// Store locates the on-disk tick database.
type Store struct {
	Path string `yaml:"path"`
}

// Analytics groups the defaults applied to resampling and pair statistics.
type Analytics struct {
	Granularity       string `yaml:"granularity"` // 1s | 1m | 5m
	RollingWindow     int    `yaml:"rolling_window"`
	RefreshIntervalMs int    `yaml:"refresh_interval_ms"`
}

// Alerts configures where triggered alert events are recorded.
type Alerts struct {
	EventsPath string `yaml:"events_path"`
	MaxHistory int    `yaml:"max_history"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Feed      Feed      `yaml:"feed"`
	Buffer    Buffer    `yaml:"buffer"`
	Store     Store     `yaml:"store"`
	Analytics Analytics `yaml:"analytics"`
	Alerts    Alerts    `yaml:"alerts"`
}

const (
	defaultBufferCapacity = 10000
	minRollingWindow      = 5
	maxRollingWindow      = 100
	defaultRefreshMs      = 2000
)

// Load reads a YAML file from disk, hydrates a Config struct, and normalizes
// out-of-range settings.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.normalize()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	if c.Feed.Provider == "" {
		c.Feed.Provider = "stub"
	}
	if c.Buffer.CapacityPerSymbol <= 0 {
		c.Buffer.CapacityPerSymbol = defaultBufferCapacity
	}
	if c.Analytics.Granularity == "" {
		c.Analytics.Granularity = "1m"
	}
	if c.Analytics.RollingWindow < minRollingWindow {
		c.Analytics.RollingWindow = minRollingWindow
	}
	if c.Analytics.RollingWindow > maxRollingWindow {
		c.Analytics.RollingWindow = maxRollingWindow
	}
	if c.Analytics.RefreshIntervalMs <= 0 {
		c.Analytics.RefreshIntervalMs = defaultRefreshMs
	}
	if c.Alerts.MaxHistory <= 0 {
		c.Alerts.MaxHistory = 100
	}
}

func (c *Config) validate() error {
	if _, err := ParseGranularity(c.Analytics.Granularity); err != nil {
		return err
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path must be set")
	}
	return nil
}

// RefreshInterval returns the drain cadence as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Analytics.RefreshIntervalMs) * time.Millisecond
}

// ParseGranularity maps the configured timeframe label to a bucket width.
func ParseGranularity(label string) (time.Duration, error) {
	switch label {
	case "1s":
		return time.Second, nil
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid granularity %q (want 1s, 1m, or 5m)", label)
	}
}

// Package config handles dictation configuration loading.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by [FindConfig] when no file exists in any of
// the default locations.
var ErrNotFound = errors.New("no config file found")

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/dictation/config.yaml, /etc/dictation/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dictation", "config.yaml"))
	}

	paths = append(paths, "/etc/dictation/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error wrapping [ErrNotFound] if nothing
// was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNotFound, DefaultSearchPaths())
}

// Config holds all dictation configuration.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	PublicURL string         `yaml:"public_url"`
	DataDir   string         `yaml:"data_dir"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
	Media     MediaConfig    `yaml:"media"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	Cache     CacheConfig    `yaml:"cache"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Updates   UpdatesConfig  `yaml:"updates"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// MediaConfig defines how captions are fetched with yt-dlp.
type MediaConfig struct {
	// YtDlpPath is the yt-dlp binary. Empty means look it up in PATH.
	YtDlpPath string `yaml:"yt_dlp_path"`
	// CookiesFile is an optional Netscape cookie jar passed to yt-dlp.
	CookiesFile string `yaml:"cookies_file"`
	// Language is the subtitle language requested (default "en").
	Language string `yaml:"language"`
	// TimeoutSec bounds each yt-dlp run (default 30).
	TimeoutSec int `yaml:"timeout_sec"`
	// MaxOutputBytes caps yt-dlp output and subtitle size (default 10 MB).
	MaxOutputBytes int64 `yaml:"max_output_bytes"`
	// FetchesPerMinute throttles yt-dlp launches. 0 disables.
	FetchesPerMinute int `yaml:"fetches_per_minute"`
	// Concurrency is the fetch burst and the prefetch parallelism.
	Concurrency int `yaml:"concurrency"`
}

// Timeout returns TimeoutSec as a duration.
func (m MediaConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSec) * time.Second
}

// PipelineConfig tunes caption normalization.
type PipelineConfig struct {
	MinSegmentSeconds float64 `yaml:"min_segment_seconds"`
}

// CacheConfig defines the raw cue cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"` // Default: <data_dir>/cues.db
	TTLHours int    `yaml:"ttl_hours"`
}

// TTL returns TTLHours as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// MQTTConfig defines the optional event publisher.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // mqtt://host:1883 or mqtts://host:8883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	DeviceName  string `yaml:"device_name"`
}

// UpdatesConfig defines the yt-dlp release check.
type UpdatesConfig struct {
	// GitHubToken raises the API rate limit. Optional.
	GitHubToken string `yaml:"github_token"`
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file. ${VAR} references are
// expanded from the environment before parsing, and unset fields take
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{
		Cache: CacheConfig{Enabled: true},
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	c.expandPaths()
	if c.PublicURL == "" {
		c.PublicURL = fmt.Sprintf("http://localhost:%d", c.Listen.Port)
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Media.Language == "" {
		c.Media.Language = "en"
	}
	if c.Media.TimeoutSec == 0 {
		c.Media.TimeoutSec = 30
	}
	if c.Media.MaxOutputBytes == 0 {
		c.Media.MaxOutputBytes = 10_000_000
	}
	if c.Media.Concurrency == 0 {
		c.Media.Concurrency = 4
	}
	if c.Pipeline.MinSegmentSeconds == 0 {
		c.Pipeline.MinSegmentSeconds = 0.8
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(c.DataDir, "cues.db")
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "dictation"
	}
	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "dictation"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (valid: text, json)", c.LogFormat)
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Media.TimeoutSec < 0 {
		return fmt.Errorf("media.timeout_sec must be positive")
	}
	if c.Media.MaxOutputBytes < 0 {
		return fmt.Errorf("media.max_output_bytes must be positive")
	}
	if c.Media.FetchesPerMinute < 0 {
		return fmt.Errorf("media.fetches_per_minute must not be negative")
	}
	if c.Media.Concurrency < 0 {
		return fmt.Errorf("media.concurrency must not be negative")
	}
	if c.Pipeline.MinSegmentSeconds < 0 {
		return fmt.Errorf("pipeline.min_segment_seconds must not be negative")
	}
	if c.Cache.TTLHours < 0 {
		return fmt.Errorf("cache.ttl_hours must not be negative")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		u, err := url.Parse(c.MQTT.Broker)
		if err != nil || u.Host == "" {
			return fmt.Errorf("mqtt.broker %q is not a URL", c.MQTT.Broker)
		}
	}
	return nil
}

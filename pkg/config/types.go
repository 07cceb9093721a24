package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct, populated from YAML and
// overridden by environment variables and flags.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Sync     SyncConfig     `yaml:"sync"`
	Watch    WatchConfig    `yaml:"watch"`
	Limits   LimitsConfig   `yaml:"limits"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Manifest ManifestConfig `yaml:"manifest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// StorageConfig holds the store file location.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig controls the push-channel snapshot broadcast.
type SyncConfig struct {
	Interval Duration `yaml:"interval"`
}

// WatchConfig controls the long-poll tool defaults.
type WatchConfig struct {
	PollInterval      Duration `yaml:"poll_interval"`
	AnnotationTimeout Duration `yaml:"annotation_timeout"`
	DiffTimeout       Duration `yaml:"diff_timeout"`
}

// LimitsConfig bounds inbound push-channel message rates per connection.
type LimitsConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// JanitorConfig controls the cron-scheduled idle-session sweep.
type JanitorConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Cron      string   `yaml:"cron"`
	IdleAfter Duration `yaml:"idle_after"`
}

// ManifestConfig points the component scanner at the project being annotated.
type ManifestConfig struct {
	Root string `yaml:"root"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	AuditDir string `yaml:"audit_dir"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "127.0.0.1"
	}
	p := c.Server.Port
	if p == 0 {
		p = 4201
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from
// strings like "500ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Or returns the wrapped duration, or def when unset.
func (d Duration) Or(def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return time.Duration(d)
}

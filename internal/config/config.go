package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"AddonLoader/pkg/addon"
	"AddonLoader/pkg/events"
	"AddonLoader/pkg/logger"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "ADDONLOADER_CONFIG"

// DefaultPath is used when neither a flag nor the environment names a file.
var DefaultPath = filepath.Join("configs", "addonloader.yaml")

// Config is the configuration of the addon loader daemon.
type Config struct {
	Addons    addon.Config    `yaml:"addons" toml:"addons"`
	Resources ResourcesConfig `yaml:"resources" toml:"resources"`
	Logging   logger.Config   `yaml:"logging" toml:"logging"`
	Events    EventsConfig    `yaml:"events" toml:"events"`
	Journal   JournalConfig   `yaml:"journal" toml:"journal"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	API       APIConfig       `yaml:"api" toml:"api"`
}

// ResourcesConfig locates the directories behind user:// and res://.
type ResourcesConfig struct {
	// ProjectDir backs res:// before any archive is mounted.
	ProjectDir string `yaml:"projectDir" toml:"project_dir"`
	// UserDir backs user://; empty means $XDG_DATA_HOME/addonloader.
	UserDir string `yaml:"userDir" toml:"user_dir"`
}

// EventsConfig selects where AddonLoaded events go besides in-process observers.
type EventsConfig struct {
	Redis    *events.RedisConfig    `yaml:"redis" toml:"redis"`
	RabbitMQ *events.RabbitMQConfig `yaml:"rabbitmq" toml:"rabbitmq"`
}

// JournalConfig selects the outcome journal backend.
type JournalConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Address string `yaml:"address" toml:"address"`
}

// APIConfig controls the read-only status API.
type APIConfig struct {
	Address string `yaml:"address" toml:"address"`
}

// ResolvePath picks the config file: explicit flag, then environment, then default.
func ResolvePath(flag string) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	return DefaultPath
}

// Load parses a YAML (.yaml, .yml) or TOML (.toml) file and applies defaults
// relative to the file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw using the format implied by ext.
func Parse(raw []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default(baseDir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(baseDir)
	return cfg
}

func (c *Config) applyDefaults(baseDir string) {
	c.Addons = c.Addons.WithDefaults()
	if !strings.Contains(c.Addons.AddonsDir, "://") && !filepath.IsAbs(c.Addons.AddonsDir) {
		c.Addons.AddonsDir = filepath.Join(baseDir, c.Addons.AddonsDir)
	}

	if c.Resources.ProjectDir == "" {
		c.Resources.ProjectDir = baseDir
	} else if !filepath.IsAbs(c.Resources.ProjectDir) {
		c.Resources.ProjectDir = filepath.Join(baseDir, c.Resources.ProjectDir)
	}
	if c.Resources.UserDir != "" && !filepath.IsAbs(c.Resources.UserDir) {
		c.Resources.UserDir = filepath.Join(baseDir, c.Resources.UserDir)
	}

	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if err := c.Addons.Validate(); err != nil {
		return fmt.Errorf("addons: %w", err)
	}
	switch c.Journal.Driver {
	case "memory", "none":
	case "mysql":
		if strings.TrimSpace(c.Journal.DSN) == "" {
			return errors.New("journal: mysql driver requires a dsn")
		}
	default:
		return fmt.Errorf("journal: unknown driver %q", c.Journal.Driver)
	}
	if c.Events.Redis != nil && c.Events.Redis.Address == "" {
		return errors.New("events.redis: address cannot be empty")
	}
	if c.Events.RabbitMQ != nil && c.Events.RabbitMQ.URL == "" {
		return errors.New("events.rabbitmq: url cannot be empty")
	}
	return nil
}

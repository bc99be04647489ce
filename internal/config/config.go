package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultActiveCap       = 3
	DefaultNextActionMax   = 140
	DefaultReviewStaleDays = 7
)

// Config models pcengine.yml.
type Config struct {
	Lifecycle Lifecycle       `yaml:"lifecycle"`
	Database  Database        `yaml:"database"`
	Server    Server          `yaml:"server"`
	GitHub    GitHub          `yaml:"github"`
	Redis     Redis           `yaml:"redis"`
	Log       Log             `yaml:"log"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
}

type Lifecycle struct {
	ActiveCap       int    `yaml:"active_cap"`
	NextActionMax   int    `yaml:"next_action_max"`
	ReviewStaleDays int    `yaml:"review_stale_days"`
	DefaultStatus   string `yaml:"default_status"`
}

type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Server struct {
	Addr      string `yaml:"addr"`
	BasePath  string `yaml:"base_path"`
	JWTSecret string `yaml:"jwt_secret"`
}

type GitHub struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	APIBaseURL   string `yaml:"api_base_url"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pce init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Lifecycle.ActiveCap < 1 {
		return fmt.Errorf("config.lifecycle.active_cap must be at least 1")
	}
	if c.Lifecycle.NextActionMax < 1 {
		return fmt.Errorf("config.lifecycle.next_action_max must be at least 1")
	}
	if c.Lifecycle.ReviewStaleDays < 1 {
		return fmt.Errorf("config.lifecycle.review_stale_days must be at least 1")
	}
	switch c.Lifecycle.DefaultStatus {
	case "active", "frozen":
	default:
		return fmt.Errorf("config.lifecycle.default_status must be active or frozen")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres")
	}
	if c.Database.Driver == "postgres" && strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config.database.dsn is required for postgres")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// GitHubEnabled reports whether the OAuth flow has credentials.
func (c *Config) GitHubEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pcengine.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// sections keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `lifecycle:
  active_cap: 3
  next_action_max: 140
  review_stale_days: 7
  default_status: active

database:
  driver: sqlite
  dsn: ""

server:
  addr: 127.0.0.1:8080
  base_path: /v1

github:
  client_id: ""
  client_secret: ""
  redirect_url: http://127.0.0.1:8080/v1/github/callback
  api_base_url: ""

redis:
  addr: ""
  db: 0

log:
  level: info
  format: json

webhooks: []
`

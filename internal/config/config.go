package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml values like "2h" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config models taskpilot.yml.
type Config struct {
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`
	Database struct {
		Workspace string `yaml:"workspace"`
	} `yaml:"database"`
	Recommender struct {
		URL     string   `yaml:"url"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"recommender"`
	Scheduler struct {
		Interval            Duration `yaml:"interval"`
		Window              Duration `yaml:"window"`
		EscalationThreshold Duration `yaml:"escalation_threshold"`
		Dedup               bool     `yaml:"dedup"`
	} `yaml:"scheduler"`
	Server struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with taskpilot config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure and fills defaults
// for optional timings.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("config.telegram.token is required")
	}
	if c.Recommender.Timeout < 0 {
		return fmt.Errorf("config.recommender.timeout must not be negative")
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = Duration(time.Hour)
	}
	if c.Scheduler.Interval.Std() < time.Minute {
		return fmt.Errorf("config.scheduler.interval must be at least 1m")
	}
	if c.Scheduler.Window == 0 {
		c.Scheduler.Window = Duration(24 * time.Hour)
	}
	if c.Scheduler.EscalationThreshold == 0 {
		c.Scheduler.EscalationThreshold = Duration(2 * time.Hour)
	}
	if c.Scheduler.EscalationThreshold > c.Scheduler.Window {
		return fmt.Errorf("config.scheduler.escalation_threshold must not exceed the window")
	}
	if c.Server.Addr != "" && c.Server.JWTSecret == "" {
		return fmt.Errorf("config.server.jwt_secret is required when the ops server is enabled")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskpilot.yml")
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML with the given bot token.
func GenerateDefault(token string) string {
	return fmt.Sprintf(defaultTemplate, token)
}

const defaultTemplate = `telegram:
  token: %s

database:
  workspace: .

recommender:
  url: http://localhost:8001
  timeout: 10s

scheduler:
  interval: 1h
  window: 24h
  escalation_threshold: 2h
  dedup: false

server:
  addr: ""
  jwt_secret: ""
`

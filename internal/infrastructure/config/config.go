package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Tool      ToolConfig
	Update    UpdateConfig
	Prompt    PromptConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"32333"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// ToolConfig describes the external command-line tool driven over sessions.
type ToolConfig struct {
	Path         string   `envconfig:"TOOL_PATH" default:"./tool.exe"`
	BaseArgs     []string `envconfig:"TOOL_BASE_ARGS"`
	Stdin        string   `envconfig:"TOOL_STDIN" default:"\n"`
	WorkDir      string   `envconfig:"TOOL_WORKDIR"`
	Env          []string `envconfig:"TOOL_ENV"`
	PTY          bool     `envconfig:"TOOL_PTY" default:"false"`
	MetadataPath string   `envconfig:"TOOL_METADATA_PATH" default:"./tool-metadata.json"`
}

// UpdateConfig holds release feed and record configuration.
type UpdateConfig struct {
	FeedURL    string        `envconfig:"UPDATE_FEED_URL" default:""`
	Asset      string        `envconfig:"UPDATE_ASSET" default:""`
	RecordPath string        `envconfig:"UPDATE_RECORD_PATH" default:"./release.json"`
	Timeout    time.Duration `envconfig:"UPDATE_TIMEOUT" default:"10m"`
	FeedRetry  int           `envconfig:"UPDATE_FEED_RETRY" default:"2"`
}

// PromptConfig selects how token requests are confirmed.
type PromptConfig struct {
	// Mode is one of "console", "approve", "deny".
	Mode    string        `envconfig:"PROMPT_MODE" default:"console"`
	Timeout time.Duration `envconfig:"PROMPT_TIMEOUT" default:"2m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level overrides the mode default: info in production, debug in development.
	Level       string `envconfig:"LOG_LEVEL"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	TokenPerMinute    int  `envconfig:"RATE_LIMIT_TOKEN_PER_MINUTE" default:"6"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "32333",
			Host: "127.0.0.1",
		},
		Tool: ToolConfig{
			Path:         "./tool.exe",
			Stdin:        "\n",
			MetadataPath: "./tool-metadata.json",
		},
		Update: UpdateConfig{
			RecordPath: "./release.json",
			Timeout:    10 * time.Minute,
			FeedRetry:  2,
		},
		Prompt: PromptConfig{
			Mode:    "console",
			Timeout: 2 * time.Minute,
		},
		Logging: LogConfig{
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			TokenPerMinute:    6,
			Enabled:           true,
		},
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Tool.Path == "" {
		errs = append(errs, errors.New("tool path is required"))
	}
	if c.Update.RecordPath == "" {
		errs = append(errs, errors.New("release record path is required"))
	}
	switch c.Prompt.Mode {
	case "console", "approve", "deny":
	default:
		errs = append(errs, fmt.Errorf("unknown prompt mode %q", c.Prompt.Mode))
	}
	if c.Update.FeedRetry < 0 {
		errs = append(errs, errors.New("update feed retry must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

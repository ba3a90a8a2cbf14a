package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the ccx.toml configuration file
type Config struct {
	// GitHub API settings
	GitHub GitHubConfig `toml:"github"`

	// Response cache settings
	Cache CacheConfig `toml:"cache"`

	// Log settings
	Log LogConfig `toml:"log"`

	// Version of the host Claude Code CLI, checked against engines.claude-code
	ClaudeCodeVersion string `toml:"claude_code_version,omitempty"`

	// Link installed extensions into the Claude config directory
	LinkExtensions bool `toml:"link_extensions"`
}

// GitHubConfig holds GitHub API settings
type GitHubConfig struct {
	// Personal access token; GITHUB_TOKEN overrides it
	Token string `toml:"token,omitempty"`

	// REST API base URL (for GitHub Enterprise)
	APIURL string `toml:"api_url"`

	// GraphQL endpoint
	GraphQLURL string `toml:"graphql_url"`

	// Topic searched for extensions
	Topic string `toml:"topic"`

	// Request timeout
	Timeout Duration `toml:"timeout"`
}

// CacheConfig selects and tunes the response cache backend
type CacheConfig struct {
	// memory, file or redis
	Backend string `toml:"backend"`

	// How long a cached response is served without revalidation
	TTL Duration `toml:"ttl"`

	// Redis settings (backend = "redis")
	RedisAddr     string `toml:"redis_addr,omitempty"`
	RedisPassword string `toml:"redis_password,omitempty"`
	RedisDB       int    `toml:"redis_db,omitempty"`
	RedisPrefix   string `toml:"redis_prefix,omitempty"`
}

// LogConfig holds logging settings
type LogConfig struct {
	// debug, info, warn or error; CCX_LOG_LEVEL overrides it
	Level string `toml:"level"`
}

// Duration is a time.Duration stored as a string ("30s") in TOML
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			APIURL:     "https://api.github.com",
			GraphQLURL: "https://api.github.com/graphql",
			Topic:      "claude-code-extension",
			Timeout:    Duration{30 * time.Second},
		},
		Cache: CacheConfig{
			Backend:     "file",
			TTL:         Duration{5 * time.Minute},
			RedisAddr:   "localhost:6379",
			RedisPrefix: "ccx:",
		},
		Log: LogConfig{
			Level: "warn",
		},
		LinkExtensions: true,
	}
}

// LoadConfig loads ccx.toml from ccxDir and applies environment overrides
func LoadConfig(ccxDir string) (*Config, error) {
	configPath := filepath.Join(ccxDir, "ccx.toml")

	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse ccx.toml: %w", err)
		}
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
	if level := os.Getenv("CCX_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

// Save writes ccx.toml to disk
func (c *Config) Save(ccxDir string) error {
	if err := os.MkdirAll(ccxDir, 0700); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(ccxDir, "ccx.toml"), data, 0600)
}

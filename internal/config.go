package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDBPath             = "chatrelay.db"
	defaultAddr               = ":8080"
	defaultCheckpointInterval = 1500 * time.Millisecond
	defaultTitleMaxRunes      = 30
	defaultMaxIterations      = 6
	defaultModel              = "gemini-2.5-flash"
	defaultAPIKeyEnv          = "GEMINI_API_KEY"

	defaultPreamble = "You are a helpful assistant. Answer clearly and concisely. " +
		"Use the available tools when they help answer the question."
	defaultAddendum = "The person you are talking to is {owner}."
)

// DatabaseConfig controls the SQLite store.
type DatabaseConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	GuestCookie     string        `yaml:"guest_cookie"`
	UserHeader      string        `yaml:"user_header"`
}

// RelayConfig controls the streaming relay.
type RelayConfig struct {
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	TitleMaxRunes      int           `yaml:"title_max_runes"`
	Preamble           string        `yaml:"preamble"`
	// Addendum is appended to the preamble; "{owner}" is replaced with
	// a description of the session owner.
	Addendum string `yaml:"addendum"`
}

// EngineConfig selects and configures the response engine.
type EngineConfig struct {
	Provider      string `yaml:"provider"` // "genai" or "echo"
	Model         string `yaml:"model"`
	TitleModel    string `yaml:"title_model"`
	APIKeyEnv     string `yaml:"api_key_env"`
	APIKey        string `yaml:"-"`
	MaxIterations int    `yaml:"max_iterations"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Relay    RelayConfig    `yaml:"relay"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DefaultConfig returns a Config with usable defaults for every section.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Path:         defaultDBPath,
			MaxOpenConns: 1,
		},
		Server: ServerConfig{
			Addr:            defaultAddr,
			ShutdownTimeout: 10 * time.Second,
			GuestCookie:     "chatrelay_guest",
			UserHeader:      "X-User-ID",
		},
		Relay: RelayConfig{
			CheckpointInterval: defaultCheckpointInterval,
			TitleMaxRunes:      defaultTitleMaxRunes,
			Preamble:           defaultPreamble,
			Addendum:           defaultAddendum,
		},
		Engine: EngineConfig{
			Provider:      "genai",
			Model:         defaultModel,
			TitleModel:    defaultModel,
			APIKeyEnv:     defaultAPIKeyEnv,
			MaxIterations: defaultMaxIterations,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Database.Path != "" {
		c.Database.Path = source.Database.Path
	}
	if source.Database.MaxOpenConns > 0 {
		c.Database.MaxOpenConns = source.Database.MaxOpenConns
	}

	if source.Server.Addr != "" {
		c.Server.Addr = source.Server.Addr
	}
	if source.Server.ShutdownTimeout > 0 {
		c.Server.ShutdownTimeout = source.Server.ShutdownTimeout
	}
	if source.Server.GuestCookie != "" {
		c.Server.GuestCookie = source.Server.GuestCookie
	}
	if source.Server.UserHeader != "" {
		c.Server.UserHeader = source.Server.UserHeader
	}

	if source.Relay.CheckpointInterval > 0 {
		c.Relay.CheckpointInterval = source.Relay.CheckpointInterval
	}
	if source.Relay.TitleMaxRunes > 0 {
		c.Relay.TitleMaxRunes = source.Relay.TitleMaxRunes
	}
	if source.Relay.Preamble != "" {
		c.Relay.Preamble = source.Relay.Preamble
	}
	if source.Relay.Addendum != "" {
		c.Relay.Addendum = source.Relay.Addendum
	}

	if source.Engine.Provider != "" {
		c.Engine.Provider = source.Engine.Provider
	}
	if source.Engine.Model != "" {
		c.Engine.Model = source.Engine.Model
	}
	if source.Engine.TitleModel != "" {
		c.Engine.TitleModel = source.Engine.TitleModel
	}
	if source.Engine.APIKeyEnv != "" {
		c.Engine.APIKeyEnv = source.Engine.APIKeyEnv
	}
	if source.Engine.APIKey != "" {
		c.Engine.APIKey = source.Engine.APIKey
	}
	if source.Engine.MaxIterations > 0 {
		c.Engine.MaxIterations = source.Engine.MaxIterations
	}

	if source.Logging.Level != "" {
		c.Logging.Level = source.Logging.Level
	}
	if source.Logging.JSON {
		c.Logging.JSON = true
	}
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CHATRELAY_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CHATRELAY_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if c.Engine.APIKeyEnv != "" {
		if v := os.Getenv(c.Engine.APIKeyEnv); v != "" {
			c.Engine.APIKey = v
		}
	}
}

// LoadConfig reads a YAML config file, merges it with defaults and the
// environment, and returns the result. An empty filename yields defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var loaded Config
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.Merge(&loaded)
	}

	cfg.ApplyEnv()
	return &cfg, nil
}

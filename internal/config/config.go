package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the proxy configuration, loaded from config.yaml with
// TOOLGATE_* environment overrides.
type Config struct {
	Listen     ListenConfig     `mapstructure:"listen"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Hybrid     HybridConfig     `mapstructure:"hybrid"`
	Modify     ModifyConfig     `mapstructure:"modify"`
	Accounting AccountingConfig `mapstructure:"accounting"`
}

// ListenConfig configures the inbound HTTP listener.
type ListenConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// UpstreamConfig configures the OpenAI-compatible backend.
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxConns       int           `mapstructure:"max_conns"` // per-host connection ceiling
}

// ToolsConfig configures the tool-calling engine.
type ToolsConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRounds   int           `mapstructure:"max_rounds"`
	CallTimeout time.Duration `mapstructure:"call_timeout"` // per tool invocation
	Priority    string        `mapstructure:"priority"`     // "proxy" or "client"
	ServersFile string        `mapstructure:"servers_file"` // provider config, empty for default
}

// HybridConfig configures hybrid streaming: batch tool calling followed by a
// synthetic stream of the final answer.
type HybridConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	ChunkSize  int           `mapstructure:"chunk_size"`  // characters per chunk
	ChunkDelay time.Duration `mapstructure:"chunk_delay"` // cosmetic inter-chunk delay
}

// ModifyConfig globally enables request and response modification.
type ModifyConfig struct {
	Request  bool `mapstructure:"request"`
	Response bool `mapstructure:"response"`
}

// AccountingConfig configures the per-request SQLite accounting store.
type AccountingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // empty for default
}

// Tool priority modes.
const (
	PriorityProxy  = "proxy"
	PriorityClient = "client"
)

// GetConfigDir returns the directory config.yaml is looked up in.
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "toolgate"), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	// Set defaults
	viper.SetDefault("listen.host", "0.0.0.0")
	viper.SetDefault("listen.port", 8000)
	viper.SetDefault("upstream.base_url", "http://localhost:4000")
	viper.SetDefault("upstream.request_timeout", 5*time.Minute)
	viper.SetDefault("upstream.max_conns", 100)
	viper.SetDefault("tools.enabled", true)
	viper.SetDefault("tools.max_rounds", 5)
	viper.SetDefault("tools.call_timeout", 30*time.Second)
	viper.SetDefault("tools.priority", PriorityProxy)
	viper.SetDefault("hybrid.enabled", false)
	viper.SetDefault("hybrid.chunk_size", 30)
	viper.SetDefault("hybrid.chunk_delay", 20*time.Millisecond)
	viper.SetDefault("modify.request", true)
	viper.SetDefault("modify.response", true)
	viper.SetDefault("accounting.enabled", true)

	// Environment overrides: TOOLGATE_UPSTREAM_BASE_URL etc.
	viper.SetEnvPrefix("toolgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (optional - won't error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Tools.Priority != PriorityProxy && c.Tools.Priority != PriorityClient {
		return fmt.Errorf("invalid tools.priority %q (must be %q or %q)", c.Tools.Priority, PriorityProxy, PriorityClient)
	}
	if c.Tools.MaxRounds < 1 {
		return fmt.Errorf("invalid tools.max_rounds %d (must be >= 1)", c.Tools.MaxRounds)
	}
	if c.Hybrid.ChunkSize < 1 {
		return fmt.Errorf("invalid hybrid.chunk_size %d (must be >= 1)", c.Hybrid.ChunkSize)
	}
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("invalid listen.port %d (must be 1-65535)", c.Listen.Port)
	}
	return nil
}

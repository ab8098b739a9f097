// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/todochat/internal/stream"
)

// Config holds all configuration values for todochat.
type Config struct {
	APIBase             string `mapstructure:"api_base" yaml:"api_base"`
	LogLevel            string `mapstructure:"log_level" yaml:"log_level"`
	LogFile             string `mapstructure:"log_file" yaml:"log_file"`
	DataDir             string `mapstructure:"data_dir" yaml:"data_dir"`
	MaxRetries          int    `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelayMs        int    `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	MaxRetryDelayMs     int    `mapstructure:"max_retry_delay_ms" yaml:"max_retry_delay_ms"`
	ConnectionTimeoutMs int    `mapstructure:"connection_timeout_ms" yaml:"connection_timeout_ms"`
	StaleAborts         bool   `mapstructure:"stale_aborts" yaml:"stale_aborts"`
	Markdown            bool   `mapstructure:"markdown" yaml:"markdown"`
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("todochat")

	defaults := stream.DefaultConfig()
	v.SetDefault("api_base", "http://localhost:3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("retry_delay_ms", int(defaults.InitialRetryDelay/time.Millisecond))
	v.SetDefault("max_retry_delay_ms", int(defaults.MaxRetryDelay/time.Millisecond))
	v.SetDefault("connection_timeout_ms", int(defaults.ConnectionTimeout/time.Millisecond))
	v.SetDefault("stale_aborts", false)
	v.SetDefault("markdown", true)

	// Setup ENV binding with TODOCHAT_ prefix
	v.SetEnvPrefix("TODOCHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for better bool/int parsing
	for _, key := range []string{
		"api_base", "log_level", "log_file", "data_dir",
		"max_retries", "retry_delay_ms", "max_retry_delay_ms",
		"connection_timeout_ms", "stale_aborts", "markdown",
	} {
		if err := v.BindEnv(key, "TODOCHAT_"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	// Load global config first (if exists)
	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	// Merge project config on top (if exists)
	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	if c.APIBase == "" {
		return fmt.Errorf("api_base is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.RetryDelayMs <= 0 {
		return fmt.Errorf("retry_delay_ms must be positive")
	}
	if c.MaxRetryDelayMs < c.RetryDelayMs {
		return fmt.Errorf("max_retry_delay_ms must be >= retry_delay_ms")
	}
	return nil
}

// StreamConfig converts the retry settings into a stream.Config.
func (c *Config) StreamConfig() stream.Config {
	return stream.Config{
		MaxRetries:        c.MaxRetries,
		InitialRetryDelay: time.Duration(c.RetryDelayMs) * time.Millisecond,
		MaxRetryDelay:     time.Duration(c.MaxRetryDelayMs) * time.Millisecond,
		ConnectionTimeout: time.Duration(c.ConnectionTimeoutMs) * time.Millisecond,
		StaleAborts:       c.StaleAborts,
	}
}

// SessionPath returns the saved auth session location inside the data dir.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

// HistoryDir returns the conversation history store location.
func (c *Config) HistoryDir() string {
	return filepath.Join(c.DataDir, "history")
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/todochat/todochat.yml or $XDG_CONFIG_HOME/todochat/todochat.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "todochat", "todochat.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "todochat", "todochat.yml")
}

// ProjectPath returns the project-local config path.
// Returns ./todochat.yml in the current working directory.
func ProjectPath() string {
	return "todochat.yml"
}

// DefaultDataDir returns ~/.local/share/todochat, honoring XDG_DATA_HOME.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "todochat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "todochat")
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	path := ProjectPath()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

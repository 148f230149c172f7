package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/smartscript/pkg/templating"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	ServerAddr                string            `json:"server_addr" yaml:"server_addr"`
	ApiAddr                   string            `json:"api_addr" yaml:"api_addr"`
	LogLevel                  string            `json:"log_level" yaml:"log_level"`
	DocumentRoot              string            `json:"document_root" yaml:"document_root"`
	DatabasePath              string            `json:"database_path" yaml:"database_path"`
	CookieName                string            `json:"cookie_name" yaml:"cookie_name"`
	SessionTimeoutSec         int               `json:"session_timeout_sec" yaml:"session_timeout_sec"`
	SessionCleanupIntervalSec int               `json:"session_cleanup_interval_sec" yaml:"session_cleanup_interval_sec"`
	DefaultMimeType           string            `json:"default_mime_type" yaml:"default_mime_type"`
	MaxDispatchDepth          int               `json:"max_dispatch_depth" yaml:"max_dispatch_depth"`
	Headers                   map[string]string `json:"headers" yaml:"headers"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig              `json:"server_config" yaml:"server_config"`
	Templates *templating.TemplateConfig `json:"template_config" yaml:"template_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:                ":5721",
		ApiAddr:                   ":5722",
		LogLevel:                  "info",
		DocumentRoot:              "./webroot",
		DatabasePath:              "./data/smartscript.db",
		CookieName:                "sid",
		SessionTimeoutSec:         600,
		SessionCleanupIntervalSec: 300,
		DefaultMimeType:           "text/html",
		MaxDispatchDepth:          8,
		Headers: map[string]string{
			"Cache-Control": "no-store",
		},
	}
}

// DefaultConfig returns a Config with every section at its defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Templates: templating.DefaultConfig(),
	}
}

// SessionTimeout is the configured session validity as a duration.
func (c *ServerConfig) SessionTimeout() time.Duration {
	if c.SessionTimeoutSec <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.SessionTimeoutSec) * time.Second
}

// CleanupInterval is the configured interval between expired session sweeps.
func (c *ServerConfig) CleanupInterval() time.Duration {
	if c.SessionCleanupIntervalSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SessionCleanupIntervalSec) * time.Second
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func marshalConfig(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

func unmarshalConfig(path string, data []byte, config *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, config)
	}
	return json.Unmarshal(data, config)
}

// LoadConfig reads the configuration from a JSON or YAML file at the given
// path, chosen by extension. If the file doesn't exist, it creates one with
// default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = marshalConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = unmarshalConfig(path, file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Templates == nil {
		config.Templates = templating.DefaultConfig()
	}
	return config, nil
}

// ConfigManager handles thread-safe access to the configuration and pushes
// template settings to the template manager.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
	tm         *templating.TemplateManager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{
		config:     cfg,
		configPath: path,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *templating.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
}

func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.logger = logger
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Server returns a copy of the current server section.
func (cm *ConfigManager) Server() ServerConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config.Server
}

// Update validates and applies a new configuration, then saves it to disk.
// The template section is applied to the template manager first and rolled
// back if it is rejected or the scripts no longer load.
func (cm *ConfigManager) Update(newConfig Config) error {
	if newConfig.Server == nil {
		return fmt.Errorf("server_config is required")
	}
	if newConfig.Templates == nil {
		newConfig.Templates = templating.DefaultConfig()
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tm != nil {
		old := cm.config.Templates
		if err := cm.tm.SetConfig(newConfig.Templates); err != nil {
			return fmt.Errorf("template configuration rejected: %w", err)
		}
		if err := cm.tm.Refresh(); err != nil {
			_ = cm.tm.SetConfig(old)
			_ = cm.tm.Refresh()
			return fmt.Errorf("template configuration rejected: %w", err)
		}
	}

	*cm.config = newConfig

	data, err := marshalConfig(cm.configPath, cm.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	cm.logger.Info("Configuration updated", "path", cm.configPath)
	return nil
}

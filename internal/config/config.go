// Package config owns the beamcast configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/beamcast/beamcast/internal/logger"
)

// Capture source selectors.
const (
	SourceX11     = "x11"
	SourceFile    = "file"
	SourcePattern = "pattern"
)

// DefaultFramePath is where the split-process producer and consumer meet.
const DefaultFramePath = "/tmp/beamcast_frame.raw"

// Config is the application configuration.
type Config struct {
	// FPS is the capture rate, bounded to (0, 60].
	FPS float64 `json:"fps" yaml:"fps"`
	// Source selects the capture backend: x11, file or pattern.
	Source string `json:"source" yaml:"source"`
	// FramePath is the raw frame file used by the file source and the
	// capture-only mode.
	FramePath string `json:"frame_path" yaml:"frame_path"`
	// Eco turns on the projector's eco mode at session start.
	Eco bool `json:"eco_mode" yaml:"eco_mode"`
	// IdleIntervalMS is the engine's wait between cycles when no fresh
	// frame arrives. Clamped to the device keep-alive limit.
	IdleIntervalMS int `json:"idle_interval_ms" yaml:"idle_interval_ms"`
	// APIPort serves the status/metrics API when non-zero.
	APIPort int `json:"api_port" yaml:"api_port"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Validate checks the bounds the pipeline depends on.
func (c *Config) Validate() error {
	if c.FPS <= 0 || c.FPS > 60 {
		return fmt.Errorf("fps %v out of range (0, 60]", c.FPS)
	}
	switch c.Source {
	case SourceX11, SourceFile, SourcePattern:
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	if c.Source == SourceFile && c.FramePath == "" {
		return fmt.Errorf("file source requires frame_path")
	}
	if c.IdleIntervalMS < 0 || c.IdleIntervalMS > 2000 {
		return fmt.Errorf("idle_interval_ms %d out of range [0, 2000]", c.IdleIntervalMS)
	}
	return nil
}

// Manager handles loading and saving the configuration file.
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager loads the configuration, creating the file with defaults when
// it does not exist yet. An empty configFile selects the default path under
// the user config directory.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir := filepath.Join(homeDir, ".config", "beamcast")
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		actualConfigPath = filepath.Join(configDir, "config.yaml")
	}

	m := &Manager{configPath: actualConfigPath}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("config file not found, creating defaults")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := m.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Float64("fps", m.config.FPS).
		Str("source", m.config.Source).
		Msg("config loaded")
	return m, nil
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		FPS:            10,
		Source:         SourceX11,
		FramePath:      DefaultFramePath,
		Eco:            false,
		IdleIntervalMS: 100,
		APIPort:        0,
		LogLevel:       "info",
	}
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// Set replaces the configuration after validation.
func (m *Manager) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Path returns the configuration file location.
func (m *Manager) Path() string {
	return m.configPath
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	m.config = cfg
	return nil
}

// Package config provides configuration management for the tunnel client.
// It handles loading, saving, and validating application settings and
// tunnel profiles.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nymtech/nym-vpn-client-sub000/common"
)

// Settings represents the application configuration.
// All settings are persisted to a YAML file in the user's config directory.
type Settings struct {
	// LogLevel is one of "debug", "info", "warn" or "error".
	LogLevel string `yaml:"log_level"`
	// LogToFile also writes logs to the config directory.
	LogToFile bool `yaml:"log_to_file"`
	// EngineSocket is the unix socket of the native engine.
	EngineSocket string `yaml:"engine_socket"`
	// InterfaceName is the name given to the tunnel interface.
	InterfaceName string `yaml:"interface_name"`
	// MTU is used for profiles that do not set their own.
	MTU int `yaml:"mtu"`
	// AckTimeout bounds how long the CLI waits for the engine to confirm
	// a start or stop.
	AckTimeout time.Duration `yaml:"ack_timeout"`
	// StatisticsInterval is the connection timer period.
	StatisticsInterval time.Duration `yaml:"statistics_interval"`
}

// DefaultSettings returns the default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel:           "info",
		LogToFile:          false,
		EngineSocket:       common.DefaultSocketPath(),
		InterfaceName:      common.DefaultInterfaceName,
		MTU:                common.DefaultMTU,
		AckTimeout:         common.AckTimeout,
		StatisticsInterval: common.StatisticsInterval,
	}
}

// Load loads the settings from the default settings file.
// If the file doesn't exist, it creates one with default values.
func Load() (*Settings, error) {
	path, err := settingsPath()
	if err != nil {
		return nil, err
	}

	if !common.FileExists(path) {
		s := DefaultSettings()
		if err := s.Save(path); err != nil {
			return s, err
		}
		return s, nil
	}

	return LoadFrom(path)
}

// LoadFrom reads settings from path. Missing keys keep their defaults.
func LoadFrom(path string) (*Settings, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConfigLoad, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields

	s := DefaultSettings()
	if err := decoder.Decode(s); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", common.ErrConfigLoad, path, err)
	}

	s.validate()
	return s, nil
}

// validate replaces out-of-range values with their defaults.
func (s *Settings) validate() {
	def := DefaultSettings()

	switch s.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		s.LogLevel = def.LogLevel
	}
	if s.EngineSocket == "" {
		s.EngineSocket = def.EngineSocket
	}
	if s.InterfaceName == "" || len(s.InterfaceName) > 15 {
		s.InterfaceName = def.InterfaceName
	}
	if s.MTU < common.MinMTU || s.MTU > common.MaxMTU {
		s.MTU = def.MTU
	}
	if s.AckTimeout <= 0 {
		s.AckTimeout = def.AckTimeout
	}
	if s.StatisticsInterval <= 0 {
		s.StatisticsInterval = def.StatisticsInterval
	}
}

// Save writes the settings to path.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: create config directory: %w", common.ErrConfigSave, err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: serialize: %w", common.ErrConfigSave, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfigSave, err)
	}

	return nil
}

func settingsPath() (string, error) {
	dir, err := common.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, common.SettingsFileName), nil
}

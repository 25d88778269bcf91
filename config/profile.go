package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/tunnel"
)

// LoadProfile reads a tunnel profile from a YAML file and validates it.
//
// Example:
//
//	name: office
//	addresses: ["10.64.0.2/32"]
//	dns: ["10.64.0.1"]
//	include_routes: ["0.0.0.0/0"]
//	exclude_routes: ["192.168.0.0/16"]
func LoadProfile(path string) (*tunnel.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConfigLoad, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var cfg tunnel.Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", common.ErrConfigLoad, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", filepath.Base(path), err)
	}
	return &cfg, nil
}

package fencerun

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the optional on-disk configuration. It supplies defaults the
// command line can extend or override; command-line rules are applied after
// config rules, so a flag reclassifying a configured path wins.
type Config struct {
	// Allow lists paths granted read-write access.
	Allow []string `yaml:"allow"`

	// Read lists paths granted read-only access.
	Read []string `yaml:"read"`

	// Deny lists paths hidden from the confined process.
	Deny []string `yaml:"deny"`

	// Backend names the preferred backend ("auto", "seatbelt", "bwrap",
	// "docker"). Empty means auto.
	Backend string `yaml:"backend"`

	// Image is the container image for the docker backend.
	Image string `yaml:"image"`

	// SafeHome enables safe mode by default.
	SafeHome bool `yaml:"safe_home"`
}

// DefaultConfigPath returns the per-user config location,
// $XDG_CONFIG_HOME/fencerun/config.yaml or its platform equivalent.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fencerun", "config.yaml"), nil
}

// LoadConfig reads and parses the config file at path. A missing file is not
// an error when path is the default location: the zero Config is returned.
// An explicitly named file must exist.
func LoadConfig(path string, explicit bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyTo classifies the config's path rules into rs, in category order:
// allow, read, deny. Later CLI rules can still reclassify any of them.
func (c *Config) ApplyTo(rs *RuleSet) error {
	for _, p := range c.Allow {
		if err := rs.Add(p, ReadWrite); err != nil {
			return err
		}
	}
	for _, p := range c.Read {
		if err := rs.Add(p, ReadOnly); err != nil {
			return err
		}
	}
	for _, p := range c.Deny {
		if err := rs.Add(p, Deny); err != nil {
			return err
		}
	}
	return nil
}

// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the layered TOML configuration: system, then
// global (~/.strata.toml), then the repository's .strata/config.toml,
// later layers overriding earlier ones.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	ENV_STRATA_CONFIG_SYSTEM = "STRATA_CONFIG_SYSTEM"

	globalConfigName = ".strata.toml"
	repoConfigName   = "config.toml"
)

var (
	ErrKeyNotFound = errors.New("key not found")
)

type User struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

type Core struct {
	// EOL is none, input or input-output.
	EOL string `toml:"eol,omitempty"`
	// ConflictMarkerStyle is diff, snapshot or git.
	ConflictMarkerStyle string `toml:"conflict-marker-style,omitempty"`
}

type Snapshot struct {
	// MaxNewFileSize caps files the snapshotter auto-tracks; 0 means
	// unlimited.
	MaxNewFileSize int64 `toml:"max-new-file-size,omitempty"`
}

type FixTool struct {
	Command  []string `toml:"command"`
	Patterns []string `toml:"patterns,omitempty"`
}

type Config struct {
	User     User               `toml:"user,omitempty"`
	Core     Core               `toml:"core,omitempty"`
	Snapshot Snapshot           `toml:"snapshot,omitempty"`
	Fix      map[string]FixTool `toml:"fix,omitempty"`
}

func configSystemPath() string {
	if p, ok := os.LookupEnv(ENV_STRATA_CONFIG_SYSTEM); ok {
		return p
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	prefix := filepath.Dir(exe)
	if filepath.Base(prefix) == "bin" {
		prefix = filepath.Dir(prefix)
	}
	return filepath.Join(prefix, "etc/strata.toml")
}

func loadFile(path string) (*Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadSystem() (*Config, error) {
	p := configSystemPath()
	if len(p) == 0 {
		return nil, os.ErrNotExist
	}
	return loadFile(p)
}

func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return &Config{}, nil
	}
	cfg, err := loadFile(filepath.Join(home, globalConfigName))
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return cfg, err
}

// Load resolves the effective configuration for a repository at
// strataDir (pass "" outside a repository).
func Load(strataDir string) (*Config, error) {
	merged := &Config{}
	if sys, err := LoadSystem(); err == nil {
		merged.overlay(sys)
	}
	global, err := LoadGlobal()
	if err != nil {
		return nil, err
	}
	merged.overlay(global)
	if strataDir != "" {
		local, err := loadFile(filepath.Join(strataDir, repoConfigName))
		if err == nil {
			merged.overlay(local)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return merged, nil
}

// overlay copies the set fields of other over c.
func (c *Config) overlay(other *Config) {
	if other == nil {
		return
	}
	if other.User.Name != "" {
		c.User.Name = other.User.Name
	}
	if other.User.Email != "" {
		c.User.Email = other.User.Email
	}
	if other.Core.EOL != "" {
		c.Core.EOL = other.Core.EOL
	}
	if other.Core.ConflictMarkerStyle != "" {
		c.Core.ConflictMarkerStyle = other.Core.ConflictMarkerStyle
	}
	if other.Snapshot.MaxNewFileSize != 0 {
		c.Snapshot.MaxNewFileSize = other.Snapshot.MaxNewFileSize
	}
	if len(other.Fix) != 0 {
		if c.Fix == nil {
			c.Fix = make(map[string]FixTool)
		}
		for name, tool := range other.Fix {
			c.Fix[name] = tool
		}
	}
}

// Save writes a repository-level config.
func (c *Config) Save(strataDir string) error {
	f, err := os.Create(filepath.Join(strataDir, repoConfigName))
	if err != nil {
		return err
	}
	defer f.Close() // nolint
	return toml.NewEncoder(f).Encode(c)
}

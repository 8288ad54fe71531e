/*
Copyright (C) 2025  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package config loads and validates the daemon's single TOML
// configuration document. A malformed document or a missing required
// key is a ConfigInvalid error: the daemon refuses to start rather than
// run with guessed defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"
)

// Config is the validated, typed form of the TOML document described
// in the external-interfaces contract. Only the keys the core actually
// consumes are modeled here.
type Config struct {
	Paths  PathsConfig  `toml:"paths"`
	Syncd  SyncdConfig  `toml:"syncd"`
	Sync   SyncConfig   `toml:"sync"`
	Relay  RelayConfig  `toml:"relay"`
	Logger LoggerConfig `toml:"log"`
}

type PathsConfig struct {
	ContentDir string `toml:"content_dir"`
}

type SyncdConfig struct {
	URL              string `toml:"url"`
	DeviceID         string `toml:"device_id"`
	DatabasePath     string `toml:"database_path"`
	EncryptionKeyRef string `toml:"encryption_key_ref"`
	DeviceKeyRef     string `toml:"device_key_ref"`
}

type SyncConfig struct {
	IntervalSeconds  int      `toml:"interval_seconds"`
	MaxFileSize      string   `toml:"max_file_size"`
	ExcludePatterns  []string `toml:"exclude_patterns"`
	maxFileSizeBytes int64
}

// RelayConfig is consumed only by cmd/lstrelay, not by the device
// daemon, but lives in the same document shape for a single-binary
// deployment that serves both roles from one config file.
type RelayConfig struct {
	ListenAddr          string `toml:"listen_addr"`
	Backend             string `toml:"backend"`
	DSN                 string `toml:"dsn"`
	ArchiveBackend      string `toml:"archive_backend"`
	ArchiveDir          string `toml:"archive_dir"`
	CompactionThreshold int    `toml:"compaction_threshold"`
}

type LoggerConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// MaxFileSizeBytes returns sync.max_file_size parsed via go-units
// (accepts "10MB", "512KiB", plain byte counts, ...).
func (s SyncConfig) MaxFileSizeBytes() int64 {
	return s.maxFileSizeBytes
}

// Load reads path, parses it as TOML, fills defaults, expands "~" in
// paths, and validates required keys. Any failure is a ConfigInvalid
// condition: the caller must not start the daemon.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	cfg.Paths.ContentDir, err = expandHome(cfg.Paths.ContentDir)
	if err != nil {
		return nil, fmt.Errorf("config: paths.content_dir: %w", err)
	}
	cfg.Syncd.DatabasePath, err = expandHome(cfg.Syncd.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("config: syncd.database_path: %w", err)
	}

	if cfg.Sync.MaxFileSize != "" {
		parse := units.FromHumanSize // decimal suffixes: "10MB" = 10*1000*1000
		if strings.ContainsAny(cfg.Sync.MaxFileSize, "iI") {
			parse = units.RAMInBytes // binary suffixes: "2MiB" = 2*1024*1024
		}
		n, err := parse(cfg.Sync.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("config: sync.max_file_size: %w", err)
		}
		cfg.Sync.maxFileSizeBytes = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.IntervalSeconds == 0 {
		cfg.Sync.IntervalSeconds = 300
	}
	if cfg.Sync.MaxFileSize == "" {
		cfg.Sync.MaxFileSize = "10MB"
	}
	if cfg.Relay.ListenAddr == "" {
		cfg.Relay.ListenAddr = ":8443"
	}
	if cfg.Relay.Backend == "" {
		cfg.Relay.Backend = "bbolt"
	}
	if cfg.Relay.ArchiveBackend == "" {
		cfg.Relay.ArchiveBackend = "file"
	}
	if cfg.Relay.CompactionThreshold == 0 {
		cfg.Relay.CompactionThreshold = 500
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
}

func (cfg Config) validate() error {
	if cfg.Paths.ContentDir == "" {
		return fmt.Errorf("config: paths.content_dir is required")
	}
	if cfg.Syncd.DatabasePath == "" {
		return fmt.Errorf("config: syncd.database_path is required")
	}
	return nil
}

func expandHome(p string) (string, error) {
	if p == "" || !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand ~: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

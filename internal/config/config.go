// Package config loads the controller's YAML configuration, adapted from
// the teacher's coordinator/cfg.go LoadConfig/DefaultConfig shape.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure (SPEC_FULL.md §12). Every
// field is optional; DefaultConfig supplies the compatibility-contract
// defaults for anything absent from the file.
type Config struct {
	Device DeviceConfig `yaml:"device"`
	Listen ListenConfig `yaml:"listen"`
	Buffer BufferConfig `yaml:"buffer"`
	Log    LogConfig    `yaml:"log"`
	Access AccessConfig `yaml:"access"`
}

// DeviceConfig describes the serial device to open.
type DeviceConfig struct {
	Path   string       `yaml:"path"`
	Baud   int          `yaml:"baud"`
	Reopen ReopenConfig `yaml:"reopen"`
}

// ReopenConfig bounds the reopen-on-disconnect retry loop.
type ReopenConfig struct {
	MaxAttempts uint          `yaml:"max_attempts"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

// ListenConfig describes the TCP listener(s) accepting client connections.
type ListenConfig struct {
	Port int `yaml:"port"`
}

// BufferConfig sizes every endpoint's ring buffers. Capacity must be a
// power of two; datasize.ByteSize lets the file express it as "1KB"
// (decimal suffixes only; "KiB"/"MiB" are not recognized) rather than a
// raw byte count.
type BufferConfig struct {
	Capacity datasize.ByteSize `yaml:"capacity"`
}

// LogConfig selects the logger's minimum level ("debug", "info", "warn",
// "error").
type LogConfig struct {
	Level string `yaml:"level"`
}

// AccessConfig is the optional peer-address allow list; an empty Allow
// permits every address.
type AccessConfig struct {
	Allow []string `yaml:"allow"`
}

// DefaultConfig returns the compatibility-contract defaults (spec.md §6).
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Path: "/dev/arduino",
			Baud: 115200,
			Reopen: ReopenConfig{
				MaxAttempts: 5,
				MaxInterval: 30 * time.Second,
			},
		},
		Listen: ListenConfig{
			Port: 37654,
		},
		Buffer: BufferConfig{
			Capacity: 1 * datasize.KB,
		},
		Log: LogConfig{
			Level: "info",
		},
		Access: AccessConfig{
			Allow: nil,
		},
	}
}

// Load reads and parses the YAML file at path, overlaying it onto
// DefaultConfig. An empty path is not an error: it yields DefaultConfig
// unchanged. A non-empty path that cannot be read or parsed is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

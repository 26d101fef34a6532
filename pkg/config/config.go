// Package config provides configuration management for okbuck.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/okbuck/config.toml)
//  3. Project config (.okbuck/config.toml or okbuck.toml)
//  4. Environment variables (OKBUCK_*)
//  5. CLI flags (highest priority)
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Config is the main configuration struct for okbuck.
type Config struct {
	// State configures where the previous run's entries are recorded.
	State StateConfig `toml:"state"`

	// Descriptor configures the generated build descriptors.
	Descriptor DescriptorConfig `toml:"descriptor"`

	// Cache configures the generator cache.
	Cache CacheConfig `toml:"cache"`

	// Clean configures the stale-descriptor cleanup step.
	Clean CleanConfig `toml:"clean"`
}

// StateConfig holds the record location.
type StateConfig struct {
	// File is the record path, relative to the project root.
	File string `toml:"file"`
}

// DescriptorConfig holds descriptor naming.
type DescriptorConfig struct {
	// FileName is the descriptor's name inside each entry directory.
	FileName string `toml:"file_name"`
}

// CacheConfig holds the cache location.
type CacheConfig struct {
	// Dir is removed on every cleanup run, relative to the project root.
	Dir string `toml:"dir"`
}

// CleanConfig holds cleanup tuning.
type CleanConfig struct {
	// Workers bounds how many descriptors are deleted concurrently.
	Workers int `toml:"workers"`

	// Lock serializes concurrent runs against the same record.
	Lock *bool `toml:"lock"`
}

// Defaults.
const (
	DefaultStateFile      = ".okbuck/state/STATE"
	DefaultDescriptorName = "BUCK"
	DefaultCacheDir       = ".okbuck/cache"
	DefaultWorkers        = 4
)

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	falseVal := false
	return &Config{
		State:      StateConfig{File: DefaultStateFile},
		Descriptor: DescriptorConfig{FileName: DefaultDescriptorName},
		Cache:      CacheConfig{Dir: DefaultCacheDir},
		Clean: CleanConfig{
			Workers: DefaultWorkers,
			Lock:    &falseVal,
		},
	}
}

// LockEnabled reports whether runs should hold the record lock.
func (c *Config) LockEnabled() bool {
	return c.Clean.Lock != nil && *c.Clean.Lock
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.State.File != "" {
		c.State.File = other.State.File
	}
	if other.Descriptor.FileName != "" {
		c.Descriptor.FileName = other.Descriptor.FileName
	}
	if other.Cache.Dir != "" {
		c.Cache.Dir = other.Cache.Dir
	}
	if other.Clean.Workers != 0 {
		c.Clean.Workers = other.Clean.Workers
	}
	if other.Clean.Lock != nil {
		c.Clean.Lock = other.Clean.Lock
	}
}

// Validate checks that every path stays inside the project root and that
// the descriptor name is a bare file name.
func (c *Config) Validate() error {
	var errs []error

	name := c.Descriptor.FileName
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		errs = append(errs, fmt.Errorf("descriptor.file_name %q must be a plain file name", name))
	}
	if !isLocalPath(c.State.File) {
		errs = append(errs, fmt.Errorf("state.file %q must be a relative path inside the project", c.State.File))
	}
	if !isLocalPath(c.Cache.Dir) || filepath.Clean(c.Cache.Dir) == "." {
		errs = append(errs, fmt.Errorf("cache.dir %q must be a relative path inside the project", c.Cache.Dir))
	}
	if c.Clean.Workers < 1 {
		errs = append(errs, fmt.Errorf("clean.workers must be at least 1, got %d", c.Clean.Workers))
	}

	return errors.Join(errs...)
}

func isLocalPath(p string) bool {
	return p != "" && filepath.IsLocal(p)
}

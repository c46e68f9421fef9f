// Package main implements the lumen CLI: it evaluates scripts and modules
// against a fresh engine, with a lumen.toml configuration file and a
// compiled-object cache.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/lumen/engine"
)

// Config represents a lumen.toml configuration file.
type Config struct {
	Engine  EngineConfig `toml:"engine"`
	Modules ModuleConfig `toml:"modules"`
	Cache   CacheConfig  `toml:"cache"`

	// Dir is the directory containing the lumen.toml file (set at load time).
	Dir string `toml:"-"`
}

// EngineConfig tunes the runtime.
type EngineConfig struct {
	MemoryLimit  int      `toml:"memory-limit"`
	GCThreshold  int      `toml:"gc-threshold"`
	MaxStackSize int      `toml:"max-stack-size"`
	Dump         []string `toml:"dump"`
}

// ModuleConfig configures module resolution.
type ModuleConfig struct {
	Paths []string `toml:"paths"`
}

// CacheConfig configures the compiled-object cache.
type CacheConfig struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

// LoadConfig parses lumen.toml from the given directory. A missing file
// yields the zero configuration.
func LoadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, "lumen.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Dir: dir}, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir = dir
	return &c, nil
}

// CachePath resolves the cache database location, defaulting under the
// user's home directory.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return c.Cache.Path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".lumen", "objects.db"), nil
}

var dumpFlagNames = map[string]engine.DumpFlags{
	"free":    engine.DumpFree,
	"leaks":   engine.DumpLeaks,
	"mem":     engine.DumpMem,
	"objects": engine.DumpObjects,
	"atoms":   engine.DumpAtoms,
	"gc":      engine.DumpGC,
	"modules": engine.DumpModuleResolve,
	"jobs":    engine.DumpJobs,
	"read":    engine.DumpRead,
}

// DumpFlags maps the configured dump category names to engine flags.
func (c *Config) DumpFlags() (engine.DumpFlags, error) {
	var flags engine.DumpFlags
	for _, name := range c.Engine.Dump {
		f, ok := dumpFlagNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown dump category %q", name)
		}
		flags |= f
	}
	return flags, nil
}

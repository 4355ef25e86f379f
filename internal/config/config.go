// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"strings"

	"github.com/coral-mesh/dwarfscope/internal/constants"
)

// Config is the dwarfscope configuration file.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Cache   CacheConfig   `yaml:"cache"`
	Locator LocatorConfig `yaml:"locator"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"DWARFSCOPE_LOG_LEVEL" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error,enum=disabled,default=info"`
	Pretty bool   `yaml:"pretty" env:"DWARFSCOPE_LOG_PRETTY" jsonschema:"description=Human-readable console output on stderr,default=true"`
}

// CacheConfig controls how many opened images are kept alive.
type CacheConfig struct {
	MaxImages int `yaml:"max_images" env:"DWARFSCOPE_CACHE_MAX_IMAGES" jsonschema:"description=Opened binaries kept alive between lookups,minimum=1,default=8"`
}

// LocatorConfig tunes definition lookups.
type LocatorConfig struct {
	// CacheSize memoizes lookups per image. Zero disables memoization.
	CacheSize int `yaml:"cache_size" env:"DWARFSCOPE_LOCATOR_CACHE_SIZE" jsonschema:"minimum=0,default=0"`
	// MaxDepth bounds parent chain walks and search recursion.
	MaxDepth int `yaml:"max_depth" env:"DWARFSCOPE_MAX_DEPTH" jsonschema:"minimum=1,default=256"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  constants.DefaultLogLevel,
			Pretty: true,
		},
		Cache: CacheConfig{
			MaxImages: constants.DefaultMaxImages,
		},
		Locator: LocatorConfig{
			MaxDepth: constants.DefaultMaxDepth,
		},
	}
}

var validLevels = map[string]bool{
	"trace":    true,
	"debug":    true,
	"info":     true,
	"warn":     true,
	"error":    true,
	"disabled": true,
}

// Validate checks the config for values the engine cannot work with.
func (c *Config) Validate() error {
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.Cache.MaxImages < 1 {
		return fmt.Errorf("cache.max_images must be at least 1, got %d", c.Cache.MaxImages)
	}
	if c.Locator.CacheSize < 0 {
		return fmt.Errorf("locator.cache_size cannot be negative, got %d", c.Locator.CacheSize)
	}
	if c.Locator.MaxDepth < 1 {
		return fmt.Errorf("locator.max_depth must be at least 1, got %d", c.Locator.MaxDepth)
	}
	return nil
}

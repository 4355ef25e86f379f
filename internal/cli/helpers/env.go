package helpers

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/dwarfscope/internal/config"
	"github.com/coral-mesh/dwarfscope/internal/imagecache"
	"github.com/coral-mesh/dwarfscope/internal/logging"
	"github.com/coral-mesh/dwarfscope/pkg/die"
	"github.com/coral-mesh/dwarfscope/pkg/die/memdie"
	"github.com/coral-mesh/dwarfscope/pkg/lookup"
)

// ErrNoTarget is returned when a command was given neither a binary nor a
// fixture.
var ErrNoTarget = errors.New("no binary or --fixture given")

// Env is what a command needs to inspect its targets: the loaded config,
// the logger built from it and the image cache.
type Env struct {
	Config *config.Config
	Logger zerolog.Logger

	fixtures []string
	cache    *imagecache.Cache
}

// NewEnv loads the config named by opts and builds the logger. Log output
// goes to stderr so that stdout only carries command results.
func NewEnv(opts *GlobalOptions) (*Env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	return &Env{
		Config:   cfg,
		Logger:   logger,
		fixtures: opts.Fixtures,
		cache:    imagecache.New(logger, cfg.Cache.MaxImages),
	}, nil
}

// Close releases every cached image.
func (e *Env) Close() error {
	return e.cache.Close()
}

// LocatorOptions returns the definition locator settings from the config.
func (e *Env) LocatorOptions() []die.LocatorOption {
	return []die.LocatorOption{
		die.WithCache(e.Config.Locator.CacheSize),
		die.WithMaxDepth(e.Config.Locator.MaxDepth),
	}
}

// Open returns the sources to inspect. Fixtures given with --fixture take
// the place of binaries; otherwise every path is opened as an image. The
// returned function releases what was opened.
func (e *Env) Open(ctx context.Context, paths []string) ([]lookup.Source, func() error, error) {
	if len(e.fixtures) > 0 {
		if len(paths) > 0 {
			return nil, nil, fmt.Errorf("binaries %v given together with --fixture", paths)
		}
		sources, err := loadFixtures(e.fixtures)
		if err != nil {
			return nil, nil, err
		}
		return sources, func() error { return nil }, nil
	}

	if len(paths) == 0 {
		return nil, nil, ErrNoTarget
	}
	return lookup.OpenSources(ctx, e.cache, paths)
}

func loadFixtures(paths []string) ([]lookup.Source, error) {
	sources := make([]lookup.Source, 0, len(paths))
	for _, path := range paths {
		info, err := memdie.LoadFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, lookup.Source{Name: path, Info: info})
	}
	return sources, nil
}

// Package imagecache keeps opened images alive across lookups so that the
// same binary is only parsed once per process.
package imagecache

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/dwarfscope/internal/lru"
	"github.com/coral-mesh/dwarfscope/pkg/dwarfimage"
)

// OpenFunc loads an image. It is dwarfimage.Open outside of tests.
type OpenFunc func(path string, logger zerolog.Logger) (*dwarfimage.Image, error)

// Cache maps absolute paths to opened images.
//
// The cache owns one reference to every image it holds. Acquire hands out
// an extra reference that the caller must Release. When more than the
// configured number of images are cached, the least recently acquired one
// loses the cache's reference; it closes as soon as its callers let go.
type Cache struct {
	logger zerolog.Logger
	open   OpenFunc

	mu    sync.Mutex
	slots map[string]*slot
	idle  *lru.Cache[string, *slot]
}

// slot serializes opening of one path.
type slot struct {
	mu  sync.Mutex
	img *dwarfimage.Image
}

// New creates a cache holding at most maxImages images.
func New(logger zerolog.Logger, maxImages int) *Cache {
	return NewWithOpener(logger, maxImages, dwarfimage.Open)
}

// NewWithOpener creates a cache that loads images with open.
func NewWithOpener(logger zerolog.Logger, maxImages int, open OpenFunc) *Cache {
	return &Cache{
		logger: logger.With().Str("component", "image-cache").Logger(),
		open:   open,
		slots:  make(map[string]*slot),
		idle:   lru.New[string, *slot](maxImages),
	}
}

// Acquire returns the image for path, opening it on first use. The
// returned image carries a reference owned by the caller.
func (c *Cache) Acquire(path string) (*dwarfimage.Image, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	for {
		s := c.slotFor(key)

		img, err := c.acquireSlot(key, s)
		if errors.Is(err, dwarfimage.ErrReleased) {
			// Evicted between lookup and retain; start over with a fresh slot.
			c.logger.Debug().Str("binary", key).Msg("Cached image released concurrently, reopening")
			continue
		}
		return img, err
	}
}

func (c *Cache) slotFor(key string) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	return s
}

func (c *Cache) acquireSlot(key string, s *slot) (*dwarfimage.Image, error) {
	s.mu.Lock()
	if s.img == nil && !c.current(key, s) {
		// The slot was evicted while we waited for it.
		s.mu.Unlock()
		return nil, dwarfimage.ErrReleased
	}
	if s.img == nil {
		c.logger.Debug().Str("binary", key).Msg("Image cache miss")
		img, err := c.open(key, c.logger)
		if err != nil {
			s.mu.Unlock()
			c.forget(key, s)
			return nil, err
		}
		s.img = img
	} else {
		c.logger.Debug().Str("binary", key).Msg("Image cache hit")
	}

	img := s.img
	err := img.Retain()
	if err != nil {
		s.img = nil
	}
	s.mu.Unlock()

	if err != nil {
		c.forget(key, s)
		return nil, err
	}

	c.track(key, s)
	return img, nil
}

// track marks s as the most recently used slot, unless it was replaced
// while the caller held it, and drops whatever falls out of the LRU.
func (c *Cache) track(key string, s *slot) {
	c.mu.Lock()
	var evicted []lru.Evicted[string, *slot]
	if c.slots[key] == s {
		evicted = c.idle.Put(key, s)
		for _, ev := range evicted {
			if c.slots[ev.Key] == ev.Value {
				delete(c.slots, ev.Key)
			}
		}
	}
	c.mu.Unlock()

	c.release(evicted)
}

func (c *Cache) current(key string, s *slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[key] == s
}

// forget drops the slot for key if it is still the current one.
func (c *Cache) forget(key string, s *slot) {
	c.mu.Lock()
	if c.slots[key] == s {
		delete(c.slots, key)
	}
	c.mu.Unlock()
}

// release drops the cache's reference to evicted images. The slots must
// already be gone from c.slots.
func (c *Cache) release(evicted []lru.Evicted[string, *slot]) {
	for _, ev := range evicted {
		ev.Value.mu.Lock()
		img := ev.Value.img
		ev.Value.img = nil
		ev.Value.mu.Unlock()

		if img == nil {
			continue
		}
		c.logger.Debug().Str("binary", ev.Key).Msg("Evicting image from cache")
		if err := img.Release(); err != nil && !errors.Is(err, dwarfimage.ErrReleased) {
			c.logger.Warn().Err(err).Str("binary", ev.Key).Msg("Failed to close evicted image")
		}
	}
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	return c.idle.Len()
}

// Close drops the cache's reference to every image. Images still acquired
// by callers stay open until those callers release them.
func (c *Cache) Close() error {
	c.mu.Lock()
	evicted := c.idle.Drain()
	clear(c.slots)
	c.mu.Unlock()

	c.release(evicted)
	return nil
}

package fontrun

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"canvasbridge/engine/internal/doctree"
)

const DefaultCacheSize = 256

// Cache remembers fonts the host has already loaded so repeated rewrites
// across a batch skip the host round trip.
type Cache struct {
	loaded *lru.Cache[string, doctree.FontName]
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	loaded, err := lru.New[string, doctree.FontName](size)
	if err != nil {
		return nil, err
	}
	return &Cache{loaded: loaded}, nil
}

func (c *Cache) Load(ctx context.Context, host doctree.Host, font doctree.FontName) error {
	if c.loaded.Contains(font.Key()) {
		return nil
	}
	if err := host.LoadFont(ctx, font); err != nil {
		return err
	}
	c.loaded.Add(font.Key(), font)
	return nil
}

// Purge forgets every loaded font, e.g. after the host restarted.
func (c *Cache) Purge() {
	c.loaded.Purge()
}

func (c *Cache) Len() int {
	return c.loaded.Len()
}

package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/chai2010/webp"
)

// Fetcher loads the bytes behind an overlay URL
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, ref string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

type cachedImage struct {
	url string
	img image.Image
}

// ImageCache holds decoded overlay images keyed by overlay id. An entry is
// replaced when the overlay's URL changes.
type ImageCache struct {
	fetcher Fetcher

	mu      sync.RWMutex
	entries map[string]cachedImage
}

// NewImageCache creates an empty cache loading through fetcher
func NewImageCache(fetcher Fetcher) *ImageCache {
	return &ImageCache{
		fetcher: fetcher,
		entries: make(map[string]cachedImage),
	}
}

// Lookup returns the cached image for (id, url) without loading it
func (c *ImageCache) Lookup(id, url string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || e.url != url {
		return nil, false
	}
	return e.img, true
}

// Load returns the decoded image for (id, url), fetching it when the entry
// is missing or was cached for a different URL.
func (c *ImageCache) Load(ctx context.Context, id, url string) (image.Image, error) {
	if img, ok := c.Lookup(id, url); ok {
		return img, nil
	}

	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image %s: %w", url, err)
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", url, err)
	}

	c.mu.Lock()
	c.entries[id] = cachedImage{url: url, img: img}
	c.mu.Unlock()

	return img, nil
}

// Evict drops the entry for id
func (c *ImageCache) Evict(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Retain drops every entry whose id is not in keep
func (c *ImageCache) Retain(keep map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if url, ok := keep[id]; !ok || url != e.url {
			delete(c.entries, id)
		}
	}
}

// Len returns the number of cached images
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// DecodeImage decodes png, jpeg, gif or webp data
func DecodeImage(data []byte) (image.Image, error) {
	if isWebP(data) {
		return webp.Decode(bytes.NewReader(data))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

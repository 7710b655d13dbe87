// Package dedupe holds the snapshot deduplication caches: the last emitted
// image fingerprint per recording id, and the memoised fingerprint of a
// fully blank image per size. Pure data structures; the caller decides what
// a fingerprint match means.
package dedupe

import "sync"

// ImageCache maps a recording id to the fingerprint of the last image
// emitted (or determined blank) for that id. Entries persist for the
// session; Purge is the only eviction.
type ImageCache struct {
	mu   sync.Mutex
	last map[int64]string
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{last: make(map[int64]string)}
}

// Last returns the recorded fingerprint for id, if any.
func (c *ImageCache) Last(id int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fp, ok := c.last[id]
	return fp, ok
}

// Record stores fp as the last fingerprint for id.
func (c *ImageCache) Record(id int64, fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[id] = fp
}

// Purge removes all entries.
func (c *ImageCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[int64]string)
}

// Len returns the number of tracked ids.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// Size is the BlankCache key: exact surface dimensions.
type Size struct {
	Width  int
	Height int
}

// BlankCache maps a size to the fingerprint of a fully blank image of that
// size. Populated lazily, at most once per size: blank content is
// deterministic for a given size, so an entry is never rewritten.
type BlankCache struct {
	mu    sync.Mutex
	blank map[Size]string
}

// NewBlankCache creates an empty cache.
func NewBlankCache() *BlankCache {
	return &BlankCache{blank: make(map[Size]string)}
}

// Fingerprint returns the memoised blank fingerprint for size, computing it
// via compute on first use. A compute error is returned without caching, so
// the next call retries.
func (c *BlankCache) Fingerprint(size Size, compute func() (string, error)) (string, error) {
	c.mu.Lock()
	if fp, ok := c.blank[size]; ok {
		c.mu.Unlock()
		return fp, nil
	}
	c.mu.Unlock()

	// Compute outside the lock: the encoder may suspend.
	fp, err := compute()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.blank[size]; ok {
		return existing, nil
	}
	c.blank[size] = fp
	return fp, nil
}

// Purge removes all entries.
func (c *BlankCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blank = make(map[Size]string)
}

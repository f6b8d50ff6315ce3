// Package framecache stores decoded frames for a single clip, keyed by
// source frame number and bounded by the prefetch window. Entries own
// their decoded-image handle until evicted or the cache is cleared.
package framecache

import (
	"image"
	"sort"
	"sync"
)

// CachedFrame is one decoded frame held by the cache. The cache owns the
// image handle exclusively; Release drops it and must be called exactly
// once, by eviction or teardown.
type CachedFrame struct {
	ClipID      string
	FrameNumber int64
	Image       image.Image
	ByteSize    int64
}

// Release drops the decoded-image handle. The frame must not be used
// afterwards.
func (f *CachedFrame) Release() {
	f.Image = nil
	f.ByteSize = 0
}

// Released reports whether the frame's image handle has been dropped.
func (f *CachedFrame) Released() bool {
	return f.Image == nil
}

// Cache is a bounded per-clip frame store. All methods are safe for
// concurrent use; Get is a pure read suitable for every render tick.
type Cache struct {
	mu     sync.RWMutex
	clipID string
	frames map[int64]*CachedFrame
	keys   []int64 // sorted frame numbers, kept in sync with frames
}

// New creates an empty cache for the given clip.
func New(clipID string) *Cache {
	return &Cache{
		clipID: clipID,
		frames: make(map[int64]*CachedFrame),
	}
}

// Put stores a decoded frame, replacing (and releasing) any existing entry
// for the same frame number.
func (c *Cache) Put(frame *CachedFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.frames[frame.FrameNumber]; ok {
		old.Release()
		c.frames[frame.FrameNumber] = frame
		return
	}

	c.frames[frame.FrameNumber] = frame
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] >= frame.FrameNumber })
	c.keys = append(c.keys, 0)
	copy(c.keys[i+1:], c.keys[i:])
	c.keys[i] = frame.FrameNumber
}

// Get returns the cached frame for frameNum, or false if absent. It never
// blocks on decode.
func (c *Cache) Get(frameNum int64) (*CachedFrame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.frames[frameNum]
	return f, ok
}

// Contains reports whether frameNum is cached.
func (c *Cache) Contains(frameNum int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.frames[frameNum]
	return ok
}

// Len returns the number of cached frames.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// ByteSize returns the total decoded bytes held by the cache.
func (c *Cache) ByteSize() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, f := range c.frames {
		total += f.ByteSize
	}
	return total
}

// EvictOutside releases and removes every frame outside [lo, hi],
// returning the number of frames evicted. The sorted key slice bounds the
// scan to the two runs falling outside the window.
func (c *Cache) EvictOutside(lo, hi int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] >= lo })
	end := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] > hi })

	evicted := 0
	for _, k := range c.keys[:start] {
		c.frames[k].Release()
		delete(c.frames, k)
		evicted++
	}
	for _, k := range c.keys[end:] {
		c.frames[k].Release()
		delete(c.frames, k)
		evicted++
	}

	kept := make([]int64, end-start)
	copy(kept, c.keys[start:end])
	c.keys = kept
	return evicted
}

// EvictFarthest releases frames ordered by descending distance from
// center until at most keep frames remain. Used for aggressive eviction
// under memory pressure.
func (c *Cache) EvictFarthest(center int64, keep int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	if len(c.keys) <= keep {
		return 0
	}

	byDistance := make([]int64, len(c.keys))
	copy(byDistance, c.keys)
	sort.Slice(byDistance, func(i, j int) bool {
		return distance(byDistance[i], center) > distance(byDistance[j], center)
	})

	evicted := 0
	for _, k := range byDistance[:len(byDistance)-keep] {
		c.frames[k].Release()
		delete(c.frames, k)
		evicted++
	}
	c.rebuildKeys()
	return evicted
}

// Clear releases every cached frame. The cache remains usable.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.frames {
		f.Release()
	}
	c.frames = make(map[int64]*CachedFrame)
	c.keys = c.keys[:0]
}

func (c *Cache) rebuildKeys() {
	c.keys = c.keys[:0]
	for k := range c.frames {
		c.keys = append(c.keys, k)
	}
	sort.Slice(c.keys, func(i, j int) bool { return c.keys[i] < c.keys[j] })
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

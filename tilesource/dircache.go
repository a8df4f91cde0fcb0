package tilesource

import (
	"sync"

	"github.com/rubedolife/large-image/lim"
)

// minDirCacheSize is the floor on open handles kept for frame-indexed
// sources; the working capacity is three directories per frame when that is
// larger.
const minDirCacheSize = 20

// dirCache is a bounded map from raw backend directory index to an open
// handle.  When a miss would push the cache past capacity the whole map is
// dropped before inserting, trading eviction precision for bounded memory
// and a trivially correct critical section.  Frame access tends to be
// roughly sequential, so wholesale resets stay rare relative to hits.
type dirCache struct {
	mu       sync.Mutex
	capacity int
	open     func(index int) (Handle, error)
	handles  map[int]Handle
}

func newDirCache(frames int, open func(index int) (Handle, error)) *dirCache {
	capacity := 3 * frames
	if capacity < minDirCacheSize {
		capacity = minDirCacheSize
	}
	return &dirCache{
		capacity: capacity,
		open:     open,
		handles:  make(map[int]Handle),
	}
}

// get returns the open handle for a directory index, opening it on a miss.
// The backend open happens outside the lock so nested fetches can never
// deadlock on the cache; concurrent misses for one index may redundantly
// reopen it, which costs time but not correctness.
func (c *dirCache) get(index int) (Handle, error) {
	c.mu.Lock()
	if h, found := c.handles[index]; found {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	h, err := c.open(index)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.handles) >= c.capacity {
		lim.Debugf("directory cache full at %d handles, clearing\n", len(c.handles))
		c.handles = make(map[int]Handle)
	}
	c.handles[index] = h
	return h, nil
}

// size returns the current number of cached handles.
func (c *dirCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

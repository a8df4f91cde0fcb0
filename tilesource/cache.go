package tilesource

import (
	"fmt"

	"github.com/coocood/freecache"

	"github.com/rubedolife/large-image/lim"
)

// tileCache memoizes encoded tile output keyed by tile coordinate.  Only
// byte results are cached; decoded rasters are returned straight to the
// caller.  The cache is safe for concurrent use.
type tileCache struct {
	c *freecache.Cache
}

func newTileCache(capacityBytes int) *tileCache {
	return &tileCache{c: freecache.NewCache(capacityBytes)}
}

func tileCacheKey(x, y, level, frame int) []byte {
	return []byte(fmt.Sprintf("%d/%d/%d/%d", frame, level, x, y))
}

func (tc *tileCache) get(x, y, level, frame int) (*Block, bool) {
	v, err := tc.c.Get(tileCacheKey(x, y, level, frame))
	if err != nil || len(v) < 1 {
		return nil, false
	}
	return &Block{Format: Format(v[0]), Data: v[1:]}, true
}

func (tc *tileCache) put(x, y, level, frame int, b *Block) {
	if b.Data == nil {
		return
	}
	v := make([]byte, 1+len(b.Data))
	v[0] = byte(b.Format)
	copy(v[1:], b.Data)
	if err := tc.c.Set(tileCacheKey(x, y, level, frame), v, 0); err != nil {
		// Entries bigger than the cache allows just aren't memoized.
		lim.Debugf("tile cache set for (%d, %d, %d, %d) skipped: %v\n", x, y, level, frame, err)
	}
}

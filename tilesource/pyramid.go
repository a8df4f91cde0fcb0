package tilesource

import (
	"fmt"
	"math"
	"sort"
)

// pyramid is the immutable level structure deduced at construction.  Levels
// run from 0 (coarsest) to levels-1 (native resolution); a nil handle marks
// an absent level that is served by sparse reconstruction.
type pyramid struct {
	tileWidth  int
	tileHeight int
	sizeX      int
	sizeY      int
	levels     int
	handles    []Handle // indexed by level; nil = absent
	indices    []int    // backend directory index by level; -1 = absent
}

// nearPowerOfTwo reports whether one dimension is within a pixel of the
// other halved some whole number of times.  Odd sizes round either way when
// halved, hence the one pixel slack.
func nearPowerOfTwo(a, b int) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	fa, fb := float64(a), float64(b)
	if fa > fb {
		fa, fb = fb, fa
	}
	for fb > fa+1 {
		fb /= 2
	}
	return math.Abs(fb-fa) <= 1
}

// buildPyramid picks the canonical tile geometry from the catalog and
// assigns each surviving directory to its level.  The entry with the
// largest (tileArea, level, pixelArea) is canonical and fixes the pyramid's
// tile size and native extent.  lastErr is whatever ended enumeration and
// is folded into the failure when nothing usable was found.
func buildPyramid(entries []catalogEntry, lastErr error) (*pyramid, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNotTileSource, lastErr)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.tileArea != b.tileArea {
			return a.tileArea < b.tileArea
		}
		if a.level != b.level {
			return a.level < b.level
		}
		if a.pixelArea != b.pixelArea {
			return a.pixelArea < b.pixelArea
		}
		return a.index < b.index
	})
	canonical := entries[len(entries)-1].handle

	// Keep only directories matching the canonical tiling scheme.  A level
	// whose extent is not a multiple of the tile size must sit near a
	// power of two of the canonical extent, per axis.  Later (larger)
	// entries win when two directories claim the same level.
	byLevel := make(map[int]catalogEntry)
	for _, e := range entries {
		h := e.handle
		if h.TileWidth() != canonical.TileWidth() || h.TileHeight() != canonical.TileHeight() {
			h.Close()
			continue
		}
		if (h.Width()%h.TileWidth() != 0 && !nearPowerOfTwo(h.Width(), canonical.Width())) ||
			(h.Height()%h.TileHeight() != 0 && !nearPowerOfTwo(h.Height(), canonical.Height())) {
			h.Close()
			continue
		}
		if prev, found := byLevel[e.level]; found {
			prev.handle.Close()
		}
		byLevel[e.level] = e
	}
	maxLevel := -1
	for level := range byLevel {
		if level > maxLevel {
			maxLevel = level
		}
	}
	if len(byLevel) == 0 || (len(byLevel) < 2 && maxLevel+1 > 4) {
		for _, e := range byLevel {
			e.handle.Close()
		}
		return nil, ErrNotPyramid
	}

	p := &pyramid{
		tileWidth:  canonical.TileWidth(),
		tileHeight: canonical.TileHeight(),
		sizeX:      canonical.Width(),
		sizeY:      canonical.Height(),
		levels:     maxLevel + 1,
		handles:    make([]Handle, maxLevel+1),
		indices:    make([]int, maxLevel+1),
	}
	for level := range p.indices {
		p.indices[level] = -1
	}
	for level, e := range byLevel {
		p.handles[level] = e.handle
		p.indices[level] = e.index
	}
	return p, nil
}

// close releases every handle the pyramid holds.
func (p *pyramid) close() {
	for _, h := range p.handles {
		if h != nil {
			h.Close()
		}
	}
}

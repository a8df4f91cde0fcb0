package tilesource

import (
	"errors"
	"math"

	"github.com/rubedolife/large-image/lim"
)

// catalogEntry is one tiled raster directory found during enumeration,
// annotated with everything the pyramid builder sorts on.
type catalogEntry struct {
	tileArea  int   // tileWidth * tileHeight
	level     int   // deduced pyramid level
	pixelArea int64 // width * height
	index     int   // backend directory index
	handle    Handle
}

// tileLevel computes the pyramid level of a directory, where 0 holds a
// single tile, 1 up to a 2x2 set of tiles, 2 up to 4x4, and so on.
func tileLevel(width, height, tileWidth, tileHeight int) int {
	ratio := math.Max(float64(width)/float64(tileWidth),
		float64(height)/float64(tileHeight))
	return int(math.Ceil(math.Log(ratio) / math.Ln2))
}

// catalogDirectories enumerates backend directories by increasing index and
// keeps the tiled ones.  Directories that fail tiled validation are routed
// to the onInvalid callback (the associated-image path) and enumeration
// continues; any harder error ends enumeration without invalidating the
// directories already found.  The returned error is the first failure seen,
// kept so a fruitless scan can report why.
func catalogDirectories(be Backend, onInvalid func(index int)) ([]catalogEntry, error) {
	var entries []catalogEntry
	var lastErr error
	for index := 0; ; index++ {
		h, err := be.OpenDirectory(index, true)
		if err != nil {
			if IsValidation(err) {
				lastErr = err
				if onInvalid != nil {
					onInvalid(index)
				}
				continue
			}
			if lastErr == nil {
				lastErr = err
			}
			if !errors.Is(err, ErrEndOfDirectories) {
				lim.Debugf("directory enumeration stopped at index %d: %v\n", index, err)
			}
			break
		}
		if h.TileWidth() <= 0 || h.TileHeight() <= 0 {
			h.Close()
			continue
		}
		level := tileLevel(h.Width(), h.Height(), h.TileWidth(), h.TileHeight())
		if level < 0 {
			// Smaller than half a tile: cannot improve on whatever
			// directory claims level 0.
			h.Close()
			continue
		}
		entries = append(entries, catalogEntry{
			tileArea:  h.TileWidth() * h.TileHeight(),
			level:     level,
			pixelArea: int64(h.Width()) * int64(h.Height()),
			index:     index,
			handle:    h,
		})
	}
	return entries, lastErr
}

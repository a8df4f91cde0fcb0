package tilesource

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/nfnt/resize"

	"github.com/rubedolife/large-image/lim"
)

// reconstruct synthesizes the tile at (x, y, level) for a level with no
// backing directory by compositing the covering block of tiles from the
// nearest populated higher-resolution level and downsampling the result.
// skipSelf starts the walk one level up, for populated levels whose
// directory failed to decode.  Nested fetches may re-enter reconstruction
// for deeper gaps; depth counts those re-entries and is capped at the
// pyramid depth, so pathological pyramids fail instead of recursing without
// bound.
func (s *Source) reconstruct(x, y, level, frame, depth int, skipSelf bool) (image.Image, error) {
	if depth >= s.pyr.levels {
		return nil, IOError{fmt.Errorf("tile reconstruction exceeded pyramid depth %d", s.pyr.levels)}
	}
	z, scale := level, 1
	if skipSelf {
		z, scale = level+1, 2
	}
	for z < s.pyr.levels && s.pyr.handles[z] == nil {
		z++
		scale *= 2
	}
	if z >= s.pyr.levels {
		// The native level is always populated, so this only fires on a
		// broken native directory without fallback room.
		return nil, IOError{fmt.Errorf("no populated level at or above %d", level)}
	}
	lim.Debugf("reconstructing tile (%d, %d) at level %d from level %d (scale %d)\n",
		x, y, level, z, scale)

	tw, th := s.pyr.tileWidth, s.pyr.tileHeight
	canvas := image.NewRGBA(image.Rect(0, 0, tw*scale, th*scale))

	// Tiles past the image extent at level z stay blank rather than being
	// fetched; the (0, 0) sub-tile is always fetched so genuinely
	// out-of-range requests fail instead of yielding an empty tile.
	maxX := math.Exp2(float64(z+1-s.pyr.levels)) * float64(s.pyr.sizeX) / float64(tw)
	maxY := math.Exp2(float64(z+1-s.pyr.levels)) * float64(s.pyr.sizeY) / float64(th)

	for sx := 0; sx < scale; sx++ {
		for sy := 0; sy < scale; sy++ {
			if (sx != 0 || sy != 0) &&
				(float64(x*scale+sx) >= maxX || float64(y*scale+sy) >= maxY) {
				continue
			}
			sub, err := s.fetch(x*scale+sx, y*scale+sy, z, frame, true, depth+1)
			if err != nil {
				return nil, err
			}
			img, err := sub.Decode()
			if err != nil {
				return nil, IOError{err}
			}
			rect := image.Rect(sx*tw, sy*th, (sx+1)*tw, (sy+1)*th)
			draw.Draw(canvas, rect, img, img.Bounds().Min, draw.Src)
		}
	}
	return resize.Resize(uint(tw), uint(th), canvas, resize.Lanczos3), nil
}

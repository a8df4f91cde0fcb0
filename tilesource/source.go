package tilesource

import (
	"fmt"
	"image"
	"math"

	"github.com/rubedolife/large-image/lim"
)

// addressing selects how tile coordinates map to backend directories.  One
// engine serves both variants; the strategy is fixed at construction.
type addressing uint8

const (
	singlePyramid addressing = iota
	frameIndexedPyramid
)

// Options configures optional source behavior.  The zero value is valid.
type Options struct {
	// TileCacheBytes enables memoization of encoded tile output when
	// positive, using roughly this many bytes.
	TileCacheBytes int
}

// Source provides random-access tiles over one multi-resolution image.
// The pyramid structure is built once at construction and is immutable
// afterwards, so concurrent GetTile calls need no external locking.
type Source struct {
	be       Backend
	pyr      *pyramid
	strategy addressing

	// Frame-indexed state; zero/nil for single-pyramid sources.
	frames      int
	levelFrames [][]int
	dcache      *dirCache
	series      *FrameSeries

	tcache     *tileCache
	associated map[string]image.Image
}

// New builds a single-pyramid source over the backend's tiled directories.
// Construction is fail-fast and all-or-nothing: it returns an error wrapping
// ErrNotTileSource when no tiled directories exist and ErrNotPyramid when
// the surviving directories cannot form a usable pyramid.
func New(be Backend, opts *Options) (*Source, error) {
	s := &Source{
		be:         be,
		strategy:   singlePyramid,
		associated: make(map[string]image.Image),
	}
	entries, lastErr := catalogDirectories(be, s.addAssociatedImage)
	pyr, err := buildPyramid(entries, lastErr)
	if err != nil {
		return nil, err
	}
	s.pyr = pyr
	s.setOptions(opts)
	lim.Infof("opened tile source: %d x %d pixels, %d levels, %d x %d tiles\n",
		pyr.sizeX, pyr.sizeY, pyr.levels, pyr.tileWidth, pyr.tileHeight)
	return s, nil
}

// NewFrameIndexed builds a frame-indexed source: the metadata collaborator
// supplies, per resolution, the backend directory used for each frame.
// The frame count must equal channels x time points x z-slices exactly.
func NewFrameIndexed(be Backend, series FrameSeries, opts *Options) (*Source, error) {
	base, err := be.OpenDirectory(0, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotTileSource, err)
	}
	if base.TileWidth() <= 0 || base.TileHeight() <= 0 {
		base.Close()
		return nil, fmt.Errorf("%w: base directory is not tiled", ErrNotTileSource)
	}
	if err := series.validate(); err != nil {
		base.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotTileSource, err)
	}

	levelFrames := series.levelFrames(base.TileWidth(), base.TileHeight())
	levels := len(levelFrames)
	pyr := &pyramid{
		tileWidth:  base.TileWidth(),
		tileHeight: base.TileHeight(),
		sizeX:      base.Width(),
		sizeY:      base.Height(),
		levels:     levels,
		handles:    make([]Handle, levels),
		indices:    make([]int, levels),
	}
	for level := range pyr.indices {
		pyr.indices[level] = -1
	}
	// Each populated level's first frame backs the base pyramid, so
	// frame-less requests never touch the directory cache.
	baseUsed := false
	for level, dirs := range levelFrames {
		if dirs == nil {
			continue
		}
		index := dirs[0]
		var h Handle
		if index == 0 {
			h = base
			baseUsed = true
		} else {
			h, err = be.OpenDirectory(index, true)
			if err != nil {
				pyr.close()
				if !baseUsed {
					base.Close()
				}
				return nil, fmt.Errorf("%w: directory %d for level %d: %v",
					ErrNotTileSource, index, level, err)
			}
		}
		pyr.handles[level] = h
		pyr.indices[level] = index
	}
	if pyr.handles[levels-1] == nil {
		pyr.close()
		if !baseUsed {
			base.Close()
		}
		return nil, fmt.Errorf("%w: native resolution level is not populated", ErrNotPyramid)
	}

	s := &Source{
		be:          be,
		pyr:         pyr,
		strategy:    frameIndexedPyramid,
		frames:      series.frameCount(),
		levelFrames: levelFrames,
		series:      &series,
		associated:  make(map[string]image.Image),
	}
	s.dcache = newDirCache(s.frames, func(index int) (Handle, error) {
		return be.OpenDirectory(index, true)
	})
	s.setOptions(opts)
	lim.Infof("opened frame-indexed tile source: %d frames, %d levels\n", s.frames, levels)
	return s, nil
}

func (s *Source) setOptions(opts *Options) {
	if opts != nil && opts.TileCacheBytes > 0 {
		s.tcache = newTileCache(opts.TileCacheBytes)
	}
}

// TileOptions modifies a single GetTile call.  A nil *TileOptions means
// frame 0, encoded output, sparse fallback permitted.
type TileOptions struct {
	// Frame selects the (channel, time, z-slice) combination for
	// frame-indexed sources.  Frame 0 addresses the base pyramid and is
	// byte-identical to leaving the frame unspecified.
	Frame int

	// AllowImage permits decoded raster output.  Without it, tiles that
	// only exist as decoded rasters (reconstructed levels) are encoded to
	// PNG before being returned.
	AllowImage bool

	// NoSparse fails requests for absent levels with an I/O error instead
	// of reconstructing them.
	NoSparse bool
}

// GetTile returns the tile at column x, row y of the given level.  The
// result always covers exactly tileWidth x tileHeight pixels or the call
// fails with one of the documented error kinds; partial blocks are never
// returned.
func (s *Source) GetTile(x, y, level int, opts *TileOptions) (*Block, error) {
	var o TileOptions
	if opts != nil {
		o = *opts
	}
	if s.tcache != nil {
		if b, found := s.tcache.get(x, y, level, o.Frame); found {
			return b, nil
		}
	}
	b, err := s.fetch(x, y, level, o.Frame, !o.NoSparse, 0)
	if err != nil {
		return nil, err
	}
	if b.Format == FormatImage && !o.AllowImage {
		format, data, err := b.Encode()
		if err != nil {
			return nil, IOError{err}
		}
		b = &Block{Format: format, Data: data}
	}
	if s.tcache != nil && b.Format != FormatImage {
		s.tcache.put(x, y, level, o.Frame, b)
	}
	return b, nil
}

// fetch resolves one tile request.  sparseOK permits reconstruction for
// absent levels and decode failures; depth tracks reconstruction re-entry.
func (s *Source) fetch(x, y, level, frame int, sparseOK bool, depth int) (*Block, error) {
	if level < 0 || level >= s.pyr.levels {
		return nil, ErrLevelNotFound
	}
	if s.strategy == frameIndexedPyramid && frame != 0 {
		if frame < 0 || frame >= s.frames {
			return nil, ErrFrameNotFound
		}
		if level < len(s.levelFrames) && s.levelFrames[level] != nil {
			h, err := s.dcache.get(s.levelFrames[level][frame])
			if err != nil {
				return nil, IOError{err}
			}
			return s.fetchFromHandle(h, x, y, level, frame, sparseOK, depth)
		}
		// This level has no per-frame directories; fall through to the
		// base pyramid, keeping the frame for nested per-frame fetches.
	}

	h := s.pyr.handles[level]
	if h == nil {
		if !sparseOK {
			return nil, IOError{fmt.Errorf("missing z level %d", level)}
		}
		if outside := s.outsideNominal(x, y, level); outside {
			return nil, ErrOutsideLayer
		}
		img, err := s.reconstruct(x, y, level, frame, depth, false)
		if err != nil {
			return nil, err
		}
		return &Block{Format: FormatImage, Image: img}, nil
	}
	return s.fetchFromHandle(h, x, y, level, frame, sparseOK, depth)
}

// fetchFromHandle reads a tile from a populated directory, falling back to
// reconstruction from higher-resolution levels when the read fails and the
// caller permits it.
func (s *Source) fetchFromHandle(h Handle, x, y, level, frame int, sparseOK bool, depth int) (*Block, error) {
	if x < 0 || y < 0 ||
		x*s.pyr.tileWidth >= h.Width() || y*s.pyr.tileHeight >= h.Height() {
		return nil, ErrOutsideLayer
	}
	b, err := h.Tile(x, y)
	if err != nil {
		if sparseOK && level < s.pyr.levels-1 {
			lim.Warningf("tile (%d, %d) at level %d failed to decode, reconstructing: %v\n",
				x, y, level, err)
			img, rerr := s.reconstruct(x, y, level, frame, depth, true)
			if rerr == nil {
				return &Block{Format: FormatImage, Image: img}, nil
			}
		}
		return nil, IOError{err}
	}
	return b, nil
}

// outsideNominal checks tile coordinates against the image extent scaled to
// the given level, for levels with no directory to ask directly.
func (s *Source) outsideNominal(x, y, level int) bool {
	if x < 0 || y < 0 {
		return true
	}
	scale := math.Exp2(float64(level + 1 - s.pyr.levels))
	tilesAcross := int(math.Ceil(scale * float64(s.pyr.sizeX) / float64(s.pyr.tileWidth)))
	tilesDown := int(math.Ceil(scale * float64(s.pyr.sizeY) / float64(s.pyr.tileHeight)))
	return x >= tilesAcross || y >= tilesDown
}

// PreferredLevel returns the closest level at or above the requested one
// that has actual data, clamping out-of-range requests.
func (s *Source) PreferredLevel(level int) int {
	if level < 0 {
		level = 0
	}
	if level > s.pyr.levels-1 {
		level = s.pyr.levels - 1
	}
	for s.pyr.handles[level] == nil && level < s.pyr.levels-1 {
		level++
	}
	return level
}

// Levels returns the pyramid depth.
func (s *Source) Levels() int {
	return s.pyr.levels
}

// TileSize returns the uniform tile width and height.
func (s *Source) TileSize() (int, int) {
	return s.pyr.tileWidth, s.pyr.tileHeight
}

// Frames returns the frame count, or 0 for single-pyramid sources.
func (s *Source) Frames() int {
	return s.frames
}

// Close releases every directory handle the source holds.  Callers must not
// use the source afterwards.
func (s *Source) Close() error {
	s.pyr.close()
	return nil
}

package tilesource

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
)

// memDir is one synthetic raster directory served by memBackend.
type memDir struct {
	width, height int
	tw, th        int
	tiled         bool
	desc          string
	pi            PixelInfo
	embedded      map[string]image.Image
	openErr       error

	// tileColor overrides the default per-directory fill color.
	tileColor func(x, y int) color.RGBA

	// failTiles makes specific tile reads return an I/O error.
	failTiles map[[2]int]bool

	index int
	reads int // tile reads served, for cache tests (single-goroutine use)
}

// memBackend implements Backend over in-memory directories and counts how
// often each one is opened.
type memBackend struct {
	mu    sync.Mutex
	dirs  []*memDir
	opens map[int]int
}

func newMemBackend(dirs ...*memDir) *memBackend {
	for i, d := range dirs {
		d.index = i
	}
	return &memBackend{dirs: dirs, opens: make(map[int]int)}
}

func (b *memBackend) OpenDirectory(index int, mustBeTiled bool) (Handle, error) {
	if index < 0 || index >= len(b.dirs) {
		return nil, ErrEndOfDirectories
	}
	d := b.dirs[index]
	if d.openErr != nil {
		return nil, d.openErr
	}
	if mustBeTiled && !d.tiled {
		return nil, ValidationError{Reason: fmt.Sprintf("directory %d is not tiled", index)}
	}
	if !mustBeTiled && d.tiled {
		return nil, ValidationError{Reason: fmt.Sprintf("directory %d is tiled", index)}
	}
	b.mu.Lock()
	b.opens[index]++
	b.mu.Unlock()
	return &memHandle{d: d}, nil
}

func (b *memBackend) openCount(index int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[index]
}

type memHandle struct {
	d *memDir
}

func (h *memHandle) Width() int      { return h.d.width }
func (h *memHandle) Height() int     { return h.d.height }
func (h *memHandle) TileWidth() int  { return h.d.tw }
func (h *memHandle) TileHeight() int { return h.d.th }

func (h *memHandle) fill(x, y int) color.RGBA {
	if h.d.tileColor != nil {
		return h.d.tileColor(x, y)
	}
	v := uint8((h.d.index*31 + x*7 + y*13) % 251)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

func (h *memHandle) Tile(x, y int) (*Block, error) {
	h.d.reads++
	if h.d.failTiles[[2]int{x, y}] {
		return nil, errors.New("synthetic decode failure")
	}
	img := image.NewRGBA(image.Rect(0, 0, h.d.tw, h.d.th))
	c := h.fill(x, y)
	for py := 0; py < h.d.th; py++ {
		for px := 0; px < h.d.tw; px++ {
			img.SetRGBA(px, py, c)
		}
	}
	return &Block{Format: FormatImage, Image: img}, nil
}

func (h *memHandle) Image() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, h.d.width, h.d.height))
	c := h.fill(0, 0)
	for py := 0; py < h.d.height; py++ {
		for px := 0; px < h.d.width; px++ {
			img.SetRGBA(px, py, c)
		}
	}
	return img, nil
}

func (h *memHandle) Description() string                    { return h.d.desc }
func (h *memHandle) EmbeddedImages() map[string]image.Image { return h.d.embedded }
func (h *memHandle) PixelInfo() PixelInfo                   { return h.d.pi }
func (h *memHandle) Close() error                           { return nil }

// levelDims returns the pixel extent of a pyramid level under exact
// power-of-two downsampling.
func levelDims(sizeX, sizeY, levels, level int) (int, int) {
	div := math.Exp2(float64(levels - 1 - level))
	return int(math.Ceil(float64(sizeX) / div)), int(math.Ceil(float64(sizeY) / div))
}

// pyramidDirs builds one memDir per level of an exact pyramid, skipping the
// levels named in absent.  Directories are appended coarsest first.
func pyramidDirs(sizeX, sizeY, tw, th int, absent map[int]bool) []*memDir {
	levels := tileLevel(sizeX, sizeY, tw, th) + 1
	var dirs []*memDir
	for z := 0; z < levels; z++ {
		if absent[z] {
			continue
		}
		w, h := levelDims(sizeX, sizeY, levels, z)
		dirs = append(dirs, &memDir{width: w, height: h, tw: tw, th: th, tiled: true})
	}
	return dirs
}

// openTestSource builds a single-pyramid source over an exact synthetic
// pyramid with the given absent levels.
func openTestSource(sizeX, sizeY, tw, th int, absent map[int]bool) (*Source, *memBackend, error) {
	be := newMemBackend(pyramidDirs(sizeX, sizeY, tw, th, absent)...)
	s, err := New(be, nil)
	return s, be, err
}

/*
Package tiledir serves tile sources from on-disk directories of prebuilt
raster tiles.  A source root holds a manifest.toml describing each raster
directory (geometry, tile layout, calibration) plus the tile files
themselves, one file per tile named x_y.png or x_y.tif.  Non-tiled entries
point at a single image file and surface as associated-image candidates.
*/
package tiledir

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"golang.org/x/image/tiff"

	"github.com/rubedolife/large-image/lim"
	"github.com/rubedolife/large-image/tilesource"
)

// manifest mirrors manifest.toml.
type manifest struct {
	Directories []directoryEntry `toml:"directory"`
}

// directoryEntry describes one raster directory.  Tiled entries have
// positive tile dimensions and a subdirectory of tile files; non-tiled
// entries point at a single image file.
type directoryEntry struct {
	SizeX         int               `toml:"size_x"`
	SizeY         int               `toml:"size_y"`
	TileWidth     int               `toml:"tile_width"`
	TileHeight    int               `toml:"tile_height"`
	Path          string            `toml:"path"`
	Format        string            `toml:"format"`
	Description   string            `toml:"description"`
	MMX           float64           `toml:"mm_x"`
	MMY           float64           `toml:"mm_y"`
	Magnification float64           `toml:"magnification"`
	Embedded      map[string]string `toml:"embedded"`
}

func (e *directoryEntry) tiled() bool {
	return e.TileWidth > 0 && e.TileHeight > 0
}

// Backend reads raster directories beneath one source root.  It implements
// tilesource.Backend.
type Backend struct {
	root     string
	manifest manifest
}

// Open reads the manifest beneath root.  Tile files are read lazily, so a
// successful Open does not guarantee every tile exists.
func Open(root string) (*Backend, error) {
	b := &Backend{root: root}
	path := filepath.Join(root, "manifest.toml")
	if _, err := toml.DecodeFile(path, &b.manifest); err != nil {
		return nil, fmt.Errorf("cannot read manifest %q: %v", path, err)
	}
	for i, e := range b.manifest.Directories {
		switch e.Format {
		case "", "png", "tif":
		default:
			return nil, fmt.Errorf("directory %d: unsupported tile format %q", i, e.Format)
		}
		if e.Path == "" {
			return nil, fmt.Errorf("directory %d: no path", i)
		}
	}
	lim.Debugf("opened tile directory %q with %d raster directories\n",
		root, len(b.manifest.Directories))
	return b, nil
}

// OpenDirectory implements tilesource.Backend.
func (b *Backend) OpenDirectory(index int, mustBeTiled bool) (tilesource.Handle, error) {
	if index < 0 || index >= len(b.manifest.Directories) {
		return nil, tilesource.ErrEndOfDirectories
	}
	e := &b.manifest.Directories[index]
	if mustBeTiled != e.tiled() {
		role := "not tiled"
		if e.tiled() {
			role = "tiled"
		}
		return nil, tilesource.ValidationError{
			Reason: fmt.Sprintf("directory %d (%s) is %s", index, e.Path, role),
		}
	}
	return &handle{root: b.root, entry: e}, nil
}

// OpenSource opens the root as a single-pyramid tile source.
func OpenSource(root string, opts *tilesource.Options) (*tilesource.Source, error) {
	b, err := Open(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tilesource.ErrNotTileSource, err)
	}
	return tilesource.New(b, opts)
}

// handle serves one manifest entry.  Handles hold no file descriptors;
// every tile read opens its own file.
type handle struct {
	root  string
	entry *directoryEntry
}

func (h *handle) Width() int      { return h.entry.SizeX }
func (h *handle) Height() int     { return h.entry.SizeY }
func (h *handle) TileWidth() int  { return h.entry.TileWidth }
func (h *handle) TileHeight() int { return h.entry.TileHeight }

func (h *handle) format() string {
	if h.entry.Format == "" {
		return "png"
	}
	return h.entry.Format
}

// Tile reads the tile file at column x, row y.  PNG tiles pass through as
// encoded bytes; TIFF tiles are decoded.
func (h *handle) Tile(x, y int) (*tilesource.Block, error) {
	name := filepath.Join(h.root, h.entry.Path, fmt.Sprintf("%d_%d.%s", x, y, h.format()))
	if h.format() == "png" {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("cannot read tile (%d, %d): %v", x, y, err)
		}
		return &tilesource.Block{Format: tilesource.FormatPNG, Data: data}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("cannot read tile (%d, %d): %v", x, y, err)
	}
	defer f.Close()
	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("cannot decode tile (%d, %d): %v", x, y, err)
	}
	return &tilesource.Block{Format: tilesource.FormatImage, Image: img}, nil
}

// Image decodes the whole plane of a non-tiled entry.
func (h *handle) Image() (image.Image, error) {
	if h.entry.tiled() {
		return nil, fmt.Errorf("directory %q is tiled", h.entry.Path)
	}
	return h.decodeFile(h.entry.Path)
}

func (h *handle) decodeFile(rel string) (image.Image, error) {
	f, err := os.Open(filepath.Join(h.root, rel))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if filepath.Ext(rel) == ".tif" {
		return tiff.Decode(f)
	}
	return png.Decode(f)
}

// EmbeddedImages decodes the entry's embedded image files.  Files that fail
// to decode are skipped.
func (h *handle) EmbeddedImages() map[string]image.Image {
	if len(h.entry.Embedded) == 0 {
		return nil
	}
	out := make(map[string]image.Image, len(h.entry.Embedded))
	for key, rel := range h.entry.Embedded {
		img, err := h.decodeFile(rel)
		if err != nil {
			lim.Warningf("cannot decode embedded image %q (%s): %v\n", key, rel, err)
			continue
		}
		out[key] = img
	}
	return out
}

func (h *handle) Description() string { return h.entry.Description }

func (h *handle) PixelInfo() tilesource.PixelInfo {
	return tilesource.PixelInfo{
		MMX:           h.entry.MMX,
		MMY:           h.entry.MMY,
		Magnification: h.entry.Magnification,
	}
}

func (h *handle) Close() error { return nil }

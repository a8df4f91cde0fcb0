/*
	Package tilesource implements random-access tile retrieval over large
	multi-resolution images.  A decode backend exposes a flat list of raster
	directories at varying resolutions; this package assembles them into a
	consistent power-of-two pyramid, maps (x, y, level, frame) tile requests
	to the correct directory and sub-region, synthesizes missing resolution
	levels by downsampling populated ones, and bounds the memory used by
	open per-frame directory handles.
*/
package tilesource

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// Backend is the decode collaborator that exposes raster directories in a
// container file.  Implementations own all container-format specifics; the
// engine only ever addresses directories by index.
type Backend interface {
	// OpenDirectory opens the raster directory at the given index.  When
	// mustBeTiled is true only tiled directories validate, otherwise only
	// non-tiled ones do.  A directory that exists but cannot serve the
	// requested role returns a ValidationError; an index past the last
	// directory returns ErrEndOfDirectories.
	OpenDirectory(index int, mustBeTiled bool) (Handle, error)
}

// Handle is one open raster directory.  The directory itself is owned by
// the backend; the engine holds handles only as cheap references.
type Handle interface {
	Width() int
	Height() int
	TileWidth() int
	TileHeight() int

	// Tile returns the decoded or backend-encoded raster block for the
	// tile at column x, row y of this directory's tile grid.
	Tile(x, y int) (*Block, error)

	// Image decodes the entire directory as a single raster.  Used for
	// small non-tiled directories (associated images).
	Image() (image.Image, error)

	// Description returns the directory's free-text description, if any.
	Description() string

	// EmbeddedImages returns small vendor-specific images stored inside
	// this directory, keyed by role (e.g. "label", "macro").  May be nil.
	EmbeddedImages() map[string]image.Image

	PixelInfo() PixelInfo

	Close() error
}

// PixelInfo carries the physical calibration of a directory.  Zero values
// mean unknown.
type PixelInfo struct {
	MMX           float64 // pixel width in millimeters
	MMY           float64 // pixel height in millimeters
	Magnification float64
}

// Format describes how a Block carries its pixels.
type Format uint8

const (
	// FormatImage means the block holds a decoded in-memory raster.
	FormatImage Format = iota

	// FormatJPEG and FormatPNG mean the block holds encoded bytes passed
	// through from the backend.
	FormatJPEG
	FormatPNG
)

func (f Format) String() string {
	switch f {
	case FormatImage:
		return "raster"
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	default:
		return fmt.Sprintf("format %d", f)
	}
}

// Block is one tile's worth of raster data, either decoded or still in the
// backend's encoded form.
type Block struct {
	Format Format
	Data   []byte      // encoded bytes when Format != FormatImage
	Image  image.Image // decoded raster when Format == FormatImage
}

// Decode returns the block as a decoded raster, decoding encoded bytes if
// necessary.
func (b *Block) Decode() (image.Image, error) {
	switch b.Format {
	case FormatImage:
		return b.Image, nil
	case FormatJPEG:
		return jpeg.Decode(bytes.NewReader(b.Data))
	case FormatPNG:
		return png.Decode(bytes.NewReader(b.Data))
	default:
		return nil, fmt.Errorf("cannot decode block with unknown format %d", b.Format)
	}
}

// Encode returns the block as encoded bytes along with their format.
// Blocks already carrying encoded bytes pass through untouched; decoded
// rasters are encoded as PNG.
func (b *Block) Encode() (Format, []byte, error) {
	if b.Format != FormatImage {
		return b.Format, b.Data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.Image); err != nil {
		return 0, nil, fmt.Errorf("unable to encode tile: %v", err)
	}
	return FormatPNG, buf.Bytes(), nil
}

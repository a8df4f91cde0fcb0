package tilesource

import (
	"errors"
	"fmt"
)

var (
	// ErrEndOfDirectories is returned by a Backend when the requested
	// directory index is past the last directory in the container.
	ErrEndOfDirectories = errors.New("no more raster directories")

	// ErrNotTileSource is the construction failure for containers with no
	// usable tiled directories.
	ErrNotTileSource = errors.New("file does not meet tile-source requirements")

	// ErrNotPyramid is the construction failure for containers whose tiled
	// directories cannot form a usable pyramid.
	ErrNotPyramid = errors.New("tiled image must have at least two levels")

	// ErrLevelNotFound is returned for a tile request outside [0, levels).
	ErrLevelNotFound = errors.New("z layer does not exist")

	// ErrFrameNotFound is returned for a frame index outside [0, frames).
	ErrFrameNotFound = errors.New("frame does not exist")

	// ErrOutsideLayer is returned for tile coordinates beyond the image
	// extent at the requested level.
	ErrOutsideLayer = errors.New("x/y is outside layer")
)

// ValidationError marks a directory that exists but cannot serve the
// requested role, e.g. a non-tiled directory encountered while cataloging
// tiled ones.  Catalog enumeration routes such directories to the
// associated-image extractor instead of aborting.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IOError wraps a backend decode failure on an otherwise valid tile
// request.  Callers permitting sparse fallback may recover from it via
// reconstruction; otherwise it surfaces as an internal failure.
type IOError struct {
	Err error
}

func (e IOError) Error() string {
	return fmt.Sprintf("internal I/O failure: %v", e.Err)
}

func (e IOError) Unwrap() error {
	return e.Err
}

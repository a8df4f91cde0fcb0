package tilesource

import "fmt"

// FrameSeries is supplied by a metadata collaborator for multi-dimensional
// sources.  Each image describes one resolution of the series and lists the
// backend directory index used for each frame at that resolution.  Frames
// are ordered (channel, time, z-slice) combinations; every frame owns its
// own full-resolution directory while levels share geometry across frames.
type FrameSeries struct {
	Channels   int
	TimePoints int
	ZSlices    int

	Images []SeriesImage

	// Physical pixel sizes with their unit symbols, used when the base
	// directory carries no resolution of its own.  Zero means unknown.
	PhysicalX     float64
	PhysicalY     float64
	PhysicalXUnit string
	PhysicalYUnit string
}

// SeriesImage is one resolution of a frame series.
type SeriesImage struct {
	SizeX       int
	SizeY       int
	Directories []int // backend directory index per frame
}

// unitsToMeters converts spelled-out physical units to meters.  Defaults in
// acquisition metadata are micrometers.
var unitsToMeters = map[string]float64{
	"Ym": 1e24, "Zm": 1e21, "Em": 1e18, "Pm": 1e15, "Tm": 1e12,
	"Gm": 1e9, "Mm": 1e6, "km": 1e3, "hm": 1e2, "dam": 1e1,
	"m": 1, "dm": 1e-1, "cm": 1e-2, "mm": 1e-3,
	"µm": 1e-6, "nm": 1e-9, "pm": 1e-12, "fm": 1e-15,
	"am": 1e-18, "zm": 1e-21, "ym": 1e-24,
	"Å": 1e-10,
}

// physicalToMM converts a physical pixel size with its unit symbol to
// millimeters.  An empty unit means micrometers; an unrecognized one yields
// zero (unknown).
func physicalToMM(value float64, unit string) float64 {
	if value == 0 {
		return 0
	}
	if unit == "" {
		unit = "µm"
	}
	meters, found := unitsToMeters[unit]
	if !found {
		return 0
	}
	return value * 1e3 * meters
}

// frameCount returns the number of frames the series describes, taken from
// its full-resolution image.
func (fs *FrameSeries) frameCount() int {
	if len(fs.Images) == 0 {
		return 0
	}
	return len(fs.Images[0].Directories)
}

// validate enforces the construction invariants of a frame series: a
// nonempty full-resolution frame list whose length equals exactly
// channels x time points x z-slices.
func (fs *FrameSeries) validate() error {
	frames := fs.frameCount()
	if frames == 0 {
		return fmt.Errorf("frame series does not describe any frames")
	}
	if fs.Channels*fs.TimePoints*fs.ZSlices != frames {
		return fmt.Errorf("frame count %d does not equal channels x time points x z-slices (%d x %d x %d)",
			frames, fs.Channels, fs.TimePoints, fs.ZSlices)
	}
	return nil
}

// levelFrames maps each pyramid level to its per-frame directory indices.
// Images whose frame list disagrees with the full-resolution one are
// ignored, mirroring how partial sub-resolutions are skipped in acquisition
// metadata.  A nil slice marks a level the series does not describe.
func (fs *FrameSeries) levelFrames(tileWidth, tileHeight int) [][]int {
	frames := fs.frameCount()
	byLevel := make(map[int][]int)
	maxLevel := 0
	for _, img := range fs.Images {
		if len(img.Directories) != frames {
			continue
		}
		level := seriesLevel(img.SizeX, img.SizeY, tileWidth, tileHeight)
		byLevel[level] = img.Directories
		if level > maxLevel {
			maxLevel = level
		}
	}
	out := make([][]int, maxLevel+1)
	for level, dirs := range byLevel {
		out[level] = dirs
	}
	return out
}

// seriesLevel is the clamped level of one series image given the canonical
// tile geometry.
func seriesLevel(sizeX, sizeY, tileWidth, tileHeight int) int {
	level := tileLevel(sizeX, sizeY, tileWidth, tileHeight)
	if level < 0 {
		level = 0
	}
	return level
}

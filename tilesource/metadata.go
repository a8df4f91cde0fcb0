package tilesource

// Metadata summarizes a source for clients building tile requests.
type Metadata struct {
	Levels        int     `json:"levels"`
	SizeX         int     `json:"sizeX"`
	SizeY         int     `json:"sizeY"`
	TileWidth     int     `json:"tileWidth"`
	TileHeight    int     `json:"tileHeight"`
	Magnification float64 `json:"magnification,omitempty"`
	MMX           float64 `json:"mm_x,omitempty"`
	MMY           float64 `json:"mm_y,omitempty"`
	Frames        int     `json:"frames,omitempty"`
}

// Metadata returns the source geometry and calibration.  Pixel sizes come
// from the native-resolution directory, falling back to the frame series'
// physical sizes; magnification falls back to 0.01 / mm_x when the
// container does not record one.
func (s *Source) Metadata() Metadata {
	native := s.pyr.handles[s.pyr.levels-1]
	pi := native.PixelInfo()
	mmx, mmy, mag := pi.MMX, pi.MMY, pi.Magnification
	if s.series != nil {
		if mmx == 0 {
			mmx = physicalToMM(s.series.PhysicalX, s.series.PhysicalXUnit)
		}
		if mmy == 0 {
			mmy = physicalToMM(s.series.PhysicalY, s.series.PhysicalYUnit)
		}
	}
	if mag == 0 && mmx != 0 {
		mag = 0.01 / mmx
	}
	return Metadata{
		Levels:        s.pyr.levels,
		SizeX:         s.pyr.sizeX,
		SizeY:         s.pyr.sizeY,
		TileWidth:     s.pyr.tileWidth,
		TileHeight:    s.pyr.tileHeight,
		Magnification: mag,
		MMX:           mmx,
		MMY:           mmy,
		Frames:        s.frames,
	}
}

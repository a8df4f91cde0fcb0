package tilesource

import (
	"bytes"
	"errors"
	"testing"
)

// seriesBackend builds a 6-frame series over 12 directories: one directory
// per frame at the native 1000 x 1000 resolution (0..5) and one per frame
// at 500 x 500 (6..11).  Level 0 has no directories at all.
func seriesBackend() (*memBackend, FrameSeries) {
	var dirs []*memDir
	for i := 0; i < 6; i++ {
		dirs = append(dirs, &memDir{width: 1000, height: 1000, tw: 256, th: 256, tiled: true})
	}
	for i := 0; i < 6; i++ {
		dirs = append(dirs, &memDir{width: 500, height: 500, tw: 256, th: 256, tiled: true})
	}
	series := FrameSeries{
		Channels:   3,
		TimePoints: 2,
		ZSlices:    1,
		Images: []SeriesImage{
			{SizeX: 1000, SizeY: 1000, Directories: []int{0, 1, 2, 3, 4, 5}},
			{SizeX: 500, SizeY: 500, Directories: []int{6, 7, 8, 9, 10, 11}},
		},
	}
	return newMemBackend(dirs...), series
}

func TestFrameSeriesValidation(t *testing.T) {
	be, series := seriesBackend()
	series.Channels = 2 // 2 x 2 x 1 != 6 frames
	if _, err := NewFrameIndexed(be, series, nil); !errors.Is(err, ErrNotTileSource) {
		t.Fatalf("got %v, want ErrNotTileSource for mismatched frame product", err)
	}
}

func TestFrameOutOfRange(t *testing.T) {
	be, series := seriesBackend()
	s, err := NewFrameIndexed(be, series, nil)
	if err != nil {
		t.Fatalf("NewFrameIndexed failed: %v", err)
	}
	defer s.Close()
	if s.Frames() != 6 {
		t.Fatalf("got %d frames, want 6", s.Frames())
	}
	for _, frame := range []int{6, 100, -1} {
		_, err := s.GetTile(0, 0, 2, &TileOptions{Frame: frame})
		if !errors.Is(err, ErrFrameNotFound) {
			t.Errorf("frame %d: got %v, want ErrFrameNotFound", frame, err)
		}
	}
}

func TestFrameZeroMatchesUnspecified(t *testing.T) {
	be, series := seriesBackend()
	s, err := NewFrameIndexed(be, series, nil)
	if err != nil {
		t.Fatalf("NewFrameIndexed failed: %v", err)
	}
	defer s.Close()
	plain, err := s.GetTile(1, 2, 2, nil)
	if err != nil {
		t.Fatalf("GetTile without options failed: %v", err)
	}
	framed, err := s.GetTile(1, 2, 2, &TileOptions{Frame: 0})
	if err != nil {
		t.Fatalf("GetTile frame 0 failed: %v", err)
	}
	if plain.Format != framed.Format || !bytes.Equal(plain.Data, framed.Data) {
		t.Error("frame 0 output differs from the frame-less request")
	}
}

func TestFrameRoutesToOwnDirectory(t *testing.T) {
	be, series := seriesBackend()
	s, err := NewFrameIndexed(be, series, nil)
	if err != nil {
		t.Fatalf("NewFrameIndexed failed: %v", err)
	}
	defer s.Close()
	base, err := s.GetTile(0, 0, 2, nil)
	if err != nil {
		t.Fatalf("GetTile frame 0 failed: %v", err)
	}
	framed, err := s.GetTile(0, 0, 2, &TileOptions{Frame: 3})
	if err != nil {
		t.Fatalf("GetTile frame 3 failed: %v", err)
	}
	if bytes.Equal(base.Data, framed.Data) {
		t.Error("frame 3 returned the same pixels as frame 0")
	}
	if got := be.openCount(3); got != 1 {
		t.Errorf("directory 3 opened %d times, want 1", got)
	}
	// Repeat requests hit the directory cache rather than reopening.
	if _, err := s.GetTile(1, 1, 2, &TileOptions{Frame: 3}); err != nil {
		t.Fatalf("second frame 3 request failed: %v", err)
	}
	if got := be.openCount(3); got != 1 {
		t.Errorf("directory 3 opened %d times after cache hit, want 1", got)
	}
}

func TestFrameAbsentLevelReconstructs(t *testing.T) {
	be, series := seriesBackend()
	s, err := NewFrameIndexed(be, series, nil)
	if err != nil {
		t.Fatalf("NewFrameIndexed failed: %v", err)
	}
	defer s.Close()
	// Level 0 has no directories for any frame, so the tile is rebuilt
	// from frame 3's level 1 directory (index 9).
	b, err := s.GetTile(0, 0, 0, &TileOptions{Frame: 3, AllowImage: true})
	if err != nil {
		t.Fatalf("GetTile at absent level failed: %v", err)
	}
	img, err := b.Decode()
	if err != nil {
		t.Fatalf("decoding reconstructed tile failed: %v", err)
	}
	if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 256 {
		t.Errorf("got %d x %d tile, want 256 x 256",
			img.Bounds().Dx(), img.Bounds().Dy())
	}
	if got := be.openCount(9); got == 0 {
		t.Error("reconstruction never opened frame 3's level 1 directory")
	}
}

func TestPartialResolutionIgnored(t *testing.T) {
	be, series := seriesBackend()
	// A resolution with the wrong number of frame directories must not
	// contribute a level.
	series.Images[1].Directories = []int{6, 7, 8, 9, 10}
	s, err := NewFrameIndexed(be, series, nil)
	if err != nil {
		t.Fatalf("NewFrameIndexed failed: %v", err)
	}
	defer s.Close()
	// Level 1 is now absent; level 2 frame fetches must still work.
	if _, err := s.GetTile(0, 0, 2, &TileOptions{Frame: 1}); err != nil {
		t.Fatalf("GetTile at native level failed: %v", err)
	}
	b, err := s.GetTile(0, 0, 1, &TileOptions{Frame: 1, AllowImage: true})
	if err != nil {
		t.Fatalf("GetTile at dropped level failed: %v", err)
	}
	if b.Image == nil {
		t.Error("dropped level did not reconstruct a raster tile")
	}
}

func TestPhysicalToMM(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  float64
	}{
		{0.25, "", 0.00025},
		{0.25, "µm", 0.00025},
		{1, "mm", 1},
		{2, "cm", 20},
		{1, "furlong", 0},
		{0, "mm", 0},
	}
	for _, tc := range tests {
		if got := physicalToMM(tc.value, tc.unit); got != tc.want {
			t.Errorf("physicalToMM(%v, %q) = %v, want %v", tc.value, tc.unit, got, tc.want)
		}
	}
}

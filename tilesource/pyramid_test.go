package tilesource

import (
	"errors"
	"testing"
)

func TestTileLevel(t *testing.T) {
	cases := []struct {
		w, h, tw, th int
		level        int
	}{
		{256, 256, 256, 256, 0},
		{257, 256, 256, 256, 1},
		{512, 512, 256, 256, 1},
		{10000, 10000, 256, 256, 6},
		{1000, 1000, 256, 256, 2},
		{157, 157, 256, 256, 0},
	}
	for _, c := range cases {
		if got := tileLevel(c.w, c.h, c.tw, c.th); got != c.level {
			t.Errorf("tileLevel(%d, %d, %d, %d) = %d, want %d", c.w, c.h, c.tw, c.th, got, c.level)
		}
	}
}

func TestNearPowerOfTwo(t *testing.T) {
	cases := []struct {
		a, b int
		want bool
	}{
		{500, 1000, true},  // exactly half
		{499, 1000, true},  // one pixel under half
		{501, 1000, true},  // one pixel over half
		{370, 1000, false}, // 0.37x is not a power-of-two fraction
		{250, 1000, true},
		{1000, 1000, true},
		{333, 1000, false},
		{0, 1000, false},
	}
	for _, c := range cases {
		if got := nearPowerOfTwo(c.a, c.b); got != c.want {
			t.Errorf("nearPowerOfTwo(%d, %d) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestPyramidStructure(t *testing.T) {
	s, _, err := openTestSource(10000, 10000, 256, 256, nil)
	if err != nil {
		t.Fatalf("unable to open full pyramid: %v", err)
	}
	defer s.Close()
	md := s.Metadata()
	if md.Levels != 7 {
		t.Errorf("got %d levels, want 7", md.Levels)
	}
	if md.SizeX != 10000 || md.SizeY != 10000 {
		t.Errorf("got extent %d x %d, want 10000 x 10000", md.SizeX, md.SizeY)
	}
	if md.TileWidth != 256 || md.TileHeight != 256 {
		t.Errorf("got tile size %d x %d, want 256 x 256", md.TileWidth, md.TileHeight)
	}
	for z := 0; z < md.Levels; z++ {
		if s.pyr.handles[z] == nil {
			t.Errorf("level %d unexpectedly absent in a gapless pyramid", z)
		}
	}
}

func TestPowerOfTwoToleranceAccepts(t *testing.T) {
	// A sub-resolution one pixel under half the canonical width is still
	// accepted at the predicted level.
	be := newMemBackend(
		&memDir{width: 1000, height: 1000, tw: 256, th: 256, tiled: true},
		&memDir{width: 499, height: 499, tw: 256, th: 256, tiled: true},
	)
	s, err := New(be, nil)
	if err != nil {
		t.Fatalf("unable to open source: %v", err)
	}
	defer s.Close()
	if s.pyr.levels != 3 {
		t.Fatalf("got %d levels, want 3", s.pyr.levels)
	}
	if s.pyr.indices[1] != 1 {
		t.Errorf("level 1 backed by directory %d, want 1 (499px near half of 1000px)", s.pyr.indices[1])
	}
}

func TestPowerOfTwoToleranceRejects(t *testing.T) {
	// A 0.37x sub-resolution is not near a power-of-two fraction of the
	// canonical extent and leaves its level absent.
	be := newMemBackend(
		&memDir{width: 1000, height: 1000, tw: 256, th: 256, tiled: true},
		&memDir{width: 370, height: 370, tw: 256, th: 256, tiled: true},
	)
	s, err := New(be, nil)
	if err != nil {
		t.Fatalf("unable to open source: %v", err)
	}
	defer s.Close()
	if s.pyr.handles[1] != nil {
		t.Errorf("level 1 populated by the 370px directory, want it rejected")
	}
}

func TestNoTiledDirectoriesFails(t *testing.T) {
	be := newMemBackend(
		&memDir{width: 100, height: 100, tw: 0, th: 0, desc: "label plain image"},
		&memDir{width: 200, height: 200, tw: 0, th: 0},
	)
	if _, err := New(be, nil); !errors.Is(err, ErrNotTileSource) {
		t.Errorf("got error %v, want ErrNotTileSource", err)
	}
}

func TestEmptyBackendFails(t *testing.T) {
	be := newMemBackend()
	if _, err := New(be, nil); !errors.Is(err, ErrNotTileSource) {
		t.Errorf("got error %v, want ErrNotTileSource", err)
	}
}

func TestMismatchedTileGeometryFails(t *testing.T) {
	// Only the canonical directory survives because every sub-resolution
	// uses a different tile size, and a 7-level pyramid cannot run on a
	// single level.
	be := newMemBackend(
		&memDir{width: 10000, height: 10000, tw: 256, th: 256, tiled: true},
		&memDir{width: 5000, height: 5000, tw: 128, th: 128, tiled: true},
		&memDir{width: 2500, height: 2500, tw: 128, th: 128, tiled: true},
	)
	if _, err := New(be, nil); !errors.Is(err, ErrNotPyramid) {
		t.Errorf("got error %v, want ErrNotPyramid", err)
	}
}

func TestShallowSingleLevelAllowed(t *testing.T) {
	// A small image with at most 4 deduced levels may run on one
	// populated level.
	be := newMemBackend(
		&memDir{width: 1000, height: 1000, tw: 256, th: 256, tiled: true},
	)
	s, err := New(be, nil)
	if err != nil {
		t.Fatalf("single-level source rejected: %v", err)
	}
	defer s.Close()
	if s.pyr.levels != 3 {
		t.Errorf("got %d levels, want 3", s.pyr.levels)
	}
}

func TestEnumerationStopsOnHardError(t *testing.T) {
	// A decode error ends enumeration but keeps directories already found.
	be := newMemBackend(
		&memDir{width: 1000, height: 1000, tw: 256, th: 256, tiled: true},
		&memDir{width: 500, height: 500, tw: 256, th: 256, tiled: true},
		&memDir{openErr: errors.New("corrupt directory header")},
		&memDir{width: 250, height: 250, tw: 256, th: 256, tiled: true},
	)
	s, err := New(be, nil)
	if err != nil {
		t.Fatalf("unable to open source: %v", err)
	}
	defer s.Close()
	if s.pyr.levels != 3 {
		t.Errorf("got %d levels, want 3", s.pyr.levels)
	}
	if s.pyr.handles[0] != nil {
		t.Errorf("directory past the hard error was cataloged")
	}
}

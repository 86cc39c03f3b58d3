package geometry

import (
	"math"
	"testing"

	"github.com/menta2k/image-watermark/pkg/types"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		wantW float64
		wantH float64
	}{
		{"landscape", 1000, 500, 800, 400},
		{"portrait", 600, 1200, 400, 800},
		{"square", 2000, 2000, 800, 800},
		{"small keeps size", 320, 240, 320, 240},
		{"zero", 0, 100, 0, 0},
	}

	for _, tt := range tests {
		got := Display(tt.w, tt.h, DefaultMaxDisplay)
		if !almostEqual(got.Width, tt.wantW) || !almostEqual(got.Height, tt.wantH) {
			t.Errorf("%s: Display(%d, %d) = %vx%v, want %vx%v", tt.name, tt.w, tt.h, got.Width, got.Height, tt.wantW, tt.wantH)
		}
	}
}

func TestDisplayPreservesAspectRatio(t *testing.T) {
	sizes := [][2]int{{1000, 500}, {1234, 777}, {777, 1234}, {4032, 3024}, {801, 799}}
	for _, sz := range sizes {
		d := Display(sz[0], sz[1], DefaultMaxDisplay)
		want := float64(sz[0]) / float64(sz[1])
		got := d.Width / d.Height
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("aspect for %v: got %f, want %f", sz, got, want)
		}
		if d.Width > DefaultMaxDisplay+1e-9 || d.Height > DefaultMaxDisplay+1e-9 {
			t.Errorf("display %vx%v exceeds max for %v", d.Width, d.Height, sz)
		}
	}
}

func TestMapperScaleAndToSource(t *testing.T) {
	m := NewMapper(1000, 500, DefaultMaxDisplay)

	sx, sy := m.Scale()
	if !almostEqual(sx, 1.25) || !almostEqual(sy, 1.25) {
		t.Fatalf("Scale() = %f, %f, want 1.25, 1.25", sx, sy)
	}

	p := m.ToSource(types.Point{X: 100, Y: 100})
	if !almostEqual(p.X, 125) || !almostEqual(p.Y, 125) {
		t.Errorf("ToSource(100,100) = %v, want (125,125)", p)
	}

	back := m.ToDisplay(p)
	if !almostEqual(back.X, 100) || !almostEqual(back.Y, 100) {
		t.Errorf("ToDisplay round trip = %v, want (100,100)", back)
	}
}

func TestMapperInvalidScaleIsIdentity(t *testing.T) {
	var m Mapper
	sx, sy := m.Scale()
	if sx != 1 || sy != 1 {
		t.Errorf("zero mapper scale = %f, %f, want 1, 1", sx, sy)
	}
}

func TestPointerToDisplay(t *testing.T) {
	m := NewMapper(1000, 500, DefaultMaxDisplay) // display 800x400

	for _, zoom := range []float64{0.5, 1, 1.5, 3} {
		rect := m.OnScreen(zoom)
		// a click at display point (100,100) lands at (100*zoom, 100*zoom) on screen
		got := m.PointerToDisplay(types.Point{X: 100 * zoom, Y: 100 * zoom}, rect)
		if !almostEqual(got.X, 100) || !almostEqual(got.Y, 100) {
			t.Errorf("zoom %v: PointerToDisplay = %v, want (100,100)", zoom, got)
		}
	}

	// arbitrary on-screen rectangle: anchor == (dx*lw/rw, dy*lh/rh)
	rect := types.Size{Width: 1600, Height: 200}
	got := m.PointerToDisplay(types.Point{X: 400, Y: 50}, rect)
	if !almostEqual(got.X, 400*800.0/1600) || !almostEqual(got.Y, 50*400.0/200) {
		t.Errorf("PointerToDisplay with stretched rect = %v", got)
	}
}

func TestPointerToDisplayEmptyRect(t *testing.T) {
	m := NewMapper(1000, 500, DefaultMaxDisplay)
	p := types.Point{X: 12, Y: 34}
	if got := m.PointerToDisplay(p, types.Size{}); got != p {
		t.Errorf("empty rect should pass pointer through, got %v", got)
	}
}

func TestClampZoom(t *testing.T) {
	cases := [][2]float64{{0.1, MinZoom}, {0.5, 0.5}, {1.7, 1.7}, {3, 3}, {10, MaxZoom}, {math.NaN(), DefaultZoom}}
	for _, c := range cases {
		if got := ClampZoom(c[0]); got != c[1] {
			t.Errorf("ClampZoom(%v) = %v, want %v", c[0], got, c[1])
		}
	}
}

// Package geometry converts between the three coordinate spaces used while
// watermarking: pointer pixels on the host surface, logical display pixels
// and full-resolution source pixels.
//
// Overlay anchors are always stored in display space. They are converted to
// source space exactly once, when the compositor draws them.
package geometry

import (
	"math"

	"github.com/menta2k/image-watermark/pkg/types"
)

// DefaultMaxDisplay bounds the longest side of the display geometry
const DefaultMaxDisplay = 800

// Zoom limits for the on-screen canvas
const (
	MinZoom     = 0.5
	MaxZoom     = 3.0
	ZoomStep    = 0.1
	DefaultZoom = 1.0
)

// Display computes the bounded display size for an image of the given
// intrinsic size. The longer side is capped at maxDim (images smaller than
// maxDim keep their size) and the aspect ratio is preserved.
func Display(srcW, srcH int, maxDim float64) types.Size {
	if srcW <= 0 || srcH <= 0 {
		return types.Size{}
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxDisplay
	}
	w, h := float64(srcW), float64(srcH)
	aspect := w / h

	if srcW > srcH {
		dw := math.Min(w, maxDim)
		return types.Size{Width: dw, Height: dw / aspect}
	}
	dh := math.Min(h, maxDim)
	return types.Size{Width: dh * aspect, Height: dh}
}

// Mapper holds the source and display sizes of one base image
type Mapper struct {
	Source  types.Size
	Display types.Size
}

// NewMapper builds a mapper for an image of intrinsic size srcW x srcH
func NewMapper(srcW, srcH int, maxDim float64) Mapper {
	return Mapper{
		Source:  types.Size{Width: float64(srcW), Height: float64(srcH)},
		Display: Display(srcW, srcH, maxDim),
	}
}

// Valid reports whether both sizes are usable for conversion
func (m Mapper) Valid() bool {
	return !m.Source.Empty() && !m.Display.Empty()
}

// Scale returns the display to source scale factors
func (m Mapper) Scale() (scaleX, scaleY float64) {
	if !m.Valid() {
		return 1, 1
	}
	return m.Source.Width / m.Display.Width, m.Source.Height / m.Display.Height
}

// ToSource converts a display-space point to source space
func (m Mapper) ToSource(p types.Point) types.Point {
	sx, sy := m.Scale()
	return types.Point{X: p.X * sx, Y: p.Y * sy}
}

// ToDisplay converts a source-space point back to display space
func (m Mapper) ToDisplay(p types.Point) types.Point {
	sx, sy := m.Scale()
	return types.Point{X: p.X / sx, Y: p.Y / sy}
}

// OnScreen returns the rendered size of the display canvas at a zoom level
func (m Mapper) OnScreen(zoom float64) types.Size {
	return types.Size{Width: m.Display.Width * zoom, Height: m.Display.Height * zoom}
}

// PointerToDisplay converts a pointer position, relative to the top-left of
// the canvas's on-screen bounding box of size rect, into display space.
// The result is never pre-scaled to source space.
func (m Mapper) PointerToDisplay(pointer types.Point, rect types.Size) types.Point {
	if rect.Empty() || m.Display.Empty() {
		return pointer
	}
	return types.Point{
		X: pointer.X * m.Display.Width / rect.Width,
		Y: pointer.Y * m.Display.Height / rect.Height,
	}
}

// ClampZoom limits zoom to [MinZoom, MaxZoom]
func ClampZoom(zoom float64) float64 {
	if math.IsNaN(zoom) {
		return DefaultZoom
	}
	if zoom < MinZoom {
		return MinZoom
	}
	if zoom > MaxZoom {
		return MaxZoom
	}
	return zoom
}

package compositor

import (
	"image"
	"math"

	"golang.org/x/image/math/f64"

	"github.com/menta2k/image-watermark/pkg/types"
)

// placement maps overlay-local coordinates to canvas coordinates: scale
// by (sx, sy), rotate clockwise by deg (y axis points down), then translate
// the local origin to origin.
func placement(origin types.Point, deg, sx, sy float64) f64.Aff3 {
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return f64.Aff3{
		cos * sx, -sin * sy, origin.X,
		sin * sx, cos * sy, origin.Y,
	}
}

// apply maps a point through m
func apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

// transformedBounds returns the integer rectangle covering r after mapping
// its corners through m.
func transformedBounds(m f64.Aff3, r image.Rectangle) image.Rectangle {
	corners := [4][2]float64{
		{float64(r.Min.X), float64(r.Min.Y)},
		{float64(r.Max.X), float64(r.Min.Y)},
		{float64(r.Min.X), float64(r.Max.Y)},
		{float64(r.Max.X), float64(r.Max.Y)},
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x, y := apply(m, c[0], c[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}

// alphaByte converts an opacity in [0,1] to an 8-bit alpha
func alphaByte(opacity float64) uint8 {
	if opacity <= 0 || math.IsNaN(opacity) {
		return 0
	}
	if opacity >= 1 {
		return 0xff
	}
	return uint8(opacity*0xff + 0.5)
}

package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/image-watermark/pkg/geometry"
	"github.com/menta2k/image-watermark/pkg/overlay"
	"github.com/menta2k/image-watermark/pkg/types"
)

// Drop shadow behind the text watermark, in display pixels. Offsets scale
// with scaleX/scaleY and the blur with scaleX.
const (
	shadowOffsetX = 2
	shadowOffsetY = 2
	shadowBlur    = 4
	shadowAlpha   = 0.5
)

// TextMetrics are the resolved source-space parameters of a text overlay
type TextMetrics struct {
	Origin     types.Point
	FontSizePx float64
	ShadowDX   float64
	ShadowDY   float64
	ShadowBlur float64
}

// ResolveText converts a text overlay's display-space settings to source
// space. The font size scales with the horizontal factor only.
func ResolveText(t overlay.TextOverlay, m geometry.Mapper) TextMetrics {
	sx, sy := m.Scale()
	return TextMetrics{
		Origin:     m.ToSource(t.Anchor),
		FontSizePx: t.FontSizePx * sx,
		ShadowDX:   shadowOffsetX * sx,
		ShadowDY:   shadowOffsetY * sy,
		ShadowBlur: shadowBlur * sx,
	}
}

// ParseColor parses #rgb or #rrggbb into an opaque color
func ParseColor(hex string) (color.NRGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// drawText draws the text overlay with its baseline origin at the anchor.
// The text is rasterized unrotated, resampled through the placement
// transform into a canvas-aligned coverage mask, and composited together
// with its blurred shadow.
func (c *Compositor) drawText(dst *image.RGBA, t overlay.TextOverlay, m geometry.Mapper) (bool, error) {
	alpha := alphaByte(t.Opacity)
	if alpha == 0 {
		return false, nil
	}

	fill, err := ParseColor(t.Color)
	if err != nil {
		return false, err
	}

	tm := ResolveText(t, m)
	face, err := c.fonts.Face(t.FontFamily, tm.FontSizePx)
	if err != nil {
		return false, err
	}
	defer face.Close()

	glyphs := rasterizeText(face, t.Content)
	if glyphs == nil {
		return false, nil
	}

	xf := placement(tm.Origin, t.RotationDeg, 1, 1)
	textRect := transformedBounds(xf, glyphs.Bounds())

	// room for the shadow: its offset plus three sigmas of blur
	sigma := tm.ShadowBlur / 2
	margin := int(math.Ceil(3 * sigma))
	dx, dy := int(math.Round(tm.ShadowDX)), int(math.Round(tm.ShadowDY))
	region := textRect.Union(textRect.Add(image.Pt(dx, dy))).Inset(-margin).Intersect(dst.Bounds())
	if region.Empty() {
		return false, nil
	}

	coverage := image.NewAlpha(region)
	c.interp.Transform(coverage, xf, glyphs, glyphs.Bounds(), draw.Src, nil)

	opacity := image.NewUniform(alphaColor(alpha))

	shadow := shadowLayer(coverage, dx, dy, sigma)
	draw.DrawMask(dst, region, shadow, image.Point{}, opacity, image.Point{}, draw.Over)

	if alpha != 0xff {
		for i, a := range coverage.Pix {
			coverage.Pix[i] = uint8(uint16(a) * uint16(alpha) / 0xff)
		}
	}
	draw.DrawMask(dst, region, image.NewUniform(fill), image.Point{}, coverage, region.Min, draw.Over)
	return true, nil
}

// rasterizeText draws s into an alpha mask whose coordinates are relative
// to the baseline origin, so glyphs above the baseline have negative y.
// It returns nil when s has no visible extent.
func rasterizeText(face font.Face, s string) *image.Alpha {
	b, _ := font.BoundString(face, s)
	r := image.Rect(b.Min.X.Floor(), b.Min.Y.Floor(), b.Max.X.Ceil(), b.Max.Y.Ceil())
	if r.Empty() {
		return nil
	}

	mask := image.NewAlpha(r)
	d := font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{},
	}
	d.DrawString(s)
	return mask
}

// shadowLayer builds the black drop shadow for a coverage mask. The result
// has its origin at the mask's top-left corner.
func shadowLayer(coverage *image.Alpha, dx, dy int, sigma float64) *image.NRGBA {
	r := coverage.Bounds()
	shadow := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	a := alphaByte(shadowAlpha)

	for y := 0; y < r.Dy(); y++ {
		sy := r.Min.Y + y - dy
		if sy < r.Min.Y || sy >= r.Max.Y {
			continue
		}
		for x := 0; x < r.Dx(); x++ {
			sx := r.Min.X + x - dx
			if sx < r.Min.X || sx >= r.Max.X {
				continue
			}
			cov := coverage.Pix[coverage.PixOffset(sx, sy)]
			if cov == 0 {
				continue
			}
			shadow.Pix[shadow.PixOffset(x, y)+3] = uint8(uint16(cov) * uint16(a) / 0xff)
		}
	}

	if sigma <= 0 {
		return shadow
	}
	return imaging.Blur(shadow, sigma)
}

func alphaColor(a uint8) color.Alpha {
	return color.Alpha{A: a}
}

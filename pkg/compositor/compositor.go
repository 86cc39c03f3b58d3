// Package compositor renders the base photo and both watermark overlays
// into a canvas at the photo's full source resolution.
//
// Every render is a full redraw: resize, clear, base image, text overlay,
// vector overlay. Later steps draw over earlier ones, so the vector overlay
// always sits above the text overlay where they overlap.
package compositor

import (
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/image-watermark/pkg/geometry"
	"github.com/menta2k/image-watermark/pkg/overlay"
)

// Canvas is the composite render target. Only the compositor writes to it;
// everyone else reads through Snapshot.
type Canvas struct {
	img *image.RGBA
}

// NewCanvas returns an empty canvas; it is sized on first render
func NewCanvas() *Canvas {
	return &Canvas{}
}

// Size returns the pixel size of the last render, or 0x0
func (c *Canvas) Size() (int, int) {
	if c == nil || c.img == nil {
		return 0, 0
	}
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Empty reports whether nothing has been rendered yet
func (c *Canvas) Empty() bool {
	w, h := c.Size()
	return w == 0 || h == 0
}

// Snapshot copies the current pixel buffer
func (c *Canvas) Snapshot() *image.RGBA {
	if c.Empty() {
		return nil
	}
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

// Discard drops the pixel buffer
func (c *Canvas) Discard() {
	c.img = nil
}

// Options configures a Compositor
type Options struct {
	// Interpolator resamples rotated and scaled overlays
	Interpolator xdraw.Interpolator
	Fonts        *FontRegistry
	Logger       *slog.Logger
}

// Compositor runs the render pipeline
type Compositor struct {
	interp xdraw.Interpolator
	fonts  *FontRegistry
	logger *slog.Logger
}

// New creates a compositor with bilinear resampling
func New() *Compositor {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a compositor with custom options
func NewWithOptions(opts Options) *Compositor {
	c := &Compositor{interp: opts.Interpolator, fonts: opts.Fonts, logger: opts.Logger}
	if c.interp == nil {
		c.interp = xdraw.BiLinear
	}
	if c.fonts == nil {
		c.fonts = NewFontRegistry()
	}
	return c
}

// ParseInterpolator maps a config name to an interpolator
func ParseInterpolator(name string) (xdraw.Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bilinear":
		return xdraw.BiLinear, nil
	case "catmullrom", "catmull-rom":
		return xdraw.CatmullRom, nil
	case "nearest", "nearestneighbor":
		return xdraw.NearestNeighbor, nil
	case "approxbilinear":
		return xdraw.ApproxBiLinear, nil
	}
	return nil, fmt.Errorf("unknown interpolator: %q", name)
}

// Report describes what one render pass did. Overlay failures are recorded
// in Errors and never stop the other overlay from drawing.
type Report struct {
	Rendered    bool
	TextDrawn   bool
	VectorDrawn bool
	Errors      []error
}

// Err returns the first overlay error, if any
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Render redraws dst from scratch. Without a base image the pass is a no-op
// and Report.Rendered is false.
func (c *Compositor) Render(dst *Canvas, base image.Image, st *overlay.State, m geometry.Mapper) Report {
	var report Report
	if dst == nil || base == nil {
		return report
	}
	bounds := base.Bounds()
	if bounds.Empty() {
		return report
	}

	// 1. the canvas is always sized to the source resolution
	size := image.Rect(0, 0, bounds.Dx(), bounds.Dy())
	if dst.img == nil || dst.img.Bounds() != size {
		dst.img = image.NewRGBA(size)
	} else {
		// 2. clear
		clear(dst.img.Pix)
	}

	// 3. identity draw of the base image
	draw.Draw(dst.img, size, base, bounds.Min, draw.Over)
	report.Rendered = true

	if st == nil {
		return report
	}
	if !m.Valid() {
		m = geometry.NewMapper(bounds.Dx(), bounds.Dy(), geometry.DefaultMaxDisplay)
	}

	// 4. text, then 5. vector; each pass owns its own transform and opacity
	if st.Text.Renderable() {
		drawn, err := c.guard("text", func() (bool, error) { return c.drawText(dst.img, st.Text, m) })
		report.TextDrawn = drawn
		if err != nil {
			report.Errors = append(report.Errors, err)
		}
	}
	if st.Vector.Renderable() {
		drawn, err := c.guard("vector", func() (bool, error) { return c.drawVector(dst.img, st.Vector, m) })
		report.VectorDrawn = drawn
		if err != nil {
			report.Errors = append(report.Errors, err)
		}
	}
	return report
}

// guard runs one overlay pass, converting panics into errors so a failing
// overlay cannot take the render down with it.
func (c *Compositor) guard(name string, fn func() (bool, error)) (drawn bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			drawn, err = false, fmt.Errorf("%s overlay panicked: %v", name, r)
		}
		if err != nil && c.logger != nil {
			c.logger.Warn("overlay render failed", "overlay", name, "error", err)
		}
	}()
	drawn, err = fn()
	if err != nil {
		err = fmt.Errorf("%s overlay: %w", name, err)
	}
	return drawn, err
}

// drawVector draws the vector overlay: translate to the anchor in source
// space, rotate, then draw at width size*scaleX and height width/aspect.
func (c *Compositor) drawVector(dst *image.RGBA, v overlay.VectorOverlay, m geometry.Mapper) (bool, error) {
	alpha := alphaByte(v.Opacity)
	if alpha == 0 {
		return false, nil
	}

	sx, _ := m.Scale()
	w, h := VectorDrawSize(v, sx)
	if w <= 0 || h <= 0 {
		return false, fmt.Errorf("invalid draw size %fx%f", w, h)
	}

	pw, ph := ceilInt(w), ceilInt(h)
	raster := v.Asset.Rasterize(pw, ph)
	if raster == nil {
		return false, fmt.Errorf("rasterize %dx%d failed", pw, ph)
	}

	xf := placement(m.ToSource(v.Anchor), v.RotationDeg, w/float64(pw), h/float64(ph))
	region := transformedBounds(xf, raster.Bounds()).Intersect(dst.Bounds())
	if region.Empty() {
		return false, nil
	}

	layer := image.NewRGBA(region)
	c.interp.Transform(layer, xf, raster, raster.Bounds(), xdraw.Src, nil)
	draw.DrawMask(dst, region, layer, region.Min, image.NewUniform(alphaColor(alpha)), image.Point{}, draw.Over)
	return true, nil
}

// VectorDrawSize returns the source-space size of the vector overlay. The
// height is always derived from the width and the stored aspect ratio.
func VectorDrawSize(v overlay.VectorOverlay, scaleX float64) (w, h float64) {
	aspect := v.AspectRatio
	if aspect <= 0 {
		aspect = overlay.DefaultAspectRatio
	}
	w = v.SizePx * scaleX
	return w, w / aspect
}

func ceilInt(v float64) int {
	n := int(v)
	if float64(n) < v {
		n++
	}
	return n
}

// Package vector loads SVG watermark assets: it checks the declared media
// type, reads the root element's intrinsic size and rasterizes the artwork
// at whatever size the compositor asks for.
package vector

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"mime"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// MediaType is the only media type accepted for vector watermarks
const MediaType = "image/svg+xml"

var (
	ErrUnsupportedType    = errors.New("vector: unsupported media type")
	ErrNoRoot             = errors.New("vector: no svg root element")
	ErrDegenerateGeometry = errors.New("vector: no positive width and height")
	ErrEmpty              = errors.New("vector: empty asset")
)

// Accepts reports whether a declared media type names SVG content.
// Parameters such as charset are ignored.
func Accepts(mediaType string) bool {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mt == MediaType
}

// Asset is a decoded vector watermark. Rasterizations are cached per pixel
// size, so redraws at an unchanged overlay size reuse the same bitmap.
type Asset struct {
	Name string
	Root Root

	icon *oksvg.SvgIcon
	size int

	mu     sync.Mutex
	cached *image.RGBA
	cw, ch int
}

// Load validates the declared media type and decodes the asset. A wrong
// type returns ErrUnsupportedType without looking at data.
func Load(name, mediaType string, data []byte) (*Asset, error) {
	if !Accepts(mediaType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, mediaType)
	}
	return Decode(name, data)
}

// Decode parses SVG bytes whose type has already been checked
func Decode(name string, data []byte) (*Asset, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	root, err := ParseRoot(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to decode svg: %w", err)
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		w, h, ok := root.Dimensions()
		if !ok {
			w, h = 1, 1
		}
		icon.ViewBox.X, icon.ViewBox.Y = 0, 0
		icon.ViewBox.W, icon.ViewBox.H = w, h
	}

	return &Asset{Name: name, Root: root, icon: icon, size: len(data)}, nil
}

// AspectRatio returns width/height of the asset, or ErrDegenerateGeometry
// when the root element gives no positive size.
func (a *Asset) AspectRatio() (float64, error) {
	w, h, ok := a.Root.Dimensions()
	if !ok {
		return 0, ErrDegenerateGeometry
	}
	return w / h, nil
}

// Bytes returns the size of the source document
func (a *Asset) Bytes() int {
	return a.size
}

// Rasterize draws the artwork stretched to w x h pixels. The returned image
// is shared with later calls of the same size and must not be modified.
func (a *Asset) Rasterize(w, h int) *image.RGBA {
	if w <= 0 || h <= 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != nil && a.cw == w && a.ch == h {
		return a.cached
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	a.icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	a.icon.Draw(raster, 1.0)

	a.cached, a.cw, a.ch = img, w, h
	return img
}

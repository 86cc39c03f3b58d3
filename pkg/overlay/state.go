// Package overlay holds the two watermark descriptors (text and vector) and
// the selector that decides which one the next pointer click repositions.
package overlay

import (
	"github.com/menta2k/image-watermark/pkg/types"
	"github.com/menta2k/image-watermark/pkg/vector"
)

// Defaults for a fresh session
const (
	DefaultFontSize      = 20
	DefaultColor         = "#ffffff"
	DefaultFontFamily    = types.FontArial
	DefaultVectorSize    = 100
	DefaultAspectRatio   = 1
	DefaultOpacity       = 1
	DefaultRotation      = 0
	DefaultTextAnchorX   = 50
	DefaultTextAnchorY   = 50
	DefaultVectorAnchorX = 100
	DefaultVectorAnchorY = 100
)

// TextOverlay describes the text watermark. Anchor is in display space.
type TextOverlay struct {
	Content     string           `json:"content"`
	FontSizePx  float64          `json:"font_size_px"`
	Color       string           `json:"color"`
	FontFamily  types.FontFamily `json:"font_family"`
	RotationDeg float64          `json:"rotation_deg"`
	Opacity     float64          `json:"opacity"`
	Anchor      types.Point      `json:"anchor"`
}

// Renderable reports whether there is any text to draw
func (t TextOverlay) Renderable() bool {
	return t.Content != ""
}

// DefaultText returns the text overlay of a fresh session
func DefaultText() TextOverlay {
	return TextOverlay{
		FontSizePx:  DefaultFontSize,
		Color:       DefaultColor,
		FontFamily:  DefaultFontFamily,
		RotationDeg: DefaultRotation,
		Opacity:     DefaultOpacity,
		Anchor:      types.Point{X: DefaultTextAnchorX, Y: DefaultTextAnchorY},
	}
}

// VectorOverlay describes the vector watermark. Asset is nil until an SVG
// has been loaded. SizePx is the display-space width; the height always
// follows from AspectRatio.
type VectorOverlay struct {
	Asset       *vector.Asset `json:"-"`
	FileName    string        `json:"file_name,omitempty"`
	AspectRatio float64       `json:"aspect_ratio"`
	SizePx      float64       `json:"size_px"`
	RotationDeg float64       `json:"rotation_deg"`
	Opacity     float64       `json:"opacity"`
	Anchor      types.Point   `json:"anchor"`
}

// Renderable reports whether a decoded asset is present
func (v VectorOverlay) Renderable() bool {
	return v.Asset != nil
}

// DefaultVector returns the vector overlay of a fresh session
func DefaultVector() VectorOverlay {
	return VectorOverlay{
		AspectRatio: DefaultAspectRatio,
		SizePx:      DefaultVectorSize,
		RotationDeg: DefaultRotation,
		Opacity:     DefaultOpacity,
		Anchor:      types.Point{X: DefaultVectorAnchorX, Y: DefaultVectorAnchorY},
	}
}

// State is the complete overlay state of one session. It is not safe for
// concurrent use; the session controller serializes access.
type State struct {
	Text   TextOverlay       `json:"text"`
	Vector VectorOverlay     `json:"vector"`
	Active types.OverlayKind `json:"active"`
}

// New returns a State with documented defaults
func New() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset restores both overlays and the selector to their defaults and
// drops the decoded vector asset.
func (s *State) Reset() {
	s.Text = DefaultText()
	s.Vector = DefaultVector()
	s.Active = types.OverlayText
}

// Clone returns a copy safe to read outside the owner's goroutine. The
// vector asset pointer is shared; assets are never mutated after decode
// apart from their internal raster cache.
func (s *State) Clone() State {
	return *s
}

// Select makes kind the active overlay. The request is ignored, and false
// returned, when that overlay has nothing to render yet.
func (s *State) Select(kind types.OverlayKind) bool {
	switch kind {
	case types.OverlayText:
		if !s.Text.Renderable() {
			return false
		}
	case types.OverlayVector:
		if !s.Vector.Renderable() {
			return false
		}
	default:
		return false
	}
	s.Active = kind
	return true
}

// Place moves the active overlay's anchor to a display-space point. It is a
// no-op when the active overlay has nothing to render.
func (s *State) Place(p types.Point) bool {
	switch s.Active {
	case types.OverlayText:
		if s.Text.Renderable() {
			s.Text.Anchor = p
			return true
		}
	case types.OverlayVector:
		if s.Vector.Renderable() {
			s.Vector.Anchor = p
			return true
		}
	}
	return false
}

// SetText replaces the text content; empty disables the text overlay
func (s *State) SetText(content string) { s.Text.Content = content }

// SetFontSize sets the display-space font size in pixels
func (s *State) SetFontSize(px float64) { s.Text.FontSizePx = px }

// SetColor sets the text color as #rrggbb
func (s *State) SetColor(hex string) { s.Text.Color = hex }

// SetFontFamily selects the text font family
func (s *State) SetFontFamily(f types.FontFamily) { s.Text.FontFamily = f }

// SetTextRotation sets the clockwise text rotation in degrees
func (s *State) SetTextRotation(deg float64) { s.Text.RotationDeg = deg }

// SetTextOpacity sets the text opacity in [0, 1]
func (s *State) SetTextOpacity(opacity float64) { s.Text.Opacity = opacity }

// SetTextAnchor moves the text baseline origin, in display space
func (s *State) SetTextAnchor(p types.Point) { s.Text.Anchor = p }

// SetVectorSize sets the display-space vector width in pixels
func (s *State) SetVectorSize(px float64) { s.Vector.SizePx = px }

// SetVectorRotation sets the clockwise vector rotation in degrees
func (s *State) SetVectorRotation(deg float64) { s.Vector.RotationDeg = deg }

// SetVectorOpacity sets the vector opacity in [0, 1]
func (s *State) SetVectorOpacity(opacity float64) { s.Vector.Opacity = opacity }

// SetVectorAnchor moves the vector top-left corner, in display space
func (s *State) SetVectorAnchor(p types.Point) { s.Vector.Anchor = p }

// SetVectorAsset installs a newly decoded asset, replacing the previous
// one. The aspect ratio is only updated when the asset has a positive
// intrinsic size; otherwise the previous ratio is kept.
func (s *State) SetVectorAsset(a *vector.Asset) {
	if a == nil {
		return
	}
	s.Vector.Asset = a
	s.Vector.FileName = a.Name
	if ratio, err := a.AspectRatio(); err == nil && ratio > 0 {
		s.Vector.AspectRatio = ratio
	}
}

// ClearVectorAsset removes the vector artwork, keeping its settings
func (s *State) ClearVectorAsset() {
	s.Vector.Asset = nil
	s.Vector.FileName = ""
	if s.Active == types.OverlayVector {
		s.Active = types.OverlayText
	}
}

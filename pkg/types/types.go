package types

import (
	"fmt"
	"strings"
)

// Point is a position in pixels. Which coordinate space it lives in
// (pointer, display or source) is decided by whoever holds it.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether either dimension is not positive
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// OverlayKind identifies one of the two watermark overlays
type OverlayKind int

const (
	OverlayText OverlayKind = iota
	OverlayVector
)

func (k OverlayKind) String() string {
	switch k {
	case OverlayText:
		return "text"
	case OverlayVector:
		return "vector"
	default:
		return fmt.Sprintf("OverlayKind(%d)", int(k))
	}
}

// ParseOverlayKind accepts "text" and "vector" ("svg" is an alias)
func ParseOverlayKind(s string) (OverlayKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return OverlayText, nil
	case "vector", "svg":
		return OverlayVector, nil
	}
	return OverlayText, fmt.Errorf("unknown overlay kind: %q", s)
}

func (k OverlayKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *OverlayKind) UnmarshalText(b []byte) error {
	v, err := ParseOverlayKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// FontFamily is the fixed set of families offered for the text watermark
type FontFamily string

const (
	FontArial         FontFamily = "Arial"
	FontCourierNew    FontFamily = "Courier New"
	FontTimesNewRoman FontFamily = "Times New Roman"
	FontGeorgia       FontFamily = "Georgia"
	FontVerdana       FontFamily = "Verdana"
	FontTahoma        FontFamily = "Tahoma"
	FontImpact        FontFamily = "Impact"
)

// FontFamilies returns every supported family in menu order
func FontFamilies() []FontFamily {
	return []FontFamily{FontArial, FontCourierNew, FontTimesNewRoman, FontGeorgia, FontVerdana, FontTahoma, FontImpact}
}

// Valid reports whether f is one of FontFamilies
func (f FontFamily) Valid() bool {
	for _, known := range FontFamilies() {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFontFamily matches a family name case-insensitively
func ParseFontFamily(s string) (FontFamily, error) {
	for _, known := range FontFamilies() {
		if strings.EqualFold(strings.TrimSpace(s), string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown font family: %q", s)
}

package vector

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/xml"
)

// ViewBox is the svg viewBox attribute
type ViewBox struct {
	MinX, MinY    float64
	Width, Height float64
}

// Root holds the intrinsic size attributes of an svg root element.
// Width and Height are zero when the attribute is absent or unparsable.
type Root struct {
	Width   float64
	Height  float64
	ViewBox ViewBox
}

// Dimensions returns the intrinsic size, preferring explicit width/height
// and falling back to the viewBox size per dimension.
func (r Root) Dimensions() (w, h float64, ok bool) {
	w, h = r.Width, r.Height
	if w <= 0 {
		w = r.ViewBox.Width
	}
	if h <= 0 {
		h = r.ViewBox.Height
	}
	return w, h, w > 0 && h > 0
}

// ParseRoot scans a document for the first svg element and reads its
// width, height and viewBox attributes.
func ParseRoot(r io.Reader) (Root, error) {
	l := xml.NewLexer(parse.NewInput(r))

	inRoot := false
	var root Root
	for {
		tt, _ := l.Next()
		switch tt {
		case xml.ErrorToken:
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return Root{}, fmt.Errorf("failed to parse svg: %w", err)
			}
			return Root{}, ErrNoRoot
		case xml.StartTagToken:
			if localName(string(l.Text())) == "svg" {
				inRoot = true
			}
		case xml.AttributeToken:
			if !inRoot {
				continue
			}
			val := unquote(string(l.AttrVal()))
			switch localName(string(l.Text())) {
			case "width":
				root.Width = leadingFloat(val)
			case "height":
				root.Height = leadingFloat(val)
			case "viewBox":
				root.ViewBox = parseViewBox(val)
			}
		case xml.StartTagCloseToken, xml.StartTagCloseVoidToken:
			if inRoot {
				return root, nil
			}
		}
	}
}

func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// leadingFloat parses the longest numeric prefix, so "200px" is 200
// and "auto" is 0.
func leadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && strings.IndexByte("+-.0123456789eE", s[end]) >= 0 {
		end++
	}
	for ; end > 0; end-- {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return v
		}
	}
	return 0
}

func parseViewBox(s string) ViewBox {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) != 4 {
		return ViewBox{}
	}
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return ViewBox{}
		}
		v[i] = n
	}
	return ViewBox{MinX: v[0], MinY: v[1], Width: v[2], Height: v[3]}
}

package compositor

import (
	"fmt"
	"sync"

	"github.com/go-fonts/latin-modern/lmroman10regular"
	"github.com/go-fonts/latin-modern/lmroman12regular"
	"github.com/go-fonts/latin-modern/lmsans10regular"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/menta2k/image-watermark/pkg/types"
)

// embedded stand-ins for the families offered in the controls panel
var fontData = map[types.FontFamily][]byte{
	types.FontArial:         goregular.TTF,
	types.FontCourierNew:    gomono.TTF,
	types.FontTimesNewRoman: lmroman10regular.TTF,
	types.FontGeorgia:       lmroman12regular.TTF,
	types.FontVerdana:       lmsans10regular.TTF,
	types.FontTahoma:        gomedium.TTF,
	types.FontImpact:        gobold.TTF,
}

// FontRegistry parses each embedded family once and hands out faces
type FontRegistry struct {
	mu     sync.Mutex
	parsed map[types.FontFamily]*opentype.Font
}

// NewFontRegistry creates an empty registry; fonts are parsed on first use
func NewFontRegistry() *FontRegistry {
	return &FontRegistry{parsed: make(map[types.FontFamily]*opentype.Font)}
}

// Face returns a face of family at sizePx pixels. Unknown families fall
// back to Arial, like a browser falling back to its default font.
func (r *FontRegistry) Face(family types.FontFamily, sizePx float64) (font.Face, error) {
	if sizePx <= 0 {
		return nil, fmt.Errorf("invalid font size: %f", sizePx)
	}
	if _, ok := fontData[family]; !ok {
		family = types.FontArial
	}

	f, err := r.font(family)
	if err != nil {
		return nil, err
	}

	// 72 DPI makes one point equal to one pixel
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s face: %w", family, err)
	}
	return face, nil
}

func (r *FontRegistry) font(family types.FontFamily) (*opentype.Font, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.parsed[family]; ok {
		return f, nil
	}
	f, err := opentype.Parse(fontData[family])
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s font: %w", family, err)
	}
	r.parsed[family] = f
	return f, nil
}

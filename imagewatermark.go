// Package imagewatermark composites a text watermark and an SVG logo
// watermark onto product photos and exports the flattened result at the
// photo's full resolution.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		imagewatermark "github.com/menta2k/image-watermark"
//	)
//
//	func main() {
//		base, err := os.ReadFile("product.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		out, err := os.Create("product_watermarked.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer out.Close()
//
//		wm := imagewatermark.New()
//		_, err = wm.Apply(context.Background(), out, base, imagewatermark.ApplyOptions{
//			Text: &imagewatermark.TextOptions{Content: "SALE", FontSizePx: 36},
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of five main components:
//
// 1. Vector loader (pkg/vector): SVG validation, intrinsic aspect ratio, rasterization
// 2. Geometry (pkg/geometry): display size, display/source and pointer conversion
// 3. Overlay state (pkg/overlay): text and vector watermark settings
// 4. Compositor (pkg/compositor): full-resolution render pipeline
// 5. Session (pkg/session): interactive lifecycle with bake, export and reset
//
// Overlay anchors are always given in display space, the photo scaled so its
// longer side is at most 800 pixels, and converted to source space at draw
// time.
package imagewatermark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/menta2k/image-watermark/pkg/compositor"
	"github.com/menta2k/image-watermark/pkg/overlay"
	"github.com/menta2k/image-watermark/pkg/processing"
	"github.com/menta2k/image-watermark/pkg/session"
	"github.com/menta2k/image-watermark/pkg/types"
	"github.com/menta2k/image-watermark/pkg/vector"
)

// Version of the image watermark library
const Version = "1.0.0"

// Config configures a Watermarker
type Config struct {
	// MaxDisplay bounds the longer display side; 0 means 800
	MaxDisplay   float64
	Interpolator string
	Export       processing.EncodeOptions
	Logger       *slog.Logger
}

// Watermarker creates sessions sharing one compositor and font registry
type Watermarker struct {
	cfg  Config
	comp *compositor.Compositor
	proc *processing.Processor
}

// New creates a Watermarker with default configuration
func New() *Watermarker {
	w, _ := NewWithConfig(Config{})
	return w
}

// NewWithConfig creates a Watermarker with custom configuration
func NewWithConfig(cfg Config) (*Watermarker, error) {
	interp, err := compositor.ParseInterpolator(cfg.Interpolator)
	if err != nil {
		return nil, err
	}
	return &Watermarker{
		cfg:  cfg,
		comp: compositor.NewWithOptions(compositor.Options{Interpolator: interp, Logger: cfg.Logger}),
		proc: processing.NewProcessor(),
	}, nil
}

// NewSession starts an interactive session. The caller must Close it.
func (w *Watermarker) NewSession(logger *slog.Logger) *session.Controller {
	if logger == nil {
		logger = w.cfg.Logger
	}
	return session.New(session.Options{
		Compositor: w.comp,
		Processor:  w.proc,
		MaxDisplay: w.cfg.MaxDisplay,
		Export:     w.cfg.Export,
		Logger:     logger,
	})
}

// TextOptions describes a text watermark. Zero values keep the defaults.
type TextOptions struct {
	Content     string
	FontSizePx  float64
	Color       string
	FontFamily  types.FontFamily
	RotationDeg float64
	Opacity     float64
	Anchor      *types.Point
}

// VectorOptions describes an SVG watermark. Zero values keep the defaults.
type VectorOptions struct {
	Name        string
	Data        []byte
	SizePx      float64
	RotationDeg float64
	Opacity     float64
	Anchor      *types.Point
}

// ApplyOptions selects the watermarks and the output encoding
type ApplyOptions struct {
	Text   *TextOptions
	Vector *VectorOptions
	// Filename picks the export format by extension; PNG when empty
	Filename string
}

// Result describes an applied watermark
type Result struct {
	Format processing.Format `json:"format"`
	Width  int               `json:"width"`
	Height int               `json:"height"`
}

// Apply watermarks base and writes the encoded result to out. It runs one
// whole session: load, configure, bake, export.
func (w *Watermarker) Apply(ctx context.Context, out io.Writer, base []byte, opts ApplyOptions) (Result, error) {
	s := w.NewSession(nil)
	defer s.Close()

	failures := make(chan error, 4)
	s.AddListener(func(ev session.Event) {
		switch ev.Kind {
		case session.EventBaseFailed, session.EventVectorFailed, session.EventVectorRejected:
			select {
			case failures <- ev.Err:
			default:
			}
		}
	})

	if _, err := s.LoadBase(base); err != nil {
		return Result{}, err
	}
	if err := w.settle(ctx, s, failures); err != nil {
		return Result{}, err
	}

	if v := opts.Vector; v != nil {
		accepted, err := s.LoadVector(v.Name, vector.MediaType, v.Data)
		if err != nil {
			return Result{}, err
		}
		if !accepted {
			return Result{}, vector.ErrUnsupportedType
		}
		if err := w.settle(ctx, s, failures); err != nil {
			return Result{}, err
		}
	}

	_, err := s.Update(func(st *overlay.State) {
		if opts.Text != nil {
			applyText(st, *opts.Text)
		}
		if opts.Vector != nil {
			applyVector(st, *opts.Vector)
		}
	})
	if err != nil {
		return Result{}, err
	}

	report, err := s.Bake()
	if err != nil {
		return Result{}, err
	}
	if err := report.Err(); err != nil {
		return Result{}, err
	}

	format, err := s.Export(out, opts.Filename)
	if err != nil {
		return Result{}, err
	}
	snap, err := s.Snapshot()
	if err != nil {
		return Result{}, err
	}
	return Result{Format: format, Width: snap.CanvasWidth, Height: snap.CanvasHeight}, nil
}

// settle waits for pending decodes and returns the first reported failure
func (w *Watermarker) settle(ctx context.Context, s *session.Controller, failures <-chan error) error {
	if err := s.WaitIdle(ctx); err != nil {
		return err
	}
	select {
	case err := <-failures:
		if err == nil {
			err = errors.New("decode failed")
		}
		return err
	default:
		return nil
	}
}

func applyText(st *overlay.State, t TextOptions) {
	st.SetText(t.Content)
	if t.FontSizePx > 0 {
		st.SetFontSize(t.FontSizePx)
	}
	if t.Color != "" {
		st.SetColor(t.Color)
	}
	if t.FontFamily != "" {
		st.SetFontFamily(t.FontFamily)
	}
	st.SetTextRotation(t.RotationDeg)
	if t.Opacity > 0 {
		st.SetTextOpacity(t.Opacity)
	}
	if t.Anchor != nil {
		st.SetTextAnchor(*t.Anchor)
	}
}

func applyVector(st *overlay.State, v VectorOptions) {
	if v.SizePx > 0 {
		st.SetVectorSize(v.SizePx)
	}
	st.SetVectorRotation(v.RotationDeg)
	if v.Opacity > 0 {
		st.SetVectorOpacity(v.Opacity)
	}
	if v.Anchor != nil {
		st.SetVectorAnchor(*v.Anchor)
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return fmt.Sprintf("image-watermark v%s", Version)
}

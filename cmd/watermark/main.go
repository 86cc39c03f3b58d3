package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	imagewatermark "github.com/menta2k/image-watermark"
	"github.com/menta2k/image-watermark/internal/config"
	"github.com/menta2k/image-watermark/internal/logging"
	"github.com/menta2k/image-watermark/internal/utils"
	"github.com/menta2k/image-watermark/pkg/processing"
	"github.com/menta2k/image-watermark/pkg/types"
	"github.com/menta2k/image-watermark/pkg/vector"
)

type options struct {
	in, out, configPath string
	verbose             bool

	text        string
	font        string
	size        float64
	color       string
	rotation    float64
	opacity     float64
	textPos     string
	svg         string
	svgSize     float64
	svgRotation float64
	svgOpacity  float64
	svgPos      string

	quality  int
	lossless bool
	format   string
}

func main() {
	var o options
	flag.StringVar(&o.in, "in", "", "input image path, URL or directory (jpg/png/webp/bmp/tiff)")
	flag.StringVar(&o.out, "out", "out", "output file or directory")
	flag.StringVar(&o.configPath, "config", "", "config file (json, toml or yaml)")
	flag.BoolVar(&o.verbose, "v", false, "verbose logging")

	flag.StringVar(&o.text, "text", "", "text watermark content")
	flag.StringVar(&o.font, "font", string(types.FontArial), "font family")
	flag.Float64Var(&o.size, "size", 20, "font size in display pixels (12-72)")
	flag.StringVar(&o.color, "color", "#ffffff", "text color as #rrggbb")
	flag.Float64Var(&o.rotation, "rotation", 0, "text rotation in degrees (-180..180)")
	flag.Float64Var(&o.opacity, "opacity", 1, "text opacity (0..1)")
	flag.StringVar(&o.textPos, "text-pos", "", "text baseline anchor in display pixels as x,y (default 50,50)")

	flag.StringVar(&o.svg, "svg", "", "SVG logo watermark file")
	flag.Float64Var(&o.svgSize, "svg-size", 100, "logo width in display pixels (20-200)")
	flag.Float64Var(&o.svgRotation, "svg-rotation", 0, "logo rotation in degrees (-180..180)")
	flag.Float64Var(&o.svgOpacity, "svg-opacity", 1, "logo opacity (0..1)")
	flag.StringVar(&o.svgPos, "svg-pos", "", "logo top-left anchor in display pixels as x,y (default 100,100)")

	flag.IntVar(&o.quality, "quality", 0, "JPEG/WebP quality (1-100); config default when 0")
	flag.BoolVar(&o.lossless, "lossless", false, "WebP lossless mode")
	flag.StringVar(&o.format, "ext", "", "output format: png|jpg|webp; config default when empty")
	flag.Parse()

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewLogger(os.Stderr, level, "text")

	if o.in == "" || (o.text == "" && o.svg == "") {
		fmt.Fprintf(os.Stderr, "usage: %s -in input.jpg|URL|dir [-text SALE] [-svg logo.svg] [-out out]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(context.Background(), o, logger); err != nil {
		logger.Error("watermark failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, logger *slog.Logger) error {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.LoadFromFile(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if o.quality != 0 {
		cfg.Export.Quality = o.quality
	}
	if o.lossless {
		cfg.Export.Lossless = true
	}
	if o.format != "" {
		cfg.Export.Format = o.format
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts, err := buildOptions(o)
	if err != nil {
		return err
	}

	wm, err := imagewatermark.NewWithConfig(imagewatermark.Config{
		MaxDisplay:   cfg.Display.MaxDimension,
		Interpolator: cfg.Render.Interpolator,
		Export:       cfg.EncodeOptions(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	ext := string(cfg.ExportFormat())
	proc := processing.NewProcessor()

	if utils.DirExists(o.in) {
		files, err := utils.ListImageFiles(o.in)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no images found in %s", o.in)
		}
		failed := 0
		for _, f := range files {
			dst := utils.GenerateOutputFilename(f, o.out, "_watermarked", ext)
			if err := apply(ctx, wm, proc, f, dst, opts, logger); err != nil {
				logger.Error("skipping image", "file", f, "error", err)
				failed++
			}
		}
		logger.Info("batch finished", "images", len(files), "failed", failed)
		if failed > 0 {
			return fmt.Errorf("%d of %d images failed", failed, len(files))
		}
		return nil
	}

	dst := o.out
	if !utils.IsImageFile(dst) {
		dst = utils.GenerateOutputFilename(sourceName(o.in), o.out, "_watermarked", ext)
	}
	return apply(ctx, wm, proc, o.in, dst, opts, logger)
}

// buildOptions validates the control ranges and turns flags into overlay
// options. An opacity of 0 leaves that overlay out, which renders the same.
func buildOptions(o options) (imagewatermark.ApplyOptions, error) {
	var opts imagewatermark.ApplyOptions

	if o.text != "" && o.opacity > 0 {
		if err := inRange("size", o.size, 12, 72); err != nil {
			return opts, err
		}
		if err := inRange("rotation", o.rotation, -180, 180); err != nil {
			return opts, err
		}
		if err := inRange("opacity", o.opacity, 0, 1); err != nil {
			return opts, err
		}
		family, err := types.ParseFontFamily(o.font)
		if err != nil {
			return opts, err
		}
		anchor, err := parsePoint(o.textPos)
		if err != nil {
			return opts, fmt.Errorf("text-pos: %w", err)
		}
		opts.Text = &imagewatermark.TextOptions{
			Content:     o.text,
			FontSizePx:  o.size,
			Color:       o.color,
			FontFamily:  family,
			RotationDeg: o.rotation,
			Opacity:     o.opacity,
			Anchor:      anchor,
		}
	}

	if o.svg != "" && o.svgOpacity > 0 {
		if err := inRange("svg-size", o.svgSize, 20, 200); err != nil {
			return opts, err
		}
		if err := inRange("svg-rotation", o.svgRotation, -180, 180); err != nil {
			return opts, err
		}
		if err := inRange("svg-opacity", o.svgOpacity, 0, 1); err != nil {
			return opts, err
		}
		data, err := os.ReadFile(o.svg)
		if err != nil {
			return opts, fmt.Errorf("failed to read svg: %w", err)
		}
		if mt := mimetype.Detect(data); !vector.Accepts(mt.String()) {
			return opts, fmt.Errorf("%s is %s, not %s", o.svg, mt.String(), vector.MediaType)
		}
		anchor, err := parsePoint(o.svgPos)
		if err != nil {
			return opts, fmt.Errorf("svg-pos: %w", err)
		}
		opts.Vector = &imagewatermark.VectorOptions{
			Name:        filepath.Base(o.svg),
			Data:        data,
			SizePx:      o.svgSize,
			RotationDeg: o.svgRotation,
			Opacity:     o.svgOpacity,
			Anchor:      anchor,
		}
	}
	return opts, nil
}

func apply(ctx context.Context, wm *imagewatermark.Watermarker, proc *processing.Processor, src, dst string, opts imagewatermark.ApplyOptions, logger *slog.Logger) error {
	base, err := proc.ReadSource(ctx, src)
	if err != nil {
		return err
	}
	if mt := mimetype.Detect(base); !strings.HasPrefix(mt.String(), "image/") {
		return fmt.Errorf("%s is %s, not an image", src, mt.String())
	}

	if err := utils.EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	var buf bytes.Buffer
	opts.Filename = dst
	res, err := wm.Apply(ctx, &buf, base, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	logger.Info("wrote watermarked image",
		"src", src,
		"dst", dst,
		"format", res.Format,
		"size", fmt.Sprintf("%dx%d", res.Width, res.Height),
		"bytes", utils.FormatFileSize(int64(buf.Len())))
	return nil
}

func inRange(name string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s must be between %g and %g, got %g", name, lo, hi, v)
	}
	return nil
}

// parsePoint reads "x,y"; empty input keeps the overlay's default anchor
func parsePoint(s string) (*types.Point, error) {
	if s == "" {
		return nil, nil
	}
	var p types.Point
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%g,%g", &p.X, &p.Y); err != nil {
		return nil, fmt.Errorf("expected x,y: %q", s)
	}
	return &p, nil
}

// sourceName returns a file name usable for output naming, also for URLs
func sourceName(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	return utils.SanitizeFilename(filepath.Base(src), "image")
}

package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/menta2k/image-watermark/pkg/overlay"
	"github.com/menta2k/image-watermark/pkg/processing"
	"github.com/menta2k/image-watermark/pkg/types"
	"github.com/menta2k/image-watermark/pkg/vector"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

const logoSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100"><rect width="200" height="100" fill="#00f"/></svg>`

// createTestPNG encodes an opaque gray image
func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{90, 90, 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

// listener records events.
func (r *eventRecorder) listener(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) find(match func(Event) bool) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if match(ev) {
			return ev, true
		}
	}
	return Event{}, false
}

// waitForEvent waits up to timeout for an event matching match.
func waitForEvent(t *testing.T, r *eventRecorder, timeout time.Duration, match func(Event) bool) Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ev, ok := r.find(match); ok {
			return ev
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for event")
	return Event{}
}

func newTestController(t *testing.T, opts Options) (*Controller, *eventRecorder) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger
	}
	c := New(opts)
	t.Cleanup(c.Close)
	r := &eventRecorder{}
	if err := c.AddListener(r.listener); err != nil {
		t.Fatalf("AddListener failed: %v", err)
	}
	return c, r
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
}

func snapshot(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	s, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	return s
}

func loadBase(t *testing.T, c *Controller, w, h int) {
	t.Helper()
	if _, err := c.LoadBase(createTestPNG(t, w, h)); err != nil {
		t.Fatalf("LoadBase failed: %v", err)
	}
	waitIdle(t, c)
}

func TestLifecycle(t *testing.T) {
	c, r := newTestController(t, Options{})

	if s := snapshot(t, c); s.State != StateEmpty {
		t.Fatalf("expected empty state, got %v", s.State)
	}

	loadBase(t, c, 1000, 500)
	s := snapshot(t, c)
	if s.State != StateReady {
		t.Fatalf("expected ready state, got %v", s.State)
	}
	if s.Source != (types.Size{Width: 1000, Height: 500}) || s.Display != (types.Size{Width: 800, Height: 400}) {
		t.Errorf("unexpected geometry: source %v display %v", s.Source, s.Display)
	}
	if s.CanvasWidth != 1000 || s.CanvasHeight != 500 {
		t.Errorf("canvas %dx%d, want 1000x500", s.CanvasWidth, s.CanvasHeight)
	}
	if r.count(EventBaseLoaded) != 1 {
		t.Error("expected one base-loaded event")
	}

	if err := c.SetText("SALE"); err != nil {
		t.Fatal(err)
	}
	if s := snapshot(t, c); s.State != StateEditing {
		t.Errorf("expected editing after mutation, got %v", s.State)
	}

	if _, err := c.Bake(); err != nil {
		t.Fatalf("Bake failed: %v", err)
	}
	if s := snapshot(t, c); s.State != StateBaked {
		t.Errorf("expected baked, got %v", s.State)
	}

	// editing continues after a bake
	if err := c.SetFontSize(30); err != nil {
		t.Fatal(err)
	}
	if s := snapshot(t, c); s.State != StateEditing {
		t.Errorf("expected editing after bake, got %v", s.State)
	}

	var buf bytes.Buffer
	format, err := c.Export(&buf, "")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if format != processing.FormatPNG {
		t.Errorf("expected png export, got %s", format)
	}
	if s := snapshot(t, c); s.State != StateExported {
		t.Errorf("expected exported, got %v", s.State)
	}
	ev, ok := r.find(func(ev Event) bool { return ev.Kind == EventExported })
	if !ok || ev.Name != DefaultFilename {
		t.Errorf("expected exported event for %s, got %+v", DefaultFilename, ev)
	}

	out, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("exported bytes are not a png: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 1000 || b.Dy() != 500 {
		t.Errorf("export is %v, want source resolution", b)
	}
}

func TestOneRenderPerMutation(t *testing.T) {
	c, r := newTestController(t, Options{})
	loadBase(t, c, 200, 100)
	before := r.count(EventRendered)

	c.SetText("A")
	c.SetColor("#ff0000")
	c.SetTextRotation(15)

	if got := r.count(EventRendered) - before; got != 3 {
		t.Errorf("expected 3 renders for 3 mutations, got %d", got)
	}
}

func TestMutationWithoutBaseDoesNotRender(t *testing.T) {
	c, r := newTestController(t, Options{})

	report, err := c.Update(func(s *overlay.State) { s.SetText("SALE") })
	if err != nil {
		t.Fatal(err)
	}
	if report.Rendered || r.count(EventRendered) != 0 {
		t.Error("render without base should be a no-op")
	}
	if s := snapshot(t, c); s.State != StateEmpty || s.Text.Content != "SALE" {
		t.Errorf("unexpected snapshot: %+v", s)
	}
}

func TestEndToEndClickPlacement(t *testing.T) {
	c, _ := newTestController(t, Options{})
	loadBase(t, c, 1000, 500)
	c.SetText("SALE")

	anchor, placed, err := c.Click(types.Point{X: 100, Y: 100}, types.Size{Width: 800, Height: 400})
	if err != nil {
		t.Fatal(err)
	}
	if !placed || anchor != (types.Point{X: 100, Y: 100}) {
		t.Errorf("expected text placed at (100,100), got %v placed=%v", anchor, placed)
	}
	if s := snapshot(t, c); s.Text.Anchor != (types.Point{X: 100, Y: 100}) {
		t.Errorf("stored anchor %v", s.Text.Anchor)
	}
}

func TestClickAccountsForZoom(t *testing.T) {
	c, _ := newTestController(t, Options{})
	loadBase(t, c, 1000, 500)
	c.SetText("SALE")

	for _, z := range []float64{0.5, 1.5, 2, 3} {
		if _, err := c.SetZoom(z); err != nil {
			t.Fatal(err)
		}
		anchor, placed, _ := c.Click(types.Point{X: 100 * z, Y: 50 * z}, types.Size{})
		if !placed || anchor != (types.Point{X: 100, Y: 50}) {
			t.Errorf("zoom %v: anchor %v placed=%v, want (100,50)", z, anchor, placed)
		}
	}

	// a stretched on-screen rectangle scales each axis independently
	anchor, _, _ := c.Click(types.Point{X: 80, Y: 80}, types.Size{Width: 400, Height: 800})
	if anchor != (types.Point{X: 160, Y: 40}) {
		t.Errorf("stretched rect: anchor %v, want (160,40)", anchor)
	}

	if z, _ := c.SetZoom(10); z != 3 {
		t.Errorf("zoom should clamp to 3, got %v", z)
	}
}

func TestClickWithoutContentDoesNothing(t *testing.T) {
	c, _ := newTestController(t, Options{})
	loadBase(t, c, 400, 200)

	_, placed, _ := c.Click(types.Point{X: 10, Y: 10}, types.Size{})
	if placed {
		t.Error("click should not place an empty text overlay")
	}
	if s := snapshot(t, c); s.Text.Anchor != overlay.DefaultText().Anchor || s.State != StateReady {
		t.Errorf("state changed: %+v", s)
	}
}

func TestSelectVectorWithoutAssetIsRejected(t *testing.T) {
	c, _ := newTestController(t, Options{})
	loadBase(t, c, 400, 200)

	ok, err := c.Select(types.OverlayVector)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("selecting vector without asset should be rejected")
	}
	if s := snapshot(t, c); s.Active != types.OverlayText {
		t.Errorf("active overlay changed to %v", s.Active)
	}
}

func TestLoadVector(t *testing.T) {
	c, r := newTestController(t, Options{})
	loadBase(t, c, 1000, 500)

	accepted, err := c.LoadVector("logo.svg", "image/svg+xml", []byte(logoSVG))
	if err != nil || !accepted {
		t.Fatalf("LoadVector: accepted=%v err=%v", accepted, err)
	}
	waitIdle(t, c)

	s := snapshot(t, c)
	if !s.VectorLoaded || s.Vector.AspectRatio != 2 || s.Vector.FileName != "logo.svg" {
		t.Errorf("unexpected vector state: %+v", s.Vector)
	}
	if r.count(EventVectorLoaded) != 1 {
		t.Error("expected vector-loaded event")
	}

	if ok, _ := c.Select(types.OverlayVector); !ok {
		t.Fatal("select vector should succeed once loaded")
	}
	anchor, placed, _ := c.Click(types.Point{X: 300, Y: 200}, types.Size{Width: 800, Height: 400})
	if !placed {
		t.Fatal("expected vector placed")
	}
	if s := snapshot(t, c); s.Vector.Anchor != anchor || s.Text.Anchor == anchor {
		t.Error("click should move only the active overlay")
	}
}

func TestLoadVectorWrongTypeIgnored(t *testing.T) {
	c, r := newTestController(t, Options{})
	loadBase(t, c, 400, 200)
	before := snapshot(t, c)

	accepted, err := c.LoadVector("photo.png", "image/png", createTestPNG(t, 10, 10))
	if err != nil {
		t.Fatal(err)
	}
	if accepted {
		t.Error("png should not be accepted as vector asset")
	}
	waitIdle(t, c)

	after := snapshot(t, c)
	if after.VectorLoaded || after.State != before.State || after.Pending != 0 {
		t.Errorf("state changed after rejected asset: %+v", after)
	}
	ev, ok := r.find(func(ev Event) bool { return ev.Kind == EventVectorRejected })
	if !ok || !errors.Is(ev.Err, vector.ErrUnsupportedType) {
		t.Errorf("expected vector-rejected event, got %+v", ev)
	}
}

func TestMalformedVectorKeepsPrior(t *testing.T) {
	c, r := newTestController(t, Options{})
	loadBase(t, c, 400, 200)
	c.LoadVector("logo.svg", vector.MediaType, []byte(logoSVG))
	waitIdle(t, c)

	c.LoadVector("broken.svg", vector.MediaType, []byte("<html>nope</html>"))
	waitIdle(t, c)

	s := snapshot(t, c)
	if !s.VectorLoaded || s.Vector.FileName != "logo.svg" || s.Vector.AspectRatio != 2 {
		t.Errorf("malformed asset replaced the previous one: %+v", s.Vector)
	}
	if r.count(EventVectorFailed) != 1 {
		t.Error("expected vector-failed event")
	}
}

func TestMalformedBaseKeepsPrior(t *testing.T) {
	c, r := newTestController(t, Options{})

	c.LoadBase([]byte("garbage"))
	waitIdle(t, c)
	if s := snapshot(t, c); s.State != StateEmpty {
		t.Errorf("failed first load should return to empty, got %v", s.State)
	}

	loadBase(t, c, 300, 200)
	c.SetText("SALE")
	c.LoadBase([]byte("garbage"))
	waitIdle(t, c)

	s := snapshot(t, c)
	if s.State != StateEditing || s.Source != (types.Size{Width: 300, Height: 200}) || s.CanvasWidth != 300 {
		t.Errorf("failed load changed the session: %+v", s)
	}
	if r.count(EventBaseFailed) != 2 {
		t.Errorf("expected 2 base-failed events, got %d", r.count(EventBaseFailed))
	}
}

func TestDecoderPanicIsLocal(t *testing.T) {
	c, r := newTestController(t, Options{
		DecodeImage: func([]byte) (image.Image, error) { panic("boom") },
	})

	c.LoadBase([]byte("x"))
	waitIdle(t, c)

	ev, ok := r.find(func(ev Event) bool { return ev.Kind == EventBaseFailed })
	if !ok || !strings.Contains(ev.Err.Error(), "boom") {
		t.Errorf("expected base-failed event carrying the panic, got %+v", ev)
	}
	if s := snapshot(t, c); s.State != StateEmpty {
		t.Errorf("expected empty, got %v", s.State)
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	c, r := newTestController(t, Options{})
	loadBase(t, c, 400, 200)
	clean, err := c.Image()
	if err != nil {
		t.Fatal(err)
	}

	c.SetText("SALE")
	c.SetTextOpacity(0.4)
	c.LoadVector("logo.svg", vector.MediaType, []byte(logoSVG))
	waitIdle(t, c)
	c.Select(types.OverlayVector)
	c.SetZoom(2)

	gen, err := c.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if gen != 1 {
		t.Errorf("expected generation 1, got %d", gen)
	}
	waitIdle(t, c)

	s := snapshot(t, c)
	if s.State != StateReady {
		t.Errorf("expected ready after reset, got %v", s.State)
	}
	if s.Text.Content != "" || s.Text.Opacity != overlay.DefaultOpacity {
		t.Errorf("text not reset: %+v", s.Text)
	}
	if s.VectorLoaded || s.Vector.FileName != "" {
		t.Errorf("vector not reset: %+v", s.Vector)
	}
	if s.Active != types.OverlayText || s.Zoom != 1 {
		t.Errorf("selector or zoom not reset: %v %v", s.Active, s.Zoom)
	}

	img, err := c.Image()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(img.Pix, clean.Pix) {
		t.Error("render after reset should show only the base image")
	}

	resetEv, _ := r.find(func(ev Event) bool { return ev.Kind == EventReset })
	reloadEv, _ := r.find(func(ev Event) bool { return ev.Kind == EventBaseLoaded && ev.Generation == 1 })
	if resetEv.Kind == "" || reloadEv.Kind == "" {
		t.Error("expected reset followed by a base reload in the new generation")
	}
}

func TestResetWithoutBase(t *testing.T) {
	c, _ := newTestController(t, Options{})
	c.SetText("x")
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, c)
	if s := snapshot(t, c); s.State != StateEmpty || s.Text.Content != "" {
		t.Errorf("unexpected state after reset: %+v", s)
	}
}

// newGatedController returns a controller whose base decodes of data
// prefixed with "slow:" block until gate is closed.
func newGatedController(t *testing.T, opts Options) (*Controller, *eventRecorder, chan struct{}) {
	t.Helper()
	gate := make(chan struct{})
	proc := processing.NewProcessor()
	opts.DecodeImage = func(data []byte) (image.Image, error) {
		if rest, ok := bytes.CutPrefix(data, []byte("slow:")); ok {
			<-gate
			data = rest
		}
		img, _, err := proc.Decode(data)
		return img, err
	}
	c, r := newTestController(t, opts)
	return c, r, gate
}

func TestStaleBaseDecodeDropped(t *testing.T) {
	c, r, gate := newGatedController(t, Options{})
	loadBase(t, c, 300, 200)

	slow := append([]byte("slow:"), createTestPNG(t, 50, 50)...)
	if _, err := c.LoadBase(slow); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	if s := snapshot(t, c); s.State != StateLoadingBase || s.Generation != 1 {
		t.Fatalf("expected reset to restart loading, got %v gen %d", s.State, s.Generation)
	}

	close(gate)
	waitIdle(t, c)

	// the pending replacement is what reset decodes again
	if r.count(EventStaleDecodeDropped) != 1 {
		t.Errorf("expected one stale decode dropped, got %d", r.count(EventStaleDecodeDropped))
	}
	if _, ok := r.find(func(ev Event) bool { return ev.Kind == EventBaseLoaded && ev.Generation == 1 }); !ok {
		t.Error("expected a base reload in the new generation")
	}
	s := snapshot(t, c)
	if s.Source != (types.Size{Width: 50, Height: 50}) || s.State != StateReady {
		t.Errorf("expected the requested image after reset: %+v", s)
	}
}

func TestResetDuringInitialLoad(t *testing.T) {
	c, r, gate := newGatedController(t, Options{})

	slow := append([]byte("slow:"), createTestPNG(t, 300, 200)...)
	if _, err := c.LoadBase(slow); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	if s := snapshot(t, c); s.State != StateLoadingBase {
		t.Fatalf("reset during first load should keep loading, got %v", s.State)
	}

	close(gate)
	waitIdle(t, c)

	s := snapshot(t, c)
	if s.State != StateReady || s.Source != (types.Size{Width: 300, Height: 200}) {
		t.Errorf("photo lost by reset: %+v", s)
	}
	if s.CanvasWidth != 300 || s.CanvasHeight != 200 {
		t.Errorf("expected 300x200 canvas, got %dx%d", s.CanvasWidth, s.CanvasHeight)
	}
	if r.count(EventStaleDecodeDropped) != 1 || r.count(EventBaseFailed) != 0 {
		t.Errorf("expected only the pre-reset decode dropped: stale=%d failed=%d",
			r.count(EventStaleDecodeDropped), r.count(EventBaseFailed))
	}
}

func TestResetDropsPendingVector(t *testing.T) {
	gate := make(chan struct{})
	c, r := newTestController(t, Options{
		DecodeVector: func(name string, data []byte) (*vector.Asset, error) {
			<-gate
			return vector.Decode(name, data)
		},
	})
	loadBase(t, c, 400, 200)

	if _, err := c.LoadVector("logo.svg", vector.MediaType, []byte(logoSVG)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, r, 2*time.Second, func(ev Event) bool {
		return ev.Kind == EventBaseLoaded && ev.Generation == 1
	})

	close(gate)
	waitIdle(t, c)

	s := snapshot(t, c)
	if s.VectorLoaded || s.Vector.FileName != "" {
		t.Errorf("vector from before the reset landed: %+v", s.Vector)
	}
	if s.State != StateReady {
		t.Errorf("expected ready, got %v", s.State)
	}
	if r.count(EventStaleDecodeDropped) != 1 || r.count(EventVectorLoaded) != 0 {
		t.Error("expected the pre-reset vector decode to be dropped")
	}
}

func TestBakeWhileLoadingBase(t *testing.T) {
	t.Run("decode succeeds", func(t *testing.T) {
		c, _, gate := newGatedController(t, Options{})
		loadBase(t, c, 300, 200)

		c.LoadBase(append([]byte("slow:"), createTestPNG(t, 50, 50)...))
		if _, err := c.Bake(); err != nil {
			t.Fatal(err)
		}
		if s := snapshot(t, c); s.State != StateLoadingBase {
			t.Errorf("bake should not leave LOADING_BASE, got %v", s.State)
		}

		close(gate)
		waitIdle(t, c)
		if s := snapshot(t, c); s.State != StateReady || s.Source.Width != 50 {
			t.Errorf("expected ready with the new image: %+v", s)
		}
	})

	t.Run("decode fails", func(t *testing.T) {
		c, _, gate := newGatedController(t, Options{})
		loadBase(t, c, 300, 200)

		c.LoadBase([]byte("slow:not an image"))
		if _, err := c.Bake(); err != nil {
			t.Fatal(err)
		}

		close(gate)
		waitIdle(t, c)
		if s := snapshot(t, c); s.State != StateBaked || s.Source.Width != 300 {
			t.Errorf("expected the bake to stand: %+v", s)
		}
	})
}

func TestNewerVectorSupersedesOlder(t *testing.T) {
	gate := make(chan struct{})
	c, r := newTestController(t, Options{
		DecodeVector: func(name string, data []byte) (*vector.Asset, error) {
			if name == "old.svg" {
				<-gate
			}
			return vector.Decode(name, data)
		},
	})
	loadBase(t, c, 400, 200)

	c.LoadVector("old.svg", vector.MediaType, []byte(logoSVG))
	c.LoadVector("new.svg", vector.MediaType, []byte(logoSVG))
	waitForEvent(t, r, 2*time.Second, func(ev Event) bool {
		return ev.Kind == EventVectorLoaded && ev.Name == "new.svg"
	})

	close(gate)
	waitIdle(t, c)

	if s := snapshot(t, c); s.Vector.FileName != "new.svg" {
		t.Errorf("older decode replaced newer asset: %s", s.Vector.FileName)
	}
	if r.count(EventStaleDecodeDropped) != 1 {
		t.Error("expected the older vector decode to be dropped")
	}
}

func TestBakeAndExportRequireRender(t *testing.T) {
	c, _ := newTestController(t, Options{})

	if _, err := c.Bake(); !errors.Is(err, ErrNothingRendered) {
		t.Errorf("Bake: expected ErrNothingRendered, got %v", err)
	}
	var buf bytes.Buffer
	if _, err := c.Export(&buf, "out.png"); !errors.Is(err, ErrNothingRendered) {
		t.Errorf("Export: expected ErrNothingRendered, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written")
	}
}

func TestExportFormatFromFilename(t *testing.T) {
	c, _ := newTestController(t, Options{})
	loadBase(t, c, 64, 32)

	var buf bytes.Buffer
	format, err := c.Export(&buf, "product.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if format != processing.FormatJPEG {
		t.Errorf("expected jpeg, got %s", format)
	}
	if _, kind, err := image.Decode(&buf); err != nil || kind != "jpeg" {
		t.Errorf("export is not a jpeg: %v %s", err, kind)
	}
}

func TestClosedController(t *testing.T) {
	c := New(Options{Logger: discardLogger})
	c.Close()
	c.Close()

	if err := c.SetText("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := c.Snapshot(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := c.WaitIdle(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestWaitIdleHonorsContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	c, _ := newTestController(t, Options{
		DecodeImage: func([]byte) (image.Image, error) {
			<-gate
			return nil, errors.New("never")
		},
	})
	c.LoadBase([]byte("x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.WaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if s := snapshot(t, c); s.State != StateLoadingBase || s.Pending != 1 {
		t.Errorf("unexpected snapshot while decoding: %+v", s)
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateEmpty:       "empty",
		StateLoadingBase: "loading_base",
		StateReady:       "ready",
		StateEditing:     "editing",
		StateBaked:       "baked",
		StateExported:    "exported",
		State(99):        "unknown",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("State(%d).String() = %s, want %s", s, s.String(), name)
		}
	}
}

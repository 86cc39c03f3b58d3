// Package session owns the watermark editing lifecycle: loading the base
// photo, mutating overlays, rendering, baking, exporting and resetting.
//
// All session state lives on a single event-loop goroutine. Public methods
// post typed events to the loop and wait for its reply, so every mutation is
// followed by exactly one compositor pass before the call returns. Decodes
// run on their own goroutines and post their result back; each carries the
// generation it was started in and is dropped if a reset happened since.
package session

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/menta2k/image-watermark/pkg/compositor"
	"github.com/menta2k/image-watermark/pkg/geometry"
	"github.com/menta2k/image-watermark/pkg/overlay"
	"github.com/menta2k/image-watermark/pkg/processing"
	"github.com/menta2k/image-watermark/pkg/types"
	"github.com/menta2k/image-watermark/pkg/vector"
)

// ImageDecoder decodes base image bytes
type ImageDecoder func(data []byte) (image.Image, error)

// VectorDecoder decodes a vector asset
type VectorDecoder func(name string, data []byte) (*vector.Asset, error)

// Options configures a Controller
type Options struct {
	Compositor *compositor.Compositor
	Processor  *processing.Processor
	// MaxDisplay bounds the longer display side; 0 means 800
	MaxDisplay float64
	Export     processing.EncodeOptions
	Logger     *slog.Logger

	// DecodeImage and DecodeVector replace the default decoders
	DecodeImage  ImageDecoder
	DecodeVector VectorDecoder
}

// Controller runs one watermark editing session
type Controller struct {
	events    chan interface{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	comp         *compositor.Compositor
	proc         *processing.Processor
	logger       *slog.Logger
	maxDisplay   float64
	exportOpts   processing.EncodeOptions
	decodeImage  ImageDecoder
	decodeVector VectorDecoder

	// owned by the loop goroutine
	state      State
	resume     State
	generation uint64
	baseSeq    uint64
	vectorSeq  uint64
	baseData   []byte
	requested  []byte
	base       image.Image
	mapper     geometry.Mapper
	zoom       float64
	overlays   *overlay.State
	canvas     *compositor.Canvas
	pending    int
	idle       []chan struct{}
	listeners  []Listener
}

// New constructs a controller and starts its event loop
func New(opts Options) *Controller {
	c := &Controller{
		events:       make(chan interface{}, 64),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		comp:         opts.Compositor,
		proc:         opts.Processor,
		logger:       opts.Logger,
		maxDisplay:   opts.MaxDisplay,
		exportOpts:   opts.Export,
		decodeImage:  opts.DecodeImage,
		decodeVector: opts.DecodeVector,
		state:        StateEmpty,
		zoom:         geometry.DefaultZoom,
		overlays:     overlay.New(),
		canvas:       compositor.NewCanvas(),
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.comp == nil {
		c.comp = compositor.NewWithOptions(compositor.Options{Logger: c.logger})
	}
	if c.proc == nil {
		c.proc = processing.NewProcessor()
	}
	if c.maxDisplay <= 0 {
		c.maxDisplay = geometry.DefaultMaxDisplay
	}
	if c.decodeImage == nil {
		c.decodeImage = func(data []byte) (image.Image, error) {
			img, _, err := c.proc.Decode(data)
			return img, err
		}
	}
	if c.decodeVector == nil {
		c.decodeVector = vector.Decode
	}

	go func() {
		defer close(c.stopped)
		defer c.closeOnce.Do(func() { close(c.done) })
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("session loop panic", "error", r, "stack", string(debug.Stack()))
			}
		}()
		c.loop()
	}()
	return c
}

// events
type (
	evtAddListener struct{ l Listener }
	evtLoadBase    struct {
		data  []byte
		reply chan uint64
	}
	evtBaseDecoded struct {
		generation, seq uint64
		data            []byte
		img             image.Image
		err             error
	}
	evtLoadVector struct {
		name, mediaType string
		data            []byte
		reply           chan bool
	}
	evtVectorDecoded struct {
		generation, seq uint64
		asset           *vector.Asset
		err             error
	}
	evtMutate struct {
		fn    func(*overlay.State)
		reply chan compositor.Report
	}
	evtSelect struct {
		kind  types.OverlayKind
		reply chan bool
	}
	evtClick struct {
		pointer types.Point
		rect    types.Size
		reply   chan clickResult
	}
	evtZoom struct {
		zoom  float64
		reply chan float64
	}
	evtBake     struct{ reply chan bakeResult }
	evtCapture  struct{ reply chan *image.RGBA }
	evtExported struct{ filename string }
	evtReset    struct{ reply chan uint64 }
	evtSnapshot struct{ reply chan Snapshot }
	evtWaitIdle struct{ reply chan struct{} }
)

type clickResult struct {
	anchor types.Point
	placed bool
}

type bakeResult struct {
	report compositor.Report
	err    error
}

func (c *Controller) loop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev interface{}) {
	switch e := ev.(type) {
	case evtAddListener:
		c.listeners = append(c.listeners, e.l)
	case evtLoadBase:
		e.reply <- c.startBaseDecode(e.data)
	case evtBaseDecoded:
		c.finishBaseDecode(e)
	case evtLoadVector:
		e.reply <- c.startVectorDecode(e.name, e.mediaType, e.data)
	case evtVectorDecoded:
		c.finishVectorDecode(e)
	case evtMutate:
		e.fn(c.overlays)
		c.edited()
		e.reply <- c.render()
	case evtSelect:
		e.reply <- c.overlays.Select(e.kind)
	case evtClick:
		e.reply <- c.click(e.pointer, e.rect)
	case evtZoom:
		c.zoom = geometry.ClampZoom(e.zoom)
		c.render()
		e.reply <- c.zoom
	case evtBake:
		e.reply <- c.bake()
	case evtCapture:
		e.reply <- c.canvas.Snapshot()
	case evtExported:
		c.settle(StateExported)
		c.emit(Event{Kind: EventExported, Name: e.filename})
	case evtReset:
		e.reply <- c.reset()
	case evtSnapshot:
		e.reply <- c.snapshot()
	case evtWaitIdle:
		if c.pending == 0 {
			close(e.reply)
		} else {
			c.idle = append(c.idle, e.reply)
		}
	}
}

func (c *Controller) transition(next State) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	c.logger.Debug("session state transition", "from", prev.String(), "to", next.String(), "generation", c.generation)
}

func (c *Controller) emit(ev Event) {
	ev.Generation = c.generation
	ev.State = c.state
	for _, l := range c.listeners {
		l(ev)
	}
}

// render runs one full compositor pass
func (c *Controller) render() compositor.Report {
	report := c.comp.Render(c.canvas, c.base, c.overlays, c.mapper)
	if report.Rendered {
		c.emit(Event{Kind: EventRendered, Report: report})
	}
	return report
}

// edited moves an interactive session into EDITING
func (c *Controller) edited() {
	switch c.state {
	case StateReady, StateBaked, StateExported:
		c.transition(StateEditing)
	case StateLoadingBase:
		switch c.resume {
		case StateReady, StateBaked, StateExported:
			c.resume = StateEditing
		}
	}
}

// settle moves to next, or while a base decode is pending records next as
// the state a failed decode falls back to. A successful decode always
// lands in READY.
func (c *Controller) settle(next State) {
	if c.state == StateLoadingBase {
		c.resume = next
		return
	}
	c.transition(next)
}

func (c *Controller) startBaseDecode(data []byte) uint64 {
	if c.state != StateLoadingBase {
		c.resume = c.state
	}
	c.transition(StateLoadingBase)
	c.requested = data

	c.baseSeq++
	gen, seq := c.generation, c.baseSeq
	c.pending++
	go func() {
		img, err := decodeSafely(func() (image.Image, error) { return c.decodeImage(data) })
		c.post(evtBaseDecoded{generation: gen, seq: seq, data: data, img: img, err: err})
	}()
	return gen
}

func (c *Controller) finishBaseDecode(e evtBaseDecoded) {
	defer c.decodeDone()

	if e.generation != c.generation || e.seq != c.baseSeq {
		c.logger.Warn("dropping stale base decode", "generation", e.generation, "current", c.generation)
		c.emit(Event{Kind: EventStaleDecodeDropped, Err: fmt.Errorf("base decode from generation %d superseded", e.generation)})
		return
	}

	if e.err != nil || e.img == nil || e.img.Bounds().Empty() {
		err := e.err
		if err == nil {
			err = fmt.Errorf("decoded base image is empty")
		}
		c.logger.Warn("base image decode failed", "error", err)
		c.requested = c.baseData
		next := c.resume
		if c.base == nil {
			next = StateEmpty
		}
		c.transition(next)
		c.emit(Event{Kind: EventBaseFailed, Err: fmt.Errorf("failed to decode base image: %w", err)})
		return
	}

	b := e.img.Bounds()
	c.base = e.img
	c.baseData = e.data
	c.mapper = geometry.NewMapper(b.Dx(), b.Dy(), c.maxDisplay)
	c.transition(StateReady)
	report := c.render()
	c.emit(Event{Kind: EventBaseLoaded, Report: report})
}

func (c *Controller) startVectorDecode(name, mediaType string, data []byte) bool {
	if !vector.Accepts(mediaType) {
		c.logger.Debug("ignoring vector asset", "name", name, "type", mediaType)
		c.emit(Event{Kind: EventVectorRejected, Name: name, Err: fmt.Errorf("%w: %s", vector.ErrUnsupportedType, mediaType)})
		return false
	}

	c.vectorSeq++
	gen, seq := c.generation, c.vectorSeq
	c.pending++
	go func() {
		asset, err := decodeSafely(func() (*vector.Asset, error) { return c.decodeVector(name, data) })
		c.post(evtVectorDecoded{generation: gen, seq: seq, asset: asset, err: err})
	}()
	return true
}

func (c *Controller) finishVectorDecode(e evtVectorDecoded) {
	defer c.decodeDone()

	if e.generation != c.generation || e.seq != c.vectorSeq {
		c.logger.Warn("dropping stale vector decode", "generation", e.generation, "current", c.generation)
		c.emit(Event{Kind: EventStaleDecodeDropped, Err: fmt.Errorf("vector decode from generation %d superseded", e.generation)})
		return
	}
	if e.err != nil || e.asset == nil {
		err := e.err
		if err == nil {
			err = vector.ErrEmpty
		}
		c.logger.Warn("vector asset decode failed", "error", err)
		c.emit(Event{Kind: EventVectorFailed, Err: fmt.Errorf("failed to decode vector asset: %w", err)})
		return
	}

	c.overlays.SetVectorAsset(e.asset)
	c.edited()
	report := c.render()
	c.emit(Event{Kind: EventVectorLoaded, Name: e.asset.Name, Report: report})
}

func (c *Controller) decodeDone() {
	c.pending--
	if c.pending > 0 {
		return
	}
	for _, ch := range c.idle {
		close(ch)
	}
	c.idle = nil
}

func (c *Controller) click(pointer types.Point, rect types.Size) clickResult {
	if !c.mapper.Valid() {
		return clickResult{}
	}
	if rect.Empty() {
		rect = c.mapper.OnScreen(c.zoom)
	}
	anchor := c.mapper.PointerToDisplay(pointer, rect)
	if !c.overlays.Place(anchor) {
		return clickResult{anchor: anchor}
	}
	c.edited()
	c.render()
	return clickResult{anchor: anchor, placed: true}
}

func (c *Controller) bake() bakeResult {
	if c.base == nil {
		return bakeResult{err: ErrNothingRendered}
	}
	report := c.render()
	c.settle(StateBaked)
	c.emit(Event{Kind: EventBaked, Report: report})
	return bakeResult{report: report}
}

// reset clears every overlay and decoded handle, then decodes the most
// recently requested base bytes again under a new generation. A base load
// still in flight is restarted rather than lost.
func (c *Controller) reset() uint64 {
	c.generation++
	c.overlays.Reset()
	c.base = nil
	c.mapper = geometry.Mapper{}
	c.zoom = geometry.DefaultZoom
	c.canvas.Discard()
	c.resume = StateEmpty

	data := c.requested
	if data == nil {
		data = c.baseData
	}
	if data == nil {
		c.transition(StateEmpty)
		c.emit(Event{Kind: EventReset})
		return c.generation
	}
	c.transition(StateLoadingBase)
	c.emit(Event{Kind: EventReset})
	c.startBaseDecode(data)
	return c.generation
}

func (c *Controller) snapshot() Snapshot {
	w, h := c.canvas.Size()
	return Snapshot{
		State:        c.state,
		Generation:   c.generation,
		Text:         c.overlays.Text,
		Vector:       c.overlays.Vector,
		VectorLoaded: c.overlays.Vector.Renderable(),
		Active:       c.overlays.Active,
		Source:       c.mapper.Source,
		Display:      c.mapper.Display,
		Zoom:         c.zoom,
		CanvasWidth:  w,
		CanvasHeight: h,
		Pending:      c.pending,
	}
}

// post delivers a decode result unless the controller has been closed
func (c *Controller) post(ev interface{}) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) send(ev interface{}) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func await[T any](c *Controller, reply chan T) (T, error) {
	select {
	case v := <-reply:
		return v, nil
	case <-c.stopped:
		var zero T
		return zero, ErrClosed
	}
}

func call[T any](c *Controller, ev interface{}, reply chan T) (T, error) {
	if err := c.send(ev); err != nil {
		var zero T
		return zero, err
	}
	return await(c, reply)
}

// AddListener registers l for all future events
func (c *Controller) AddListener(l Listener) error {
	if l == nil {
		return nil
	}
	return c.send(evtAddListener{l: l})
}

// LoadBase starts decoding a base image. The result arrives asynchronously
// as a base-loaded or base-failed event; a failed decode leaves the
// previous base image in place. It returns the generation the decode
// belongs to.
func (c *Controller) LoadBase(data []byte) (uint64, error) {
	reply := make(chan uint64, 1)
	return call(c, evtLoadBase{data: data, reply: reply}, reply)
}

// LoadBaseSource reads a base image from a file path or http(s) URL and
// starts decoding it.
func (c *Controller) LoadBaseSource(ctx context.Context, source string) (uint64, error) {
	data, err := c.proc.ReadSource(ctx, source)
	if err != nil {
		return 0, err
	}
	return c.LoadBase(data)
}

// LoadVector starts decoding a vector asset. Assets whose declared media
// type is not SVG are ignored and false is returned; a vector-rejected
// event is still reported.
func (c *Controller) LoadVector(name, mediaType string, data []byte) (bool, error) {
	reply := make(chan bool, 1)
	return call(c, evtLoadVector{name: name, mediaType: mediaType, data: data, reply: reply}, reply)
}

// Update applies fn to the overlay state and renders once
func (c *Controller) Update(fn func(*overlay.State)) (compositor.Report, error) {
	reply := make(chan compositor.Report, 1)
	return call(c, evtMutate{fn: fn, reply: reply}, reply)
}

// SetText replaces the text content and re-renders
func (c *Controller) SetText(content string) error {
	return c.update(func(s *overlay.State) { s.SetText(content) })
}

// SetFontSize sets the display-space font size and re-renders
func (c *Controller) SetFontSize(px float64) error {
	return c.update(func(s *overlay.State) { s.SetFontSize(px) })
}

// SetColor sets the #rrggbb text color and re-renders
func (c *Controller) SetColor(hex string) error {
	return c.update(func(s *overlay.State) { s.SetColor(hex) })
}

// SetFontFamily selects the text font family and re-renders
func (c *Controller) SetFontFamily(f types.FontFamily) error {
	return c.update(func(s *overlay.State) { s.SetFontFamily(f) })
}

// SetTextRotation sets the text rotation in degrees and re-renders
func (c *Controller) SetTextRotation(deg float64) error {
	return c.update(func(s *overlay.State) { s.SetTextRotation(deg) })
}

// SetTextOpacity sets the text opacity and re-renders
func (c *Controller) SetTextOpacity(opacity float64) error {
	return c.update(func(s *overlay.State) { s.SetTextOpacity(opacity) })
}

// SetVectorSize sets the display-space vector width and re-renders
func (c *Controller) SetVectorSize(px float64) error {
	return c.update(func(s *overlay.State) { s.SetVectorSize(px) })
}

// SetVectorRotation sets the vector rotation in degrees and re-renders
func (c *Controller) SetVectorRotation(deg float64) error {
	return c.update(func(s *overlay.State) { s.SetVectorRotation(deg) })
}

// SetVectorOpacity sets the vector opacity and re-renders
func (c *Controller) SetVectorOpacity(opacity float64) error {
	return c.update(func(s *overlay.State) { s.SetVectorOpacity(opacity) })
}

func (c *Controller) update(fn func(*overlay.State)) error {
	_, err := c.Update(fn)
	return err
}

// Select makes kind the active overlay. It reports false, leaving the
// selection unchanged, when that overlay has no content.
func (c *Controller) Select(kind types.OverlayKind) (bool, error) {
	reply := make(chan bool, 1)
	return call(c, evtSelect{kind: kind, reply: reply}, reply)
}

// Click places the active overlay at a pointer position given in the local
// coordinates of an on-screen rectangle of size rect. An empty rect means
// the canvas as currently zoomed. It returns the stored display-space
// anchor and whether an overlay moved.
func (c *Controller) Click(pointer types.Point, rect types.Size) (types.Point, bool, error) {
	reply := make(chan clickResult, 1)
	res, err := call(c, evtClick{pointer: pointer, rect: rect, reply: reply}, reply)
	return res.anchor, res.placed, err
}

// SetZoom changes the canvas zoom, clamped to [0.5, 3], and re-renders
func (c *Controller) SetZoom(zoom float64) (float64, error) {
	reply := make(chan float64, 1)
	return call(c, evtZoom{zoom: zoom, reply: reply}, reply)
}

// Bake renders the current state as the exportable artifact. Editing may
// continue afterwards.
func (c *Controller) Bake() (compositor.Report, error) {
	reply := make(chan bakeResult, 1)
	res, err := call(c, evtBake{reply: reply}, reply)
	if err != nil {
		return compositor.Report{}, err
	}
	return res.report, res.err
}

// Image returns a copy of the last rendered canvas
func (c *Controller) Image() (*image.RGBA, error) {
	reply := make(chan *image.RGBA, 1)
	img, err := call(c, evtCapture{reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrNothingRendered
	}
	return img, nil
}

// Export encodes whatever was last rendered to w. The format follows the
// filename's extension, PNG by default. No prior bake is required.
func (c *Controller) Export(w io.Writer, filename string) (processing.Format, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	img, err := c.Image()
	if err != nil {
		return "", err
	}
	format := processing.FormatFromFilename(filename)
	if err := c.proc.Encode(w, img, format, c.exportOpts); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", format, err)
	}
	if err := c.send(evtExported{filename: filename}); err != nil {
		return "", err
	}
	return format, nil
}

// Reset restores default overlays, drops the decoded base and vector
// handles and decodes the most recently requested base image again, so a
// base load still in flight is restarted rather than lost. Decodes started
// before the reset are discarded when they finish. It returns the new
// generation.
func (c *Controller) Reset() (uint64, error) {
	reply := make(chan uint64, 1)
	return call(c, evtReset{reply: reply}, reply)
}

// Snapshot returns a copy of the session state
func (c *Controller) Snapshot() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	return call(c, evtSnapshot{reply: reply}, reply)
}

// WaitIdle blocks until no decode is in flight
func (c *Controller) WaitIdle(ctx context.Context) error {
	reply := make(chan struct{})
	if err := c.send(evtWaitIdle{reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrClosed
	}
}

// Close stops the event loop. Pending decodes finish in the background
// and are discarded.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.stopped
}

// decodeSafely turns a decoder panic into an error so the completion event
// is always posted.
func decodeSafely[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("decode panicked: %v", r)
		}
	}()
	return fn()
}

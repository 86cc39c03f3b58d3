package session

import (
	"errors"

	"github.com/menta2k/image-watermark/pkg/compositor"
	"github.com/menta2k/image-watermark/pkg/overlay"
	"github.com/menta2k/image-watermark/pkg/types"
)

var (
	// ErrClosed is returned by every call on a closed controller
	ErrClosed = errors.New("session: controller closed")
	// ErrNothingRendered is returned by Bake and Export before a base
	// image has been rendered
	ErrNothingRendered = errors.New("session: nothing rendered")
)

// DefaultFilename is used by Export when the caller passes no name
const DefaultFilename = "watermarked-image.png"

// State is the lifecycle state of a session
type State int

const (
	StateEmpty State = iota
	StateLoadingBase
	StateReady
	StateEditing
	StateBaked
	StateExported
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoadingBase:
		return "loading_base"
	case StateReady:
		return "ready"
	case StateEditing:
		return "editing"
	case StateBaked:
		return "baked"
	case StateExported:
		return "exported"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventKind identifies what happened in a session
type EventKind string

const (
	EventBaseLoaded         EventKind = "base-loaded"
	EventBaseFailed         EventKind = "base-failed"
	EventVectorLoaded       EventKind = "vector-loaded"
	EventVectorRejected     EventKind = "vector-rejected"
	EventVectorFailed       EventKind = "vector-failed"
	EventRendered           EventKind = "rendered"
	EventBaked              EventKind = "baked"
	EventExported           EventKind = "exported"
	EventReset              EventKind = "reset"
	EventStaleDecodeDropped EventKind = "stale-decode-dropped"
)

// Event is reported to listeners instead of user-facing alerts. The
// caller decides whether and how to surface it.
type Event struct {
	Kind       EventKind
	Generation uint64
	State      State
	// Name is the vector file name or export filename, when relevant
	Name   string
	Err    error
	Report compositor.Report
}

// Listener receives session events on the controller's goroutine. It must
// not call back into the controller.
type Listener func(Event)

// Snapshot is a read-only view of a session
type Snapshot struct {
	State        State                 `json:"state"`
	Generation   uint64                `json:"generation"`
	Text         overlay.TextOverlay   `json:"text"`
	Vector       overlay.VectorOverlay `json:"vector"`
	VectorLoaded bool                  `json:"vector_loaded"`
	Active       types.OverlayKind     `json:"active"`
	Source       types.Size            `json:"source"`
	Display      types.Size            `json:"display"`
	Zoom         float64               `json:"zoom"`
	CanvasWidth  int                   `json:"canvas_width"`
	CanvasHeight int                   `json:"canvas_height"`
	Pending      int                   `json:"pending"`
}

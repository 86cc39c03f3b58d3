package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/menta2k/image-watermark/internal/utils"
	"github.com/menta2k/image-watermark/pkg/compositor"
	"github.com/menta2k/image-watermark/pkg/overlay"
	"github.com/menta2k/image-watermark/pkg/session"
	"github.com/menta2k/image-watermark/pkg/types"
	"github.com/menta2k/image-watermark/pkg/vector"
)

// decodeTimeout bounds how long a request waits for a decode to finish
const decodeTimeout = 30 * time.Second

const entryKey = "session"

// textRequest updates the text overlay; absent fields are left unchanged
type textRequest struct {
	Content     *string  `json:"content"`
	FontSizePx  *float64 `json:"font_size_px" binding:"omitnil,min=12,max=72"`
	Color       *string  `json:"color" binding:"omitnil,rgbhex"`
	FontFamily  *string  `json:"font_family" binding:"omitnil,fontfamily"`
	RotationDeg *float64 `json:"rotation_deg" binding:"omitnil,min=-180,max=180"`
	Opacity     *float64 `json:"opacity" binding:"omitnil,min=0,max=1"`
}

// vectorRequest updates the vector overlay settings
type vectorRequest struct {
	SizePx      *float64 `json:"size_px" binding:"omitnil,min=20,max=200"`
	RotationDeg *float64 `json:"rotation_deg" binding:"omitnil,min=-180,max=180"`
	Opacity     *float64 `json:"opacity" binding:"omitnil,min=0,max=1"`
}

type selectRequest struct {
	Overlay string `json:"overlay" binding:"required,oneof=text vector svg"`
}

// clickRequest is a pointer position relative to the on-screen canvas
// rectangle. A zero rectangle means the canvas at its current zoom.
type clickRequest struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	RectWidth  float64 `json:"rect_width" binding:"min=0"`
	RectHeight float64 `json:"rect_height" binding:"min=0"`
}

type zoomRequest struct {
	Zoom float64 `json:"zoom" binding:"required,min=0.5,max=3"`
}

type sessionResponse struct {
	ID       string           `json:"id"`
	Session  session.Snapshot `json:"session"`
	Warnings []string         `json:"warnings,omitempty"`
}

// limitBody caps request bodies at the configured upload size
func (s *Server) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes+1<<20)
	c.Next()
}

// withSession resolves :id and holds the session lock for the request
func (s *Server) withSession(c *gin.Context) {
	e, err := s.store.get(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	c.Set(entryKey, e)
	c.Next()
}

func current(c *gin.Context) *entry {
	return c.MustGet(entryKey).(*entry)
}

func (s *Server) handleCreate(c *gin.Context) {
	data, _, err := s.readUpload(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") || mt.Is(vector.MediaType) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": fmt.Sprintf("unsupported image type: %s", mt.String())})
		return
	}

	e := s.store.create()
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.ctrl.LoadBase(data); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.settle(c.Request.Context(), e); err != nil {
		s.store.remove(e.id)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, http.StatusCreated, e, compositor.Report{})
}

func (s *Server) handleGet(c *gin.Context) {
	s.respond(c, http.StatusOK, current(c), compositor.Report{})
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.store.remove(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var family types.FontFamily
	if req.FontFamily != nil {
		family, _ = types.ParseFontFamily(*req.FontFamily)
	}

	e := current(c)
	report, err := e.ctrl.Update(func(st *overlay.State) {
		if req.Content != nil {
			st.SetText(*req.Content)
		}
		if req.FontSizePx != nil {
			st.SetFontSize(*req.FontSizePx)
		}
		if req.Color != nil {
			st.SetColor(*req.Color)
		}
		if req.FontFamily != nil {
			st.SetFontFamily(family)
		}
		if req.RotationDeg != nil {
			st.SetTextRotation(*req.RotationDeg)
		}
		if req.Opacity != nil {
			st.SetTextOpacity(*req.Opacity)
		}
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, e, report)
}

func (s *Server) handleVectorSettings(c *gin.Context) {
	var req vectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e := current(c)
	report, err := e.ctrl.Update(func(st *overlay.State) {
		if req.SizePx != nil {
			st.SetVectorSize(*req.SizePx)
		}
		if req.RotationDeg != nil {
			st.SetVectorRotation(*req.RotationDeg)
		}
		if req.Opacity != nil {
			st.SetVectorOpacity(*req.Opacity)
		}
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, e, report)
}

func (s *Server) handleVectorUpload(c *gin.Context) {
	data, header, err := s.readUpload(c, "svg")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// the declared type decides; sniff only when the client sent none
	declared := header.Header.Get("Content-Type")
	if declared == "" || declared == "application/octet-stream" {
		declared = mimetype.Detect(data).String()
	}

	e := current(c)
	e.drain()
	accepted, err := e.ctrl.LoadVector(header.Filename, declared, data)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !accepted {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": fmt.Sprintf("vector asset must be %s, got %s", vector.MediaType, declared)})
		return
	}
	if err := s.settle(c.Request.Context(), e); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, http.StatusOK, e, compositor.Report{})
}

func (s *Server) handleSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := types.ParseOverlayKind(req.Overlay)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e := current(c)
	ok, err := e.ctrl.Select(kind)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("%s overlay has no content", kind)})
		return
	}
	s.respond(c, http.StatusOK, e, compositor.Report{})
}

func (s *Server) handleClick(c *gin.Context) {
	var req clickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e := current(c)
	anchor, placed, err := e.ctrl.Click(types.Point{X: req.X, Y: req.Y}, types.Size{Width: req.RectWidth, Height: req.RectHeight})
	if err != nil {
		s.fail(c, err)
		return
	}
	snap, err := e.ctrl.Snapshot()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"anchor": anchor, "placed": placed, "session": snap})
}

func (s *Server) handleZoom(c *gin.Context) {
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e := current(c)
	if _, err := e.ctrl.SetZoom(req.Zoom); err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, e, compositor.Report{})
}

func (s *Server) handleBake(c *gin.Context) {
	e := current(c)
	report, err := e.ctrl.Bake()
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, e, report)
}

func (s *Server) handleExport(c *gin.Context) {
	filename := utils.SanitizeFilename(c.Query("filename"), s.cfg.DefaultFilename)

	var buf bytes.Buffer
	format, err := current(c).ctrl.Export(&buf, filename)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (s *Server) handleReset(c *gin.Context) {
	e := current(c)
	e.drain()
	if _, err := e.ctrl.Reset(); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.settle(c.Request.Context(), e); err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, e, compositor.Report{})
}

// readUpload reads a multipart file field, enforcing the upload limit
func (s *Server) readUpload(c *gin.Context, field string) ([]byte, *multipart.FileHeader, error) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		return nil, nil, fmt.Errorf("no %s file uploaded", field)
	}
	defer file.Close()

	if header.Size > s.cfg.MaxUploadBytes {
		return nil, nil, fmt.Errorf("file size %d exceeds maximum allowed %d bytes", header.Size, s.cfg.MaxUploadBytes)
	}
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, nil, fmt.Errorf("file exceeds maximum allowed %d bytes", s.cfg.MaxUploadBytes)
	}
	return data, header, nil
}

// settle waits for pending decodes and returns the first failure they
// reported
func (s *Server) settle(ctx context.Context, e *entry) error {
	ctx, cancel := context.WithTimeout(ctx, decodeTimeout)
	defer cancel()

	if err := e.ctrl.WaitIdle(ctx); err != nil {
		return err
	}
	return e.failure()
}

func (s *Server) respond(c *gin.Context, status int, e *entry, report compositor.Report) {
	snap, err := e.ctrl.Snapshot()
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := sessionResponse{ID: e.id, Session: snap}
	for _, err := range report.Errors {
		resp.Warnings = append(resp.Warnings, err.Error())
	}
	c.JSON(status, resp)
}

// fail maps session errors to HTTP statuses
func (s *Server) fail(c *gin.Context, err error) {
	c.Error(err)
	switch {
	case errors.Is(err, session.ErrNothingRendered):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrClosed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "decode did not finish in time"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Package server exposes watermark editing sessions over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	imagewatermark "github.com/menta2k/image-watermark"
	"github.com/menta2k/image-watermark/pkg/compositor"
	"github.com/menta2k/image-watermark/pkg/session"
	"github.com/menta2k/image-watermark/pkg/types"
)

const (
	// DefaultMaxUploadBytes is the default maximum upload size (20MB)
	DefaultMaxUploadBytes = 20 * 1024 * 1024

	// DefaultSessionTTL is how long an idle session is kept
	DefaultSessionTTL = 30 * time.Minute
)

// Config holds server configuration
type Config struct {
	MaxUploadBytes  int64
	SessionTTL      time.Duration
	DefaultFilename string
}

// Server hosts sessions behind a gin engine
type Server struct {
	cfg    Config
	store  *Store
	engine *gin.Engine
	logger *slog.Logger
}

var registerOnce sync.Once

// registerValidators adds the control-panel checks used in binding tags
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterValidation("fontfamily", func(fl validator.FieldLevel) bool {
			_, err := types.ParseFontFamily(fl.Field().String())
			return err == nil
		})
		v.RegisterValidation("rgbhex", func(fl validator.FieldLevel) bool {
			_, err := compositor.ParseColor(fl.Field().String())
			return err == nil
		})
	})
}

// New creates a server whose sessions are started by wm
func New(cfg Config, wm *imagewatermark.Watermarker, logger *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.DefaultFilename == "" {
		cfg.DefaultFilename = session.DefaultFilename
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	registerValidators()

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store: NewStore(cfg.SessionTTL, func() *session.Controller {
			return wm.NewSession(logger)
		}, logger),
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	s.setupRoutes(r)
	s.engine = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Store returns the session store
func (s *Server) Store() *Store {
	return s.store
}

// Run expires idle sessions until ctx is done
func (s *Server) Run(ctx context.Context) {
	interval := s.cfg.SessionTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	s.store.Run(ctx, interval)
}

// Close ends every hosted session
func (s *Server) Close() {
	s.store.Close()
}

// RequestLogger logs each request through slog
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", attrs...)
			return
		}
		logger.Info("request", attrs...)
	}
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"service":  "image-watermark",
			"sessions": s.store.Len(),
		})
	})

	sessions := r.Group("/sessions")
	{
		sessions.POST("", s.limitBody, s.handleCreate)
		sessions.GET("/:id", s.withSession, s.handleGet)
		sessions.DELETE("/:id", s.handleDelete)
		sessions.PUT("/:id/text", s.withSession, s.handleText)
		sessions.PUT("/:id/vector", s.withSession, s.handleVectorSettings)
		sessions.POST("/:id/vector", s.limitBody, s.withSession, s.handleVectorUpload)
		sessions.POST("/:id/select", s.withSession, s.handleSelect)
		sessions.POST("/:id/click", s.withSession, s.handleClick)
		sessions.POST("/:id/zoom", s.withSession, s.handleZoom)
		sessions.POST("/:id/bake", s.withSession, s.handleBake)
		sessions.GET("/:id/export", s.withSession, s.handleExport)
		sessions.POST("/:id/reset", s.withSession, s.handleReset)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	imagewatermark "github.com/menta2k/image-watermark"
	"github.com/menta2k/image-watermark/internal/config"
	"github.com/menta2k/image-watermark/internal/logging"
	"github.com/menta2k/image-watermark/internal/server"
	"github.com/menta2k/image-watermark/internal/utils"
)

const (
	// ServerReadTimeout is the HTTP server read timeout
	ServerReadTimeout = 30 * time.Second

	// ServerWriteTimeout is the HTTP server write timeout
	ServerWriteTimeout = 60 * time.Second

	// ServerIdleTimeout is the HTTP server idle timeout
	ServerIdleTimeout = 120 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout = 10 * time.Second
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "config file (json, toml or yaml); defaults to "+config.GetConfigPath()+" when present")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		slog.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(os.Stderr, level, cfg.Log.Format)
	slog.SetDefault(logger)

	wm, err := imagewatermark.NewWithConfig(imagewatermark.Config{
		MaxDisplay:   cfg.Display.MaxDimension,
		Interpolator: cfg.Render.Interpolator,
		Export:       cfg.EncodeOptions(),
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to create watermarker", "error", err)
		os.Exit(1)
	}

	ttl, _ := cfg.Server.TTL()
	srv := server.New(server.Config{
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		SessionTTL:      ttl,
		DefaultFilename: cfg.Export.Filename,
	}, wm, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.Run(ctx)

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  ServerReadTimeout,
		WriteTimeout: ServerWriteTimeout,
		IdleTimeout:  ServerIdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			"addr", httpSrv.Addr,
			"version", imagewatermark.GetVersion(),
			"max_upload", utils.FormatFileSize(cfg.Server.MaxUploadBytes),
			"session_ttl", ttl)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	srv.Close()
	logger.Info("server exited")
}

// loadConfig reads path, or the default config path when it exists, then
// applies environment overrides
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

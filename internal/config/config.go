package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-watermark/pkg/compositor"
	"github.com/menta2k/image-watermark/pkg/processing"
)

// Config holds the application configuration
type Config struct {
	Display DisplayConfig `json:"display" toml:"display" yaml:"display"`
	Export  ExportConfig  `json:"export" toml:"export" yaml:"export"`
	Render  RenderConfig  `json:"render" toml:"render" yaml:"render"`
	Server  ServerConfig  `json:"server" toml:"server" yaml:"server"`
	Log     LogConfig     `json:"log" toml:"log" yaml:"log"`
}

// DisplayConfig holds the on-screen geometry bounds
type DisplayConfig struct {
	MaxDimension float64 `json:"max_dimension" toml:"max_dimension" yaml:"max_dimension"`
}

// ExportConfig holds configuration for output generation
type ExportConfig struct {
	Format   string `json:"format" toml:"format" yaml:"format"`
	Quality  int    `json:"quality" toml:"quality" yaml:"quality"`
	Lossless bool   `json:"lossless" toml:"lossless" yaml:"lossless"`
	Filename string `json:"filename" toml:"filename" yaml:"filename"`
}

// RenderConfig holds compositor settings
type RenderConfig struct {
	Interpolator string `json:"interpolator" toml:"interpolator" yaml:"interpolator"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr           string `json:"addr" toml:"addr" yaml:"addr"`
	MaxUploadBytes int64  `json:"max_upload_bytes" toml:"max_upload_bytes" yaml:"max_upload_bytes"`
	SessionTTL     string `json:"session_ttl" toml:"session_ttl" yaml:"session_ttl"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `json:"level" toml:"level" yaml:"level"`
	Format string `json:"format" toml:"format" yaml:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Display: DisplayConfig{
			MaxDimension: 800,
		},
		Export: ExportConfig{
			Format:   "png",
			Quality:  92,
			Lossless: false,
			Filename: "watermarked-image.png",
		},
		Render: RenderConfig{
			Interpolator: "bilinear",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 20 * 1024 * 1024,
			SessionTTL:     "30m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a JSON, TOML or YAML file, chosen
// by extension. Fields missing from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		err = toml.Unmarshal(data, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a file; the encoding follows the
// extension like LoadFromFile
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		data, err = toml.Marshal(c)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides server settings from PORT and MAX_UPLOAD_SIZE and the
// log level from LOG_LEVEL
func (c *Config) ApplyEnv() {
	if port := getEnv("PORT", ""); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Server.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_SIZE", c.Server.MaxUploadBytes)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Display.MaxDimension <= 0 {
		return fmt.Errorf("display.max_dimension must be positive")
	}

	if _, err := processing.ParseFormat(c.Export.Format); err != nil {
		return fmt.Errorf("export.format: %w", err)
	}

	if c.Export.Quality < 1 || c.Export.Quality > 100 {
		return fmt.Errorf("export.quality must be between 1 and 100")
	}

	if _, err := compositor.ParseInterpolator(c.Render.Interpolator); err != nil {
		return fmt.Errorf("render.interpolator: %w", err)
	}

	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	if ttl, err := c.Server.TTL(); err != nil || ttl <= 0 {
		return fmt.Errorf("server.session_ttl must be a positive duration")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}

// ExportFormat returns the configured default export format
func (c *Config) ExportFormat() processing.Format {
	f, err := processing.ParseFormat(c.Export.Format)
	if err != nil {
		return processing.FormatPNG
	}
	return f
}

// EncodeOptions returns the lossy encoder settings
func (c *Config) EncodeOptions() processing.EncodeOptions {
	return processing.EncodeOptions{Quality: c.Export.Quality, Lossless: c.Export.Lossless}
}

// TTL parses the idle session lifetime
func (s ServerConfig) TTL() (time.Duration, error) {
	return time.ParseDuration(s.SessionTTL)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-watermark", "config.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

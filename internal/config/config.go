// Package config provides YAML-based configuration for the log stream viewer.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ndjson-viewer/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultChunkSize is the byte stride of one range request.
const DefaultChunkSize = 10000

// AppConfig is the root configuration document.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Storage  StorageConfig  `yaml:"storage"`
	Sessions SessionsConfig `yaml:"sessions"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port"`
	BindAddress          string `yaml:"bindAddress"`
	EnableCORS           bool   `yaml:"enableCors"`
	AllowOrigins         string `yaml:"allowOrigins"`
	ReadTimeout          int    `yaml:"readTimeoutSeconds"`
	WriteTimeout         int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout          int    `yaml:"idleTimeoutSeconds"`
	BodyLimit            string `yaml:"bodyLimit"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
	EnableCompression    bool   `yaml:"enableCompression"`
	CompressionLevel     int    `yaml:"compressionLevel"`
}

// IngestConfig holds the recognized engine options.
type IngestConfig struct {
	ResourceURL         string  `yaml:"resourceUrl"`
	ChunkSizeBytes      int64   `yaml:"chunkSizeBytes"`
	TimestampField      string  `yaml:"timestampField"`
	FetchTimeoutSeconds int     `yaml:"fetchTimeoutSeconds"`
	MaxFetchesPerSecond float64 `yaml:"maxFetchesPerSecond"` // 0 = unlimited
	MaxFailuresKept     int     `yaml:"maxFailuresKept"`
	Store               string  `yaml:"store"` // "memory" or "duckdb"
}

// StorageConfig contains settings for session-scoped record stores
type StorageConfig struct {
	TempDirectory     string `yaml:"tempDirectory"`
	DuckDBThreads     int    `yaml:"duckdbThreads"`
	DuckDBMemoryLimit string `yaml:"duckdbMemoryLimit"`
}

// SessionsConfig bounds how many ingestion sessions live at once
type SessionsConfig struct {
	MaxSessions            int `yaml:"maxSessions"`
	SessionTimeoutMinutes  int `yaml:"sessionTimeoutMinutes"`
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`
}

// LogConfig selects the log level
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8089,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         30,
			IdleTimeout:          120,
			BodyLimit:            "1M",
			EnableRequestLogging: true,
			EnableCompression:    true,
			CompressionLevel:     5,
		},
		Ingest: IngestConfig{
			ChunkSizeBytes:      DefaultChunkSize,
			TimestampField:      models.DefaultTimestampField,
			FetchTimeoutSeconds: 30,
			MaxFailuresKept:     1000,
			Store:               "memory",
		},
		Storage: StorageConfig{
			TempDirectory:     "./data/temp",
			DuckDBThreads:     4,
			DuckDBMemoryLimit: "1GB",
		},
		Sessions: SessionsConfig{
			MaxSessions:            10,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults when it is missing.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Unmarshal over the defaults so omitted keys keep their default values.
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# NDJSON log stream viewer configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if url := os.Getenv("RESOURCE_URL"); url != "" {
		c.Ingest.ResourceURL = url
	}

	if size := os.Getenv("CHUNK_SIZE_BYTES"); size != "" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil {
			c.Ingest.ChunkSizeBytes = n
		}
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		c.Storage.TempDirectory = filepath.Join(dir, "temp")
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Storage.TempDirectory != "" && !filepath.IsAbs(c.Storage.TempDirectory) {
		c.Storage.TempDirectory = filepath.Join(configDir, c.Storage.TempDirectory)
	}
}

// Validate rejects values the engine cannot run with.
func (c *AppConfig) Validate() error {
	if c.Ingest.ChunkSizeBytes <= 0 {
		return fmt.Errorf("ingest.chunkSizeBytes must be positive, got %d", c.Ingest.ChunkSizeBytes)
	}
	if strings.TrimSpace(c.Ingest.TimestampField) == "" {
		return fmt.Errorf("ingest.timestampField must not be empty")
	}
	switch c.Ingest.Store {
	case "", "memory", "duckdb":
	default:
		return fmt.Errorf("ingest.store must be memory or duckdb, got %q", c.Ingest.Store)
	}
	if c.Ingest.MaxFetchesPerSecond < 0 {
		return fmt.Errorf("ingest.maxFetchesPerSecond must not be negative")
	}
	if c.Sessions.MaxSessions <= 0 {
		return fmt.Errorf("sessions.maxSessions must be positive, got %d", c.Sessions.MaxSessions)
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// FetchTimeout returns the per-cycle fetch deadline.
func (c IngestConfig) FetchTimeout() time.Duration {
	if c.FetchTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	if c.Storage.TempDirectory == "" {
		return nil
	}
	if err := os.MkdirAll(c.Storage.TempDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Storage.TempDirectory, err)
	}
	return nil
}

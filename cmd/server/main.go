package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ndjson-viewer/backend/internal/api"
	"github.com/ndjson-viewer/backend/internal/config"
	"github.com/ndjson-viewer/backend/internal/ingest"
	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/ndjson-viewer/backend/internal/session"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		// Get the executable's directory for config resolution
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(filepath.Dir(exePath), "ndjson-viewer.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Configure(cfg.Log.Level, os.Stdout)
	logger := logging.New("server")

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatalf("Failed to create directories: %v", err)
	}

	// Initialize session manager
	sessionMgr := session.NewManager(session.OptionsFromConfig(cfg))
	defer sessionMgr.CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Sessions.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sessionMgr.CleanupOldSessions(time.Duration(cfg.Sessions.SessionTimeoutMinutes) * time.Minute); n > 0 {
					logger.Infof("cleaned up %d idle sessions", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Default session from config, mounted in the background
	if cfg.Ingest.ResourceURL != "" {
		state, err := sessionMgr.StartSession(session.Request{})
		if err != nil {
			logger.Warnf("failed to start default session: %v", err)
		} else {
			logger.Infof("default session %s for %s", state.ID, cfg.Ingest.ResourceURL)
			sessionMgr.TriggerAsync(state.ID, ingest.EventMount, func(ran bool, err error) {
				if err != nil {
					logger.Warnf("default session mount failed: %v", err)
				}
			})
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logging.New("echo")
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Server.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/keepalive") || path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	// Compression middleware
	if cfg.Server.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Server.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		SessionMgr: sessionMgr,
		Version:    Version,
	}))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	logger.Infof("NDJSON log viewer %s (built %s) listening on %s, config %s, chunk size %d bytes, store %s",
		Version, BuildTime, cfg.GetServerAddr(), configPath, cfg.Ingest.ChunkSizeBytes, cfg.Ingest.Store)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

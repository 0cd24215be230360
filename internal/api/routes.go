// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	SessionMgr SessionManager
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Session   SessionHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.SessionMgr),
		Session:   NewSessionHandler(deps.SessionMgr),
		WebSocket: NewWebSocketHandler(deps.SessionMgr),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Ingestion session routes
	g := e.Group("/api/sessions")
	g.POST("", handlers.Session.HandleCreateSession)
	g.GET("", handlers.Session.HandleListSessions)
	g.GET("/:id", handlers.Session.HandleGetSession)
	g.DELETE("/:id", handlers.Session.HandleDeleteSession)
	g.POST("/:id/keepalive", handlers.Session.HandleKeepAlive)
	g.POST("/:id/more", handlers.Session.HandleMore)
	g.POST("/:id/retry", handlers.Session.HandleRetry)
	g.GET("/:id/records", handlers.Session.HandleRecords)
	g.GET("/:id/records/msgpack", handlers.Session.HandleRecordsMsgpack)
	g.GET("/:id/buckets", handlers.Session.HandleBuckets)
	g.GET("/:id/failures", handlers.Session.HandleFailures)

	RegisterWebSocketRoutes(e, handlers)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/sessions/:id", handlers.WebSocket.HandleWebSocket)
}

// SetupMiddleware configures the error handler and JSON codec
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
	e.JSONSerializer = JSONSerializer{}
}

// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/ndjson-viewer/backend/internal/ingest"
	"github.com/ndjson-viewer/backend/internal/models"
	"github.com/ndjson-viewer/backend/internal/session"
)

// SessionHandler handles ingestion session operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleKeepAlive(c echo.Context) error
	HandleMore(c echo.Context) error
	HandleRetry(c echo.Context) error
	HandleRecords(c echo.Context) error
	HandleRecordsMsgpack(c echo.Context) error
	HandleBuckets(c echo.Context) error
	HandleFailures(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(req session.Request) (*session.SessionState, error)
	Get(id string) (*session.SessionState, error)
	Snapshot(id string) (models.Snapshot, error)
	TouchSession(id string) bool
	Trigger(ctx context.Context, id string, ev ingest.Event) (bool, error)
	Delete(id string) error
	List() []models.Snapshot
	Count() int
}

var _ SessionManager = (*session.Manager)(nil)

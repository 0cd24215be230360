// handlers_session.go - Ingestion session handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/ndjson-viewer/backend/internal/aggregate"
	"github.com/ndjson-viewer/backend/internal/ingest"
	"github.com/ndjson-viewer/backend/internal/models"
	"github.com/ndjson-viewer/backend/internal/session"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessionMgr SessionManager
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(sessionMgr SessionManager) SessionHandler {
	return &SessionHandlerImpl{sessionMgr: sessionMgr}
}

type triggerResponse struct {
	Ran      bool            `json:"ran"`
	Snapshot models.Snapshot `json:"snapshot"`
}

type recordsResponse struct {
	Records  []*models.LogRecord `json:"records" msgpack:"records"`
	Page     int                 `json:"page" msgpack:"page"`
	PageSize int                 `json:"pageSize" msgpack:"pageSize"`
	Total    int                 `json:"total" msgpack:"total"`
	Loading  bool                `json:"loading" msgpack:"loading"`
	Ended    bool                `json:"ended" msgpack:"ended"`
}

type bucketView struct {
	models.HourBucket
	Label string `json:"label"`
}

type bucketsResponse struct {
	Order   string       `json:"order"`
	Source  string       `json:"source"`
	Buckets []bucketView `json:"buckets"`
	Unknown int          `json:"unknown"`
	Max     int          `json:"max"`
}

type failuresResponse struct {
	Failures []models.ParseFailure `json:"failures"`
	Total    int                   `json:"total"`
}

// HandleCreateSession starts a session and fires the mount trigger. A failed first
// fetch does not fail the request; the snapshot carries the error and the client
// retries through /retry.
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	var req session.Request
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.ChunkSizeBytes < 0 {
		return NewValidationError("chunkSizeBytes")
	}

	state, err := h.sessionMgr.StartSession(req)
	if err != nil {
		if errors.Is(err, session.ErrTooMany) {
			return NewConflictError(err.Error())
		}
		return NewBadRequestError("failed to start session", err)
	}

	if _, err := h.sessionMgr.Trigger(c.Request().Context(), state.ID, ingest.EventMount); err != nil {
		c.Logger().Warnf("[Session %s] mount fetch failed: %v", state.ID, err)
	}

	snap, err := h.sessionMgr.Snapshot(state.ID)
	if err != nil {
		return sessionError(err, state.ID)
	}
	return c.JSON(http.StatusCreated, snap)
}

// HandleListSessions returns snapshots of all live sessions
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessionMgr.List())
}

// HandleGetSession returns the session snapshot
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	snap, err := h.sessionMgr.Snapshot(id)
	if err != nil {
		return sessionError(err, id)
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleDeleteSession closes a session and releases its store
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := h.sessionMgr.Delete(id); err != nil {
		return sessionError(err, id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleKeepAlive extends session lifetime for active viewing
func (h *SessionHandlerImpl) HandleKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if ok := h.sessionMgr.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleMore is the near-end trigger
func (h *SessionHandlerImpl) HandleMore(c echo.Context) error {
	return h.trigger(c, ingest.EventNearEnd)
}

// HandleRetry re-requests the chunk that last failed
func (h *SessionHandlerImpl) HandleRetry(c echo.Context) error {
	return h.trigger(c, ingest.EventRetry)
}

func (h *SessionHandlerImpl) trigger(c echo.Context, ev ingest.Event) error {
	id := c.Param("id")
	ran, err := h.sessionMgr.Trigger(c.Request().Context(), id, ev)
	if err != nil {
		return sessionError(err, id)
	}

	snap, err := h.sessionMgr.Snapshot(id)
	if err != nil {
		return sessionError(err, id)
	}

	status := http.StatusOK
	if !ran {
		status = http.StatusAccepted
	}
	return c.JSON(status, triggerResponse{Ran: ran, Snapshot: snap})
}

// HandleRecords returns a page of records in arrival order
func (h *SessionHandlerImpl) HandleRecords(c echo.Context) error {
	resp, err := h.records(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleRecordsMsgpack returns a page of records in MessagePack format
func (h *SessionHandlerImpl) HandleRecordsMsgpack(c echo.Context) error {
	resp, err := h.records(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(resp)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *SessionHandlerImpl) records(c echo.Context) (*recordsResponse, error) {
	id := c.Param("id")
	state, err := h.sessionMgr.Get(id)
	if err != nil {
		return nil, sessionError(err, id)
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	ctrl := state.Controller
	start := (page - 1) * pageSize
	recs, err := ctrl.Records(c.Request().Context(), start, start+pageSize)
	if err != nil {
		return nil, NewInternalError("failed to read records", err)
	}

	st := ctrl.State()
	return &recordsResponse{
		Records:  recs,
		Page:     page,
		PageSize: pageSize,
		Total:    ctrl.Len(),
		Loading:  st.Loading(),
		Ended:    st.Ended,
	}, nil
}

// HandleBuckets returns the hour histogram. order is first-seen (default) or
// chronological; source=store recomputes it in the record store where supported.
func (h *SessionHandlerImpl) HandleBuckets(c echo.Context) error {
	id := c.Param("id")
	state, err := h.sessionMgr.Get(id)
	if err != nil {
		return sessionError(err, id)
	}

	order := c.QueryParam("order")
	if order == "" {
		order = "first-seen"
	}
	if order != "first-seen" && order != "chronological" {
		return NewValidationError("order")
	}

	source := c.QueryParam("source")
	var (
		buckets []models.HourBucket
		unknown int
	)
	switch source {
	case "", "memory":
		source = "memory"
		buckets = state.Controller.Buckets()
		unknown = state.Controller.Unknown()
	case "store":
		buckets, unknown, err = state.Controller.StoredBuckets(c.Request().Context())
		if errors.Is(err, ingest.ErrNoStoreBuckets) {
			return NewBadRequestError("session store cannot compute buckets", err)
		}
		if err != nil {
			return NewInternalError("failed to compute buckets", err)
		}
	default:
		return NewValidationError("source")
	}

	if order == "chronological" {
		buckets = aggregate.Chronological(buckets)
	}

	views := make([]bucketView, len(buckets))
	for i, b := range buckets {
		views[i] = bucketView{HourBucket: b, Label: b.Label()}
	}

	return c.JSON(http.StatusOK, bucketsResponse{
		Order:   order,
		Source:  source,
		Buckets: views,
		Unknown: unknown,
		Max:     aggregate.MaxCount(buckets),
	})
}

// HandleFailures returns the retained parse failures
func (h *SessionHandlerImpl) HandleFailures(c echo.Context) error {
	id := c.Param("id")
	state, err := h.sessionMgr.Get(id)
	if err != nil {
		return sessionError(err, id)
	}
	return c.JSON(http.StatusOK, failuresResponse{
		Failures: state.Controller.Failures(),
		Total:    state.Controller.Stats().ParseFailures,
	})
}

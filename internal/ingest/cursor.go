package ingest

import "github.com/ndjson-viewer/backend/internal/models"

// Cursor tracks the next byte to request and whether the stream is finished.
// Offset never decreases. Ended is terminal.
type Cursor struct {
	Offset    int64
	InFlight  bool
	Ended     bool
	LastError error
}

// Begin marks a cycle as started. It reports false when a cycle is already running
// or the stream has ended.
func (c *Cursor) Begin() bool {
	if c.InFlight || c.Ended {
		return false
	}
	c.InFlight = true
	c.LastError = nil
	return true
}

// Advance commits a successful cycle: the offset moves by a fixed stride regardless
// of how many bytes actually arrived.
func (c *Cursor) Advance(stride int64, ended bool) {
	c.Offset += stride
	c.Ended = c.Ended || ended
	c.InFlight = false
}

// Fail records a fetch error and leaves Offset and Ended untouched so the same range
// can be retried.
func (c *Cursor) Fail(err error) {
	c.LastError = err
	c.InFlight = false
}

// Status derives the externally visible state.
func (c *Cursor) Status() models.IngestStatus {
	switch {
	case c.InFlight:
		return models.IngestStatusFetching
	case c.Ended:
		return models.IngestStatusEnded
	case c.LastError != nil:
		return models.IngestStatusError
	default:
		return models.IngestStatusIdle
	}
}

// State returns a snapshot of the cursor.
func (c *Cursor) State() models.IngestState {
	s := models.IngestState{
		Offset:   c.Offset,
		InFlight: c.InFlight,
		Ended:    c.Ended,
		Status:   c.Status(),
	}
	if c.LastError != nil {
		s.LastError = c.LastError.Error()
	}
	return s
}

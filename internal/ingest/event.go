package ingest

import "fmt"

// Event is a trigger from the presentation layer. How it was detected (scroll
// observer, timer, websocket message) does not matter to the controller.
type Event string

const (
	// EventMount is the initial load when a view attaches.
	EventMount Event = "mount"
	// EventNearEnd fires when the end of the loaded rows becomes visible.
	EventNearEnd Event = "near_end"
	// EventRetry is an explicit retry after a fetch error.
	EventRetry Event = "retry"
)

// ParseEvent validates an event name.
func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventMount, EventNearEnd, EventRetry:
		return e, nil
	default:
		return "", fmt.Errorf("unknown ingestion event %q", s)
	}
}

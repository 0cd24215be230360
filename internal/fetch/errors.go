package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	KindTransport    ErrorKind = "transport"
	KindStatus       ErrorKind = "status"
	KindInvalidRange ErrorKind = "invalid_range"
	KindIO           ErrorKind = "io"
)

// FetchError is returned for any failed range request. It never carries partial data.
type FetchError struct {
	Kind     ErrorKind
	Resource string
	Start    int64
	End      int64
	Status   int // HTTP status for KindStatus, 0 otherwise
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s bytes=%d-%d: %s", e.Resource, e.Start, e.End, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AsFetchError extracts a *FetchError from err.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func validateRange(resource string, start, end int64) error {
	if start < 0 || end < start {
		return &FetchError{
			Kind:     KindInvalidRange,
			Resource: resource,
			Start:    start,
			End:      end,
			Reason:   "start must be >= 0 and end >= start",
		}
	}
	return nil
}

package models

import (
	"fmt"
	"time"
)

// HourBucket counts records falling into one UTC hour.
type HourBucket struct {
	Date  string    `json:"date" msgpack:"date"` // "2006-01-02"
	Hour  int       `json:"hour" msgpack:"hour"` // 0-23
	Count int       `json:"count" msgpack:"count"`
	Start time.Time `json:"start" msgpack:"start"`
}

// BucketKey identifies an hour bucket.
type BucketKey struct {
	Date string
	Hour int
}

// KeyFor truncates t to its UTC hour.
func KeyFor(t time.Time) (BucketKey, time.Time) {
	u := t.UTC().Truncate(time.Hour)
	return BucketKey{Date: u.Format(time.DateOnly), Hour: u.Hour()}, u
}

// Label renders the bucket the way the timeline chart labels its axis.
func (b HourBucket) Label() string {
	return fmt.Sprintf("%s %d:00", b.Date, b.Hour)
}

// Package aggregate folds log records into hour-granularity histogram buckets.
//
// Bucket keys and labels are both derived in UTC. Buckets come out in the order their
// key was first seen, which for an unsorted log is not chronological; use Chronological
// when a sorted timeline is needed.
package aggregate

import (
	"sort"

	"github.com/ndjson-viewer/backend/internal/models"
)

// Aggregate recomputes buckets over records from scratch.
// Zero records yield an empty, non-nil slice.
func Aggregate(records []*models.LogRecord) []models.HourBucket {
	h := NewHourly()
	h.Add(records)
	return h.Buckets()
}

// Hourly aggregates incrementally. Adding records in store order gives the same result
// as Aggregate over the whole store. Not safe for concurrent use.
type Hourly struct {
	index   map[models.BucketKey]int
	buckets []models.HourBucket
	unknown int
}

// NewHourly creates an empty aggregator.
func NewHourly() *Hourly {
	return &Hourly{
		index:   make(map[models.BucketKey]int),
		buckets: make([]models.HourBucket, 0),
	}
}

// Add merges newly appended records.
func (h *Hourly) Add(records []*models.LogRecord) {
	for _, r := range records {
		if r == nil || !r.HasTime {
			h.unknown++
			continue
		}
		h.addTime(r)
	}
}

func (h *Hourly) addTime(r *models.LogRecord) {
	key, start := models.KeyFor(r.Time)
	if i, ok := h.index[key]; ok {
		h.buckets[i].Count++
		return
	}
	h.index[key] = len(h.buckets)
	h.buckets = append(h.buckets, models.HourBucket{
		Date:  key.Date,
		Hour:  key.Hour,
		Count: 1,
		Start: start,
	})
}

// Buckets returns a copy of the buckets in first-seen order.
func (h *Hourly) Buckets() []models.HourBucket {
	out := make([]models.HourBucket, len(h.buckets))
	copy(out, h.buckets)
	return out
}

// Unknown returns how many records had no usable timestamp.
func (h *Hourly) Unknown() int {
	return h.unknown
}

// Total returns the number of records counted into buckets.
func (h *Hourly) Total() int {
	n := 0
	for _, b := range h.buckets {
		n += b.Count
	}
	return n
}

// Reset clears all buckets.
func (h *Hourly) Reset() {
	h.index = make(map[models.BucketKey]int)
	h.buckets = h.buckets[:0]
	h.unknown = 0
}

// Chronological returns a copy of buckets sorted by hour.
func Chronological(buckets []models.HourBucket) []models.HourBucket {
	out := make([]models.HourBucket, len(buckets))
	copy(out, buckets)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// MaxCount returns the largest bucket count, 0 for no buckets.
func MaxCount(buckets []models.HourBucket) int {
	max := 0
	for _, b := range buckets {
		if b.Count > max {
			max = b.Count
		}
	}
	return max
}

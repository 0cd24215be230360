package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNoTimestamp is returned when a value cannot be read as a time.
var ErrNoTimestamp = errors.New("no usable timestamp")

// Epoch values above this magnitude are treated as milliseconds.
const epochMillisThreshold = 1e12

// Epoch seconds outside years 1 through 9999 are rejected.
const (
	minEpochSeconds = -62135596800 // 0001-01-01T00:00:00Z
	maxEpochSeconds = 253402300799 // 9999-12-31T23:59:59Z
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// ParseTimestamp reads an ISO-8601 string, an epoch string or an epoch number.
// Zone-less ISO values are taken as UTC. The result is always in UTC.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		return fromEpoch(t)
	case int64:
		return fromEpoch(float64(t))
	case int:
		return fromEpoch(float64(t))
	case string:
		return parseTimestampString(t)
	case nil:
		return time.Time{}, ErrNoTimestamp
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrNoTimestamp, v)
	}
}

func parseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrNoTimestamp
	}

	if ts, ok := FastTimestamp(s); ok {
		return ts, nil
	}

	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrNoTimestamp, s)
}

func fromEpoch(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%w: non-finite epoch", ErrNoTimestamp)
	}
	if math.Abs(f) >= epochMillisThreshold {
		f /= 1000
	}
	if f < minEpochSeconds || f > maxEpochSeconds {
		return time.Time{}, fmt.Errorf("%w: epoch %g out of range", ErrNoTimestamp, f)
	}
	sec, frac := math.Modf(f)
	// Round to microseconds to avoid float noise such as .592000001.
	nsec := math.Round(frac*1e6) * 1e3
	return time.Unix(int64(sec), int64(nsec)).UTC(), nil
}

// FastTimestamp parses "YYYY-MM-DDTHH:MM:SS[.fff]Z" (or a space separator) without
// going through time.Parse, which dominates parse time on large streams. It reports
// false for anything else so the caller can fall back to the general layouts.
func FastTimestamp(ts string) (time.Time, bool) {
	// Minimum length: "2024-09-30T05:00:00Z" = 20 chars
	if len(ts) < 20 || ts[len(ts)-1] != 'Z' {
		return time.Time{}, false
	}
	if ts[4] != '-' || ts[7] != '-' || (ts[10] != 'T' && ts[10] != ' ') || ts[13] != ':' || ts[16] != ':' {
		return time.Time{}, false
	}

	year := parseInt4(ts[0:4])
	month := parseInt2(ts[5:7])
	day := parseInt2(ts[8:10])
	hour := parseInt2(ts[11:13])
	min := parseInt2(ts[14:16])
	sec := parseInt2(ts[17:19])

	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || min < 0 || min > 59 || sec < 0 || sec > 59 {
		return time.Time{}, false
	}

	var nsec int
	rest := ts[19 : len(ts)-1]
	if rest != "" {
		if rest[0] != '.' || len(rest) < 2 {
			return time.Time{}, false
		}
		frac := rest[1:]
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n := parseIntN(frac)
		if n < 0 {
			return time.Time{}, false
		}
		for i := len(frac); i < 9; i++ {
			n *= 10
		}
		nsec = n
	}

	t := time.Date(year, time.Month(month), day, hour, min, sec, nsec, time.UTC)
	// time.Date normalizes Feb 30 and friends; reject those.
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// parseInt2 parses a 2-digit decimal string. Returns -1 on error.
func parseInt2(s string) int {
	if len(s) != 2 {
		return -1
	}
	d1, d2 := s[0]-'0', s[1]-'0'
	if d1 > 9 || d2 > 9 {
		return -1
	}
	return int(d1)*10 + int(d2)
}

// parseInt4 parses a 4-digit decimal string. Returns -1 on error.
func parseInt4(s string) int {
	if len(s) != 4 {
		return -1
	}
	d1, d2, d3, d4 := s[0]-'0', s[1]-'0', s[2]-'0', s[3]-'0'
	if d1 > 9 || d2 > 9 || d3 > 9 || d4 > 9 {
		return -1
	}
	return int(d1)*1000 + int(d2)*100 + int(d3)*10 + int(d4)
}

// parseIntN parses a decimal string of any length. Returns -1 on error.
func parseIntN(s string) int {
	result := 0
	for i := 0; i < len(s); i++ {
		d := s[i] - '0'
		if d > 9 {
			return -1
		}
		result = result*10 + int(d)
	}
	return result
}

package groundtruth

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for dates in results.
const DateLayout = "2006-01-02"

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// epochMillisThreshold separates epoch seconds from milliseconds. Seconds
// values stay below it until the year 33658.
const epochMillisThreshold = 1e12

// ParseDate normalizes a timestamp to its UTC calendar day. It accepts
// RFC3339 with or without fractional seconds, space separated date-times,
// bare dates, and unix epoch seconds or milliseconds.
func ParseDate(ts string) (time.Time, bool) {
	s := strings.TrimSpace(ts)
	if s == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil && isEpoch(s) {
		return epochDay(n), true
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

func isEpoch(s string) bool {
	// A bare year like "2025" is not an epoch.
	digits := strings.TrimPrefix(s, "-")
	if i := strings.IndexByte(digits, '.'); i >= 0 {
		digits = digits[:i]
	}
	return len(digits) >= 9
}

func epochDay(n float64) time.Time {
	if n >= epochMillisThreshold || n <= -epochMillisThreshold {
		return Day(time.UnixMilli(int64(n)))
	}
	return Day(time.Unix(int64(n), 0))
}

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

package util

import (
	"strconv"
	"time"
)

// unix seconds stop being plausible candle times past this value; larger numbers are millis
const maxUnixSeconds = 1e11

// ParseTime tries RFC3339, RFC3339Nano, unix seconds and unix milliseconds. Returns (t, true)
// if any worked. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts >= maxUnixSeconds {
			return time.UnixMilli(ts).UTC(), true
		}
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// Package timespec parses the --since and --until flags of the projects commands.
package timespec

import (
	"fmt"
	"time"
)

// layouts are tried in order after the duration form.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02",
}

// Parse converts a time specification into a Unix timestamp in milliseconds.
// Accepted forms:
//   - Go durations, relative to now: "90m", "1h30m", "48h"
//   - RFC3339 timestamps: "2025-10-29T13:00:00Z"
//   - UTC dates or minutes: "2025-10-29", "2025-10-29T13:00"
func Parse(spec string) (int64, error) {
	return ParseAt(spec, time.Now())
}

// ParseAt is Parse with an explicit reference time for durations.
func ParseAt(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if d, err := time.ParseDuration(spec); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration: %s", spec)
		}
		return now.Add(-d).UnixMilli(), nil
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, spec); err == nil {
			return t.UnixMilli(), nil
		}
	}

	return 0, fmt.Errorf("invalid time specification: %s (use a duration like '48h' or a time like '2025-10-29T13:00:00Z')", spec)
}

// ParseRange parses --since and --until together.
// Returns (sinceMs, untilMs); zero means unbounded on that side.
func ParseRange(since, until string) (int64, int64, error) {
	return ParseRangeAt(since, until, time.Now())
}

// ParseRangeAt is ParseRange with an explicit reference time.
func ParseRangeAt(since, until string, now time.Time) (int64, int64, error) {
	var sinceMs, untilMs int64
	var err error

	if since != "" {
		if sinceMs, err = ParseAt(since, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		if untilMs, err = ParseAt(until, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMs > 0 && untilMs > 0 && sinceMs >= untilMs {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}

	return sinceMs, untilMs, nil
}

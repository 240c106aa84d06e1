// Package timespec turns the time argument of a reminder command into an instant.
package timespec

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmpty       = errors.New("time is required")
	ErrInvalid     = errors.New("invalid time format")
	ErrNotInFuture = errors.New("time must be in the future")
)

var compactPattern = regexp.MustCompile(`^(\d+[wdhms])+$`)
var compactPart = regexp.MustCompile(`(\d+)([wdhms])`)

var compactUnits = map[string]time.Duration{
	"w": 7 * 24 * time.Hour,
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

var layouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse accepts compact durations (1w2d3h4m5s), RFC3339 timestamps, local
// date/time layouts, and relative phrases ("in 5 minutes", "2 hours",
// "tomorrow", "next week"). Local layouts are read in now's location. The
// result must lie strictly after now.
func Parse(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, ErrEmpty
	}

	t, err := parse(input, now)
	if err != nil {
		return time.Time{}, err
	}
	if !t.After(now) {
		return time.Time{}, ErrNotInFuture
	}
	return t, nil
}

func parse(input string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t.In(now.Location()), nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, input, now.Location()); err == nil {
			return t, nil
		}
	}

	lower := strings.ToLower(input)
	switch lower {
	case "tomorrow":
		return now.Add(24 * time.Hour), nil
	case "next week":
		return now.Add(7 * 24 * time.Hour), nil
	}

	lower = strings.TrimPrefix(lower, "in ")
	if d, ok := parseCompact(lower); ok {
		return now.Add(d), nil
	}
	d, err := parseRelative(lower)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

// ParseDuration parses only the compact form, e.g. "1d12h".
func ParseDuration(input string) (time.Duration, error) {
	d, ok := parseCompact(strings.ToLower(strings.TrimSpace(input)))
	if !ok || d <= 0 {
		return 0, fmt.Errorf("%w: %q (use e.g. 10s, 5m, 2h, 1d2h30m, 1w)", ErrInvalid, input)
	}
	return d, nil
}

func parseCompact(input string) (time.Duration, bool) {
	if !compactPattern.MatchString(input) {
		return 0, false
	}
	var total time.Duration
	for _, part := range compactPart.FindAllStringSubmatch(input, -1) {
		n, err := strconv.Atoi(part[1])
		if err != nil {
			return 0, false
		}
		total += time.Duration(n) * compactUnits[part[2]]
	}
	return total, total > 0
}

// parseRelative handles "5 minutes", "1 hour" and glued forms like "5min".
func parseRelative(input string) (time.Duration, error) {
	var numStr, unit string
	if fields := strings.Fields(input); len(fields) == 2 {
		numStr, unit = fields[0], fields[1]
	} else if len(fields) == 1 {
		i := strings.IndexFunc(input, func(r rune) bool { return r < '0' || r > '9' })
		if i <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, input)
		}
		numStr, unit = input[:i], input[i:]
	} else {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, input)
	}

	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, input)
	}

	var per time.Duration
	switch strings.TrimSuffix(unit, "s") {
	case "sec", "second":
		per = time.Second
	case "min", "minute":
		per = time.Minute
	case "hr", "hour":
		per = time.Hour
	case "day":
		per = 24 * time.Hour
	case "week", "wk":
		per = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: unknown time unit %q", ErrInvalid, unit)
	}
	return time.Duration(n) * per, nil
}

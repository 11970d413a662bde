package api

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRange is returned for time-range expressions that cannot be parsed.
var ErrInvalidRange = errors.New("invalid time range")

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

var namedRanges = map[string]time.Duration{
	"12h":   12 * time.Hour,
	"24h":   day,
	"day":   day,
	"month": month,
	"year":  year,
}

var rangePattern = regexp.MustCompile(`^(\d+)([hdwm])$`)

var rangeUnits = map[string]time.Duration{
	"h": time.Hour,
	"d": day,
	"w": week,
	"m": month,
}

// ParseRange parses a named period (12h, 24h, day, month, year) or a
// {integer}{unit} expression with unit h, d, w or m (30-day month).
func ParseRange(input string) (time.Duration, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if d, ok := namedRanges[input]; ok {
		return d, nil
	}
	match := rangePattern.FindStringSubmatch(input)
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRange, input)
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRange, input)
	}
	unit := rangeUnits[match[2]]
	if n > int64(1<<63-1)/int64(unit) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidRange, input)
	}
	return time.Duration(n) * unit, nil
}

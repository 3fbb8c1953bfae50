package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDurationSpec is wrapped by ParseDurationSpec for malformed input.
var ErrInvalidDurationSpec = errors.New("invalid duration spec")

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
}

// ParseDurationSpec converts expressions such as "15m", "7d" or "3600"
// (bare seconds) into a duration. The amount must be a positive integer.
func ParseDurationSpec(spec string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDurationSpec)
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("%w: %q has no amount", ErrInvalidDurationSpec, spec)
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDurationSpec, spec)
	}
	unit := strings.TrimSpace(s[i:])
	if unit == "" {
		unit = "s"
	}
	mul, ok := durationUnits[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalidDurationSpec, unit, spec)
	}
	if n > int64(1<<62)/int64(mul) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDurationSpec, spec)
	}
	return time.Duration(n) * mul, nil
}

// ExpiryDate returns the absolute instant spec from now.
func ExpiryDate(now time.Time, spec string) (time.Time, error) {
	d, err := ParseDurationSpec(spec)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

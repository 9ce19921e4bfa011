package duration

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Durations are carried as strings of the form DD-hh:mm:ss (days, hours,
// minutes, seconds) and handled internally as non-negative integer seconds.
// Zero seconds is the "no limit" sentinel.

var (
	// ErrFormat is returned for strings that do not match DD-hh:mm:ss.
	ErrFormat = errors.New("malformed duration, want DD-hh:mm:ss")

	// ErrRange is returned when a field is out of range or the total
	// number of seconds overflows.
	ErrRange = errors.New("duration out of range")
)

// Unlimited is the sentinel for "no limit".
const Unlimited int64 = 0

var pattern = regexp.MustCompile(`^(\d+)-(\d{2}):(\d{2}):(\d{2})$`)

// Parse converts a DD-hh:mm:ss string to seconds. The empty string parses
// to Unlimited. Minutes and seconds above 59 are rejected, as is any total
// that overflows int64.
func Parse(s string) (int64, error) {
	if s == "" {
		return Unlimited, nil
	}
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("parse %q: %w", s, ErrFormat)
	}
	days, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, ErrRange)
	}
	hours, _ := strconv.ParseInt(m[2], 10, 64)
	mins, _ := strconv.ParseInt(m[3], 10, 64)
	secs, _ := strconv.ParseInt(m[4], 10, 64)
	if mins > 59 || secs > 59 {
		return 0, fmt.Errorf("parse %q: %w", s, ErrRange)
	}
	if days > (math.MaxInt64-hours*3600-mins*60-secs)/86400 {
		return 0, fmt.Errorf("parse %q: %w", s, ErrRange)
	}
	return days*86400 + hours*3600 + mins*60 + secs, nil
}

// Format is the inverse of Parse, left-padded to two digits per field.
// Non-positive input formats as the zero duration.
func Format(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	rem := seconds % 86400
	return fmt.Sprintf("%02d-%02d:%02d:%02d", days, rem/3600, (rem%3600)/60, rem%60)
}

// IsUnlimited reports whether the given seconds value means "no limit".
func IsUnlimited(seconds int64) bool {
	return seconds <= 0
}

package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReleaseDateLayout is the day-abbreviated-month-year format used by the
// item file, e.g. "01-Jan-1995".
const ReleaseDateLayout = "02-Jan-2006"

// ConvertReleaseDate parses a release date field. Empty or unparseable values
// yield nil rather than an error.
func ConvertReleaseDate(val string) *time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}
	t, err := time.Parse(ReleaseDateLayout, val)
	if err != nil {
		return nil
	}
	return &t
}

// ConvertUnixTime turns seconds since the epoch into a UTC date-time.
func ConvertUnixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// ConvertFlag accepts only the literal digits "0" and "1".
func ConvertFlag(val string) (bool, error) {
	switch strings.TrimSpace(val) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("invalid flag %q", val)
	}
}

// ConvertToInt parses a decimal integer field, ignoring surrounding spaces.
func ConvertToInt(val string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(val))
}

// ConvertToInt64 parses a decimal 64-bit integer field.
func ConvertToInt64(val string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
}

// NullableString maps an empty string to nil.
func NullableString(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}

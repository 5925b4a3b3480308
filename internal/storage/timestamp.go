package storage

import (
	"fmt"
	"regexp"
	"time"
)

// timestampLayout is the wall-clock form embedded in artifact names,
// always interpreted as UTC.
const timestampLayout = "20060102150405"

// timestampRe matches a trailing _YYYYMMDDHHMMSS component, either at
// the end of the name or immediately before the extension.
var timestampRe = regexp.MustCompile(`_(\d{14})(?:\.|$)`)

// TimestampError reports an entry name that carries no parsable
// embedded timestamp.
type TimestampError struct {
	Name string
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("no timestamp in entry name %q", e.Name)
}

// TimestampName appends the UTC timestamp component to a base name,
// producing base_YYYYMMDDHHMMSS.
func TimestampName(base string, at time.Time) string {
	return base + "_" + at.UTC().Format(timestampLayout)
}

// ExtractTimestamp recovers the UTC creation time embedded in an
// artifact name. Names without a well-formed component fail with a
// TimestampError.
func ExtractTimestamp(name string) (time.Time, error) {
	m := timestampRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, &TimestampError{Name: name}
	}
	ts, err := time.ParseInLocation(timestampLayout, m[1], time.UTC)
	if err != nil {
		return time.Time{}, &TimestampError{Name: name}
	}
	return ts, nil
}

// Package datetime implements the framework's 64-bit microsecond clock
// (DateTime) and elapsed-time arithmetic.
package datetime

import (
	"fmt"
	"time"
)

// epoch is the reference instant for stamp 0. A plain int64 count of
// microseconds since the Unix epoch covers roughly +/-292000 years,
// comfortably enclosing the supported 12754 B.C. to 16472 A.D. range
// without needing a wider integer.
var epoch = time.Unix(0, 0).UTC()

// DateTime is a 64-bit microsecond counter since the Unix epoch, with total
// ordering and microsecond precision.
type DateTime int64

// ElapsedTime is a signed 64-bit microsecond duration.
type ElapsedTime int64

// Microsecond-granularity constants for building ElapsedTime values.
const (
	Microsecond ElapsedTime = 1
	Millisecond             = 1000 * Microsecond
	Second                  = 1000 * Millisecond
	Minute                  = 60 * Second
	Hour                    = 60 * Minute
	Day                     = 24 * Hour
)

// Invalid is the sentinel (the largest int64) used where no DateTime is
// available.
const Invalid DateTime = 1<<63 - 1

// Min is the smallest representable DateTime, used as the open lower bound
// of a range query that should not exclude any stamp.
const Min DateTime = -1 << 63

// FromTime converts a time.Time to DateTime, truncating to microsecond
// precision.
func FromTime(t time.Time) DateTime {
	return DateTime(t.UnixMicro())
}

// Time converts a DateTime back to a time.Time in UTC.
func (d DateTime) Time() time.Time {
	return time.UnixMicro(int64(d)).UTC()
}

// In returns the instant d expressed in the wall-clock fields of zone.
func (d DateTime) In(zone *time.Location) time.Time {
	return d.Time().In(zone)
}

// FromMillis converts milliseconds since the Unix epoch to a DateTime.
func FromMillis(ms int64) DateTime {
	return DateTime(ms * 1000)
}

// ToMillis converts d to milliseconds since the Unix epoch, truncating.
func (d DateTime) ToMillis() int64 {
	return int64(d) / 1000
}

// FromString parses an ISO-8601 timestamp with microseconds and a zone
// offset, e.g. "2005-10-30T01:00:00.000000-04:00".
func FromString(s string) (DateTime, error) {
	t, err := time.Parse("2006-01-02T15:04:05.000000Z07:00", s)
	if err != nil {
		// Accept the same layout without a fractional part.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return 0, fmt.Errorf("datetime: parse %q: %w", s, err)
		}
	}
	return FromTime(t), nil
}

// String renders d as an ISO-8601 timestamp with microseconds, in UTC.
func (d DateTime) String() string {
	return d.Time().Format("2006-01-02T15:04:05.000000Z07:00")
}

// StringIn renders d as an ISO-8601 timestamp with microseconds, in zone.
func (d DateTime) StringIn(zone *time.Location) string {
	return d.In(zone).Format("2006-01-02T15:04:05.000000Z07:00")
}

// Add returns d shifted by e.
func (d DateTime) Add(e ElapsedTime) DateTime { return d + DateTime(e) }

// Sub returns the elapsed time from other to d (d - other).
func (d DateTime) Sub(other DateTime) ElapsedTime { return ElapsedTime(d - other) }

// Before reports whether d is strictly before other.
func (d DateTime) Before(other DateTime) bool { return d < other }

// After reports whether d is strictly after other.
func (d DateTime) After(other DateTime) bool { return d > other }

// NextMicro returns the unit successor of d, used to express half-open
// interval boundaries (e.g. "[not_before, before)").
func (d DateTime) NextMicro() DateTime { return d + 1 }

// PrevMicro returns the unit predecessor of d.
func (d DateTime) PrevMicro() DateTime { return d - 1 }

// Midnight floors d to the start of its calendar day in zone.
func (d DateTime) Midnight(zone *time.Location) DateTime {
	t := d.In(zone)
	y, m, day := t.Date()
	floor := time.Date(y, m, day, 0, 0, 0, 0, zone)
	return FromTime(floor)
}

// Duration converts an ElapsedTime to a time.Duration.
func (e ElapsedTime) Duration() time.Duration {
	return time.Duration(e) * time.Microsecond
}

// FromDuration converts a time.Duration to an ElapsedTime, truncating to
// microsecond precision.
func FromDuration(d time.Duration) ElapsedTime {
	return ElapsedTime(d.Microseconds())
}

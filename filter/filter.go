// Package filter implements the ingress value filters: deadband,
// step, and interpolator, each a single-point-in/zero-or-more-points-out
// transducer with reset.
package filter

import (
	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/value"
)

// Filter is a stateful, non-reentrant transducer over an optional input
// PointValue. A nil input flushes any held value.
type Filter interface {
	Filter(input *value.PointValue) []value.PointValue
	Reset()
}

// trimStamp floors stamp to unit microseconds, per the DeadbandFilter and
// StepFilter "stamp_trim_unit" parameter. A zero unit disables trimming.
func trimStamp(stamp datetime.DateTime, unit datetime.ElapsedTime) datetime.DateTime {
	if unit <= 0 {
		return stamp
	}
	n := int64(stamp) / int64(unit)
	if int64(stamp)%int64(unit) != 0 && stamp < 0 {
		n--
	}
	return datetime.DateTime(n * int64(unit))
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// numeric extracts a float64 magnitude from v for gap/ratio comparisons.
// Any kind Numeric doesn't support is treated as always-distinct (the
// filter never suppresses non-numeric values).
func numeric(v value.Value) (float64, bool) {
	return value.Numeric(v)
}

package filter

import (
	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/syncsched"
	"github.com/xapiens/rvpf/value"
)

// ResynchronizerFilter re-samples an input series onto a Sync schedule,
// backing ResynchronizedBehavior. On each input it emits one interpolated
// (or, past the last input, extrapolated) point for every Sync tick in
// (lastEmitted, input.stamp]. A nil input flushes nothing further: the
// filter has no pending tail because every tick is emitted as soon as an
// input covering it arrives.
type ResynchronizerFilter struct {
	Sync syncsched.Sync

	hasPrev     bool
	prev        value.PointValue
	lastEmitted datetime.DateTime
	started     bool
}

// NewResynchronizerFilter builds a ResynchronizerFilter driven by sync.
func NewResynchronizerFilter(sync syncsched.Sync) *ResynchronizerFilter {
	return &ResynchronizerFilter{Sync: sync}
}

// Filter implements Filter.
func (f *ResynchronizerFilter) Filter(input *value.PointValue) []value.PointValue {
	if input == nil {
		return nil
	}
	pv := *input

	if !f.hasPrev {
		f.hasPrev = true
		f.prev = pv
		return nil
	}
	defer func() {
		f.prev = pv
	}()

	from := f.prev.Stamp
	if f.started {
		from = f.lastEmitted
	}

	var out []value.PointValue
	tick, ok := f.Sync.NextStamp(from, f.started)
	for ok && !tick.After(pv.Stamp) {
		interp, iok := interpolate(f.prev, pv, tick)
		if iok {
			out = append(out, value.PointValue{Point: pv.Point, Stamp: tick, Value: interp})
			f.lastEmitted = tick
			f.started = true
		}
		tick, ok = f.Sync.NextStamp(tick, true)
	}
	return out
}

// interpolate linearly interpolates (or extrapolates, if stamp falls
// outside [a.Stamp, b.Stamp]) the numeric value at stamp between a and b.
func interpolate(a, b value.PointValue, stamp datetime.DateTime) (value.Value, bool) {
	aVal, ok1 := numeric(a.Value)
	bVal, ok2 := numeric(b.Value)
	if !ok1 || !ok2 {
		return value.Value{}, false
	}
	span := int64(b.Stamp.Sub(a.Stamp))
	if span == 0 {
		return value.NewDouble(aVal), true
	}
	frac := float64(int64(stamp.Sub(a.Stamp))) / float64(span)
	return value.NewDouble(aVal + (bVal-aVal)*frac), true
}

// Reset implements Filter.
func (f *ResynchronizerFilter) Reset() {
	f.hasPrev = false
	f.started = false
	f.prev = value.PointValue{}
	f.lastEmitted = 0
}

package filter

import (
	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/value"
)

// InterpolatorFilter maintains a three-point window and drops the midpoint
// when it lies on the line between the previous and next points within
// deadband. A null-valued input or a gap exceeding TimeLimit
// breaks the sequence: any pending midpoint is flushed, then the breaking
// value is forwarded unchanged.
type InterpolatorFilter struct {
	TimeLimit datetime.ElapsedTime
	Gap       float64
	Ratio     float64

	hasA bool
	a    value.PointValue
	hasB bool
	b    value.PointValue
}

// NewInterpolatorFilter builds an InterpolatorFilter with the given
// parameters.
func NewInterpolatorFilter(timeLimit datetime.ElapsedTime, gap, ratio float64) *InterpolatorFilter {
	return &InterpolatorFilter{TimeLimit: timeLimit, Gap: gap, Ratio: ratio}
}

// Filter implements Filter.
func (f *InterpolatorFilter) Filter(input *value.PointValue) []value.PointValue {
	if input == nil {
		return f.flush()
	}
	pv := *input

	if pv.Value.IsNull() || f.gapExceeded(pv) {
		return f.breakSequence(pv)
	}

	if !f.hasA {
		f.a = pv
		f.hasA = true
		return []value.PointValue{pv}
	}
	if !f.hasB {
		f.b = pv
		f.hasB = true
		return nil
	}

	mid := f.b
	if f.withinDeadband(mid, pv) {
		f.b = pv
		return nil
	}
	emitted := mid
	f.a = mid
	f.b = pv
	return []value.PointValue{emitted}
}

func (f *InterpolatorFilter) gapExceeded(pv value.PointValue) bool {
	last := f.a
	if f.hasB {
		last = f.b
	}
	if !f.hasA {
		return false
	}
	return pv.Stamp.Sub(last.Stamp) > f.TimeLimit
}

// withinDeadband reports whether mid's value lies within deadband of the
// value linearly interpolated at mid's stamp between f.a and next.
func (f *InterpolatorFilter) withinDeadband(mid, next value.PointValue) bool {
	midVal, ok1 := numeric(mid.Value)
	aVal, ok2 := numeric(f.a.Value)
	nextVal, ok3 := numeric(next.Value)
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	span := int64(next.Stamp.Sub(f.a.Stamp))
	if span == 0 {
		return false
	}
	frac := float64(int64(mid.Stamp.Sub(f.a.Stamp))) / float64(span)
	interp := aVal + (nextVal-aVal)*frac

	threshold := f.Gap
	if ratioThreshold := absFloat(aVal) * f.Ratio; ratioThreshold > threshold {
		threshold = ratioThreshold
	}
	return absFloat(midVal-interp) < threshold
}

func (f *InterpolatorFilter) breakSequence(breaking value.PointValue) []value.PointValue {
	var out []value.PointValue
	if f.hasB {
		out = append(out, f.b)
	}
	out = append(out, breaking)
	f.hasA = false
	f.hasB = false
	return out
}

func (f *InterpolatorFilter) flush() []value.PointValue {
	var out []value.PointValue
	if f.hasB {
		out = append(out, f.b)
	}
	f.hasA = false
	f.hasB = false
	return out
}

// Reset implements Filter.
func (f *InterpolatorFilter) Reset() {
	f.hasA = false
	f.hasB = false
	f.a = value.PointValue{}
	f.b = value.PointValue{}
}

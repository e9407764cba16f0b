package filter

import (
	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/value"
)

// DeadbandFilter emits the first value it sees; thereafter it suppresses a
// new value iff it is within gap/ratio of the last passed value AND within
// time_limit of it.
type DeadbandFilter struct {
	TimeLimit     datetime.ElapsedTime
	StampTrimUnit datetime.ElapsedTime
	Gap           float64
	Ratio         float64

	hasPrev bool
	prev    value.PointValue
}

// NewDeadbandFilter builds a DeadbandFilter with the given parameters.
func NewDeadbandFilter(timeLimit, stampTrimUnit datetime.ElapsedTime, gap, ratio float64) *DeadbandFilter {
	return &DeadbandFilter{TimeLimit: timeLimit, StampTrimUnit: stampTrimUnit, Gap: gap, Ratio: ratio}
}

// Filter implements Filter.
func (f *DeadbandFilter) Filter(input *value.PointValue) []value.PointValue {
	if input == nil {
		return f.flush()
	}
	pv := *input
	pv.Stamp = trimStamp(pv.Stamp, f.StampTrimUnit)

	if !f.hasPrev {
		f.hasPrev = true
		f.prev = pv
		return []value.PointValue{pv}
	}

	if f.suppress(pv) {
		return nil
	}
	f.prev = pv
	return []value.PointValue{pv}
}

func (f *DeadbandFilter) suppress(pv value.PointValue) bool {
	elapsed := pv.Stamp.Sub(f.prev.Stamp)
	if elapsed > f.TimeLimit {
		return false
	}
	newVal, newOK := numeric(pv.Value)
	prevVal, prevOK := numeric(f.prev.Value)
	if !newOK || !prevOK {
		return false
	}
	threshold := f.Gap
	if ratioThreshold := absFloat(prevVal) * f.Ratio; ratioThreshold > threshold {
		threshold = ratioThreshold
	}
	return absFloat(newVal-prevVal) < threshold
}

func (f *DeadbandFilter) flush() []value.PointValue {
	return nil
}

// Reset implements Filter: clears held state so the next input is treated
// as the start of a new sequence.
func (f *DeadbandFilter) Reset() {
	f.hasPrev = false
	f.prev = value.PointValue{}
}

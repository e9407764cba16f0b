package filter

import (
	"math"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/value"
)

// StepFilter passes through values that cross a step boundary and
// suppresses values inside the deadband. If StepSize <= 0
// the filter is disabled and passes everything through unchanged.
type StepFilter struct {
	TimeLimit     datetime.ElapsedTime
	StampTrimUnit datetime.ElapsedTime
	DeadbandGap   float64
	DeadbandRatio float64
	StepSize      float64
	CeilingGap    float64
	FloorGap      float64

	hasPrev bool
	prev    value.PointValue
}

// NewStepFilter builds a StepFilter with the given parameters.
func NewStepFilter(timeLimit, stampTrimUnit datetime.ElapsedTime, deadbandGap, deadbandRatio, stepSize, ceilingGap, floorGap float64) *StepFilter {
	return &StepFilter{
		TimeLimit:     timeLimit,
		StampTrimUnit: stampTrimUnit,
		DeadbandGap:   deadbandGap,
		DeadbandRatio: deadbandRatio,
		StepSize:      stepSize,
		CeilingGap:    ceilingGap,
		FloorGap:      floorGap,
	}
}

// Filter implements Filter.
func (f *StepFilter) Filter(input *value.PointValue) []value.PointValue {
	if input == nil {
		return nil
	}
	if f.StepSize <= 0 {
		return []value.PointValue{*input}
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

// suppress reports whether pv should be dropped: it is within deadband of
// the previously passed value, and it has not crossed a step boundary.
func (f *StepFilter) suppress(pv value.PointValue) bool {
	elapsed := pv.Stamp.Sub(f.prev.Stamp)
	newVal, newOK := numeric(pv.Value)
	prevVal, prevOK := numeric(f.prev.Value)
	if !newOK || !prevOK {
		return false
	}

	inDeadband := false
	if elapsed <= f.TimeLimit {
		threshold := f.DeadbandGap
		if ratioThreshold := absFloat(prevVal) * f.DeadbandRatio; ratioThreshold > threshold {
			threshold = ratioThreshold
		}
		inDeadband = absFloat(newVal-prevVal) < threshold
	}
	if !inDeadband {
		return false
	}
	return !f.crossedStepBoundary(newVal)
}

// crossedStepBoundary reports whether newVal's distance to its nearest
// multiple of StepSize exceeds the gap on the matching side (CeilingGap
// above the multiple, FloorGap below it).
func (f *StepFilter) crossedStepBoundary(newVal float64) bool {
	multiple := math.Round(newVal/f.StepSize) * f.StepSize
	dist := newVal - multiple
	if dist >= 0 {
		return dist > f.CeilingGap
	}
	return -dist > f.FloorGap
}

// Reset implements Filter.
func (f *StepFilter) Reset() {
	f.hasPrev = false
	f.prev = value.PointValue{}
}

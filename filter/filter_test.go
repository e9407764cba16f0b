package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/value"
)

func pv(stampSeconds float64, v float64) value.PointValue {
	return value.PointValue{
		Stamp: datetime.DateTime(int64(stampSeconds * float64(datetime.Second))),
		Value: value.NewDouble(v),
	}
}

// TestDeadbandSuppressionInsideWindow confirms a value within gap and
// within time_limit of the previous passed value is suppressed.
func TestDeadbandSuppressionInsideWindow(t *testing.T) {
	f := NewDeadbandFilter(60*datetime.Second, 0, 1.0, 0)

	out1 := f.Filter(ptr(pv(0, 10.0)))
	require.Len(t, out1, 1)
	assert.Equal(t, 10.0, mustDouble(t, out1[0].Value))

	out2 := f.Filter(ptr(pv(30, 10.5)))
	assert.Empty(t, out2)
}

// TestDeadbandPassThroughOutsideTimeLimit confirms a value outside
// time_limit always passes, regardless of magnitude.
func TestDeadbandPassThroughOutsideTimeLimit(t *testing.T) {
	f := NewDeadbandFilter(60*datetime.Second, 0, 1.0, 0)

	out1 := f.Filter(ptr(pv(0, 10.0)))
	require.Len(t, out1, 1)

	out2 := f.Filter(ptr(pv(61, 10.0)))
	require.Len(t, out2, 1)
	assert.Equal(t, datetime.DateTime(61*int64(datetime.Second)), out2[0].Stamp)
}

// TestDeadbandResetIdempotence confirms reset then re-filtering the same
// value that previously passed must pass again.
func TestDeadbandResetIdempotence(t *testing.T) {
	f := NewDeadbandFilter(60*datetime.Second, 0, 1.0, 0)
	v := pv(0, 10.0)

	out1 := f.Filter(ptr(v))
	require.Len(t, out1, 1)

	f.Reset()
	out2 := f.Filter(ptr(v))
	require.Len(t, out2, 1)
	assert.Equal(t, out1[0].Value, out2[0].Value)
}

func TestStepFilterDisabledPassesEverything(t *testing.T) {
	f := NewStepFilter(60*datetime.Second, 0, 1.0, 0, 0, 0, 0)
	out := f.Filter(ptr(pv(0, 10.0)))
	require.Len(t, out, 1)
	out = f.Filter(ptr(pv(1, 10.01)))
	require.Len(t, out, 1)
}

func TestStepFilterSuppressesWithinDeadbandUntilStepCrossed(t *testing.T) {
	f := NewStepFilter(60*datetime.Second, 0, 0.5, 0, 10.0, 1.0, 1.0)

	out := f.Filter(ptr(pv(0, 10.0)))
	require.Len(t, out, 1)

	// Within deadband of 10.0 (distance 0.2) and not past the step
	// boundary (nearest multiple 10, distance 0.2 <= ceiling gap 1.0).
	out = f.Filter(ptr(pv(1, 10.2)))
	assert.Empty(t, out)

	// Far enough from the last passed value to fall outside the
	// deadband entirely, so it passes regardless of step position.
	out = f.Filter(ptr(pv(2, 18.5)))
	require.Len(t, out, 1)
	assert.Equal(t, 18.5, mustDouble(t, out[0].Value))
}

func TestStepFilterResetIdempotence(t *testing.T) {
	f := NewStepFilter(60*datetime.Second, 0, 0.5, 0, 10.0, 1.0, 1.0)
	v := pv(0, 10.0)
	out1 := f.Filter(ptr(v))
	require.Len(t, out1, 1)
	f.Reset()
	out2 := f.Filter(ptr(v))
	require.Len(t, out2, 1)
}

func TestInterpolatorDropsMidpointOnLine(t *testing.T) {
	f := NewInterpolatorFilter(60*datetime.Second, 0.5, 0)

	out := f.Filter(ptr(pv(0, 0.0)))
	assert.Len(t, out, 1) // first point passes immediately

	out = f.Filter(ptr(pv(10, 10.0)))
	assert.Empty(t, out) // held as candidate midpoint

	// third point continues the same line; midpoint (10,10) lies on the
	// line between (0,0) and (20,20), so it is dropped.
	out = f.Filter(ptr(pv(20, 20.0)))
	assert.Empty(t, out)

	// flush emits the pending tail (the last held point).
	out = f.Filter(nil)
	require.Len(t, out, 1)
	assert.Equal(t, 20.0, mustDouble(t, out[0].Value))
}

func TestInterpolatorBreaksOnGapAndNull(t *testing.T) {
	f := NewInterpolatorFilter(5*datetime.Second, 0.5, 0)

	out := f.Filter(ptr(pv(0, 0.0)))
	require.Len(t, out, 1)
	out = f.Filter(ptr(pv(1, 1.0)))
	assert.Empty(t, out)

	// Gap exceeds TimeLimit: breaks the sequence, flushing the held
	// midpoint then forwarding the breaking value.
	out = f.Filter(ptr(pv(10, 50.0)))
	require.Len(t, out, 2)
	assert.Equal(t, 1.0, mustDouble(t, out[0].Value))
	assert.Equal(t, 50.0, mustDouble(t, out[1].Value))
}

func ptr(pv value.PointValue) *value.PointValue { return &pv }

func mustDouble(t *testing.T, v value.Value) float64 {
	t.Helper()
	f, ok := v.Double()
	require.True(t, ok)
	return f
}

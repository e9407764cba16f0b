package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/value"
)

// fakeSelector stands in for Processor in Select tests: it returns a fixed
// value for every input handle present in its map, regardless of stamp.
type fakeSelector map[metadata.Handle]value.PointValue

func (f fakeSelector) ValueAt(_ context.Context, input metadata.Handle, _ datetime.DateTime) (value.PointValue, bool, error) {
	pv, ok := f[input]
	return pv, ok, nil
}

func (f fakeSelector) LatestAt(_ context.Context, input metadata.Handle, _ datetime.DateTime) (value.PointValue, bool, error) {
	pv, ok := f[input]
	return pv, ok, nil
}

func TestNewBehaviorNeverTriggers(t *testing.T) {
	rel := &metadata.PointRelation{Behavior: metadata.BehaviorNeverTriggers}
	b, err := NewBehavior(rel)
	require.NoError(t, err)
	assert.Equal(t, metadata.BehaviorNeverTriggers, b.Kind())
	assert.Empty(t, b.Trigger(value.PointValue{}, rel))
}

func TestNewBehaviorAlwaysTriggers(t *testing.T) {
	rel := &metadata.PointRelation{Behavior: metadata.BehaviorAlwaysTriggers, Result: metadata.Handle(3)}
	b, err := NewBehavior(rel)
	require.NoError(t, err)

	notice := value.PointValue{Stamp: datetime.DateTime(7), Value: value.NewInt64(1)}
	out := b.Trigger(notice, rel)
	require.Len(t, out, 1)
	assert.Equal(t, metadata.Handle(3), out[0].Point)
	assert.Equal(t, datetime.DateTime(7), out[0].Stamp)
	assert.Equal(t, notice, out[0].Notice)
}

func TestNewBehaviorSynchronizedUsesNextTick(t *testing.T) {
	rel := &metadata.PointRelation{
		Behavior: metadata.BehaviorSynchronized,
		Result:   metadata.Handle(1),
		Sync:     &metadata.SyncSpec{Period: 5 * time.Second},
	}

	b, err := NewBehavior(rel)
	require.NoError(t, err)
	assert.Equal(t, metadata.BehaviorSynchronized, b.Kind())

	notice := value.PointValue{Stamp: datetime.DateTime(3 * int64(datetime.Second))}
	out := b.Trigger(notice, rel)
	require.Len(t, out, 1)
	assert.Equal(t, datetime.DateTime(5*int64(datetime.Second)), out[0].Stamp)
}

func TestNewBehaviorReplicatorForwardsUnchanged(t *testing.T) {
	rel := &metadata.PointRelation{Behavior: metadata.BehaviorReplicator, Result: metadata.Handle(9)}
	b, err := NewBehavior(rel)
	require.NoError(t, err)

	notice := value.PointValue{Stamp: datetime.DateTime(42), Value: value.NewString("x")}
	out := b.Trigger(notice, rel)
	require.Len(t, out, 1)
	assert.Equal(t, metadata.Handle(9), out[0].Point)
	assert.Equal(t, notice, out[0].Notice)
}

// TestNewBehaviorStepFilteredParsesStringParams exercises the same string-
// encoded param path metadata/load.go produces from TOML, confirming
// stepFilterFromParams actually wires step_size/deadband_gap through
// (see metadata.Params.GetFloat64).
func TestNewBehaviorStepFilteredParsesStringParams(t *testing.T) {
	params := metadata.NewParams(map[string][]value.Value{
		"step_size":      {value.NewString("10.0")},
		"deadband_gap":   {value.NewString("1.0")},
		"deadband_ratio": {value.NewString("0.5")},
		"ceiling_gap":    {value.NewString("1.0")},
		"floor_gap":      {value.NewString("1.0")},
		"time_limit_ms":  {value.NewString("60000")},
	})
	rel := &metadata.PointRelation{Behavior: metadata.BehaviorStepFiltered, Result: metadata.Handle(2), Params: params}
	b, err := NewBehavior(rel)
	require.NoError(t, err)
	assert.Equal(t, metadata.BehaviorStepFiltered, b.Kind())

	first := value.PointValue{Stamp: datetime.DateTime(0), Value: value.NewDouble(10.0)}
	out := b.Trigger(first, rel)
	require.Len(t, out, 1, "first value always passes")

	// Within the configured deadband (distance 0.2 <= 1.0 gap) and not
	// past the step boundary: suppressed.
	within := value.PointValue{Stamp: datetime.DateTime(int64(1 * datetime.Second)), Value: value.NewDouble(10.2)}
	out = b.Trigger(within, rel)
	assert.Empty(t, out, "step filter should honor params loaded as strings")
}

// TestNeverTriggersSelectFetchesLatest confirms a NeverTriggers relation,
// which never appears as a result's TriggerRelation, still contributes its
// latest archived value to the result during the select pass: the gap that
// made its documented "fed to the transform but never recomputes" purpose
// unreachable.
func TestNeverTriggersSelectFetchesLatest(t *testing.T) {
	rel := &metadata.PointRelation{Behavior: metadata.BehaviorNeverTriggers, Input: metadata.Handle(11)}
	b, err := NewBehavior(rel)
	require.NoError(t, err)

	configValue := value.PointValue{Stamp: datetime.DateTime(1), Value: value.NewDouble(2.5)}
	sel := fakeSelector{metadata.Handle(11): configValue}

	result := &ResultValue{Stamp: datetime.DateTime(100)}
	require.NoError(t, b.Select(context.Background(), result, rel, false, sel))
	require.Len(t, result.Inputs, 1)
	assert.Equal(t, configValue, result.Inputs[0])
}

// TestAlwaysTriggersSelectAsSecondaryInput confirms that when an
// AlwaysTriggers relation is NOT the one that triggered the result (it sits
// on the same target point as another relation that did), it still
// contributes its own latest value rather than being skipped, so a point
// driven by one primary input plus a secondary one resolves both.
func TestAlwaysTriggersSelectAsSecondaryInput(t *testing.T) {
	rel := &metadata.PointRelation{Behavior: metadata.BehaviorAlwaysTriggers, Input: metadata.Handle(21)}
	b, err := NewBehavior(rel)
	require.NoError(t, err)

	secondary := value.PointValue{Stamp: datetime.DateTime(1), Value: value.NewInt64(7)}
	sel := fakeSelector{metadata.Handle(21): secondary}

	result := &ResultValue{Stamp: datetime.DateTime(100), Notice: value.PointValue{Value: value.NewInt64(999)}}
	require.NoError(t, b.Select(context.Background(), result, rel, false, sel))
	require.Len(t, result.Inputs, 1)
	assert.Equal(t, secondary, result.Inputs[0], "secondary relation must fetch its own value, not reuse another relation's notice")
}

// TestAlwaysTriggersSelectAsTriggerReusesNotice confirms the relation that
// actually produced the result's notice short-circuits the store lookup.
func TestAlwaysTriggersSelectAsTriggerReusesNotice(t *testing.T) {
	rel := &metadata.PointRelation{Behavior: metadata.BehaviorAlwaysTriggers, Input: metadata.Handle(21)}
	b, err := NewBehavior(rel)
	require.NoError(t, err)

	notice := value.PointValue{Stamp: datetime.DateTime(100), Value: value.NewInt64(999)}
	result := &ResultValue{Stamp: datetime.DateTime(100), Notice: notice}
	require.NoError(t, b.Select(context.Background(), result, rel, true, fakeSelector{}))
	require.Len(t, result.Inputs, 1)
	assert.Equal(t, notice, result.Inputs[0])
}

func TestNewBehaviorRejectsUnbuildableSync(t *testing.T) {
	rel := &metadata.PointRelation{
		Behavior: metadata.BehaviorSynchronized,
		Sync:     &metadata.SyncSpec{CronExpr: "bad expression with too many fields here"},
	}
	_, err := NewBehavior(rel)
	assert.Error(t, err)
}

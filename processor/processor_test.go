package processor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/store"
	"github.com/xapiens/rvpf/value"
)

// TestProcessorRunOnceAlwaysTriggers confirms one batch's results and the
// notifier acknowledgment commit together. A notice on point a,
// related to point b by AlwaysTriggers, produces a b value at the same
// stamp once RunOnce returns; a's notice is committed, so the only notice
// left pending is the one the store emitted for b's new value.
func TestProcessorRunOnceAlwaysTriggers(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	arena := metadata.NewArena()
	a := &metadata.Point{ID: uuid.New(), Name: "a"}
	b := &metadata.Point{ID: uuid.New(), Name: "b"}
	ha, err := arena.AddPoint(a)
	require.NoError(t, err)
	hb, err := arena.AddPoint(b)
	require.NoError(t, err)
	_, err = arena.AddRelation(&metadata.PointRelation{Input: ha, Result: hb, Behavior: metadata.BehaviorAlwaysTriggers})
	require.NoError(t, err)
	require.NoError(t, arena.Freeze())

	p, err := New(arena, st, 1, time.Second, 4, datetime.SystemClock{})
	require.NoError(t, err)

	ctx := context.Background()
	stamp := datetime.FromMillis(1000)
	_, err = st.Update(ctx, []value.PointValue{{Point: a.ID, Stamp: stamp, Value: value.NewDouble(42)}})
	require.NoError(t, err)

	require.NoError(t, p.RunOnce(ctx))

	cur, err := st.Open(store.Query{Point: b.ID, HasAt: true, At: stamp})
	require.NoError(t, err)
	defer cur.Close()
	vv, ok, err := cur.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42.0, mustFloat(t, vv.Value))

	n, err := st.Notifier().Receive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, n, 1, "a's notice must be committed (acknowledged); only b's result notice remains")
	left, err := value.DecodeVersionedValue(n[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, b.ID, left.Point)
}

// TestProcessorRunOnceSuppressesStepFilteredWithinDeadband exercises a
// StepFilteredBehavior relation end to end: a second notice within the
// deadband produces no new value in the target point's store.
func TestProcessorRunOnceSuppressesStepFilteredWithinDeadband(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	arena := metadata.NewArena()
	a := &metadata.Point{ID: uuid.New(), Name: "a"}
	b := &metadata.Point{ID: uuid.New(), Name: "b", Transform: metadata.TransformSpec{Name: "step_filter"}}
	ha, err := arena.AddPoint(a)
	require.NoError(t, err)
	hb, err := arena.AddPoint(b)
	require.NoError(t, err)
	params := metadata.NewParams(map[string][]value.Value{
		"step_size":     {value.NewString("10.0")},
		"deadband_gap":  {value.NewString("1.0")},
		"ceiling_gap":   {value.NewString("1.0")},
		"floor_gap":     {value.NewString("1.0")},
		"time_limit_ms": {value.NewString("60000")},
	})
	_, err = arena.AddRelation(&metadata.PointRelation{Input: ha, Result: hb, Behavior: metadata.BehaviorStepFiltered, Params: params})
	require.NoError(t, err)
	require.NoError(t, arena.Freeze())

	p, err := New(arena, st, 1, time.Second, 4, datetime.SystemClock{})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = st.Update(ctx, []value.PointValue{{Point: a.ID, Stamp: datetime.FromMillis(0), Value: value.NewDouble(10.0)}})
	require.NoError(t, err)
	require.NoError(t, p.RunOnce(ctx))

	_, err = st.Update(ctx, []value.PointValue{{Point: a.ID, Stamp: datetime.FromMillis(1000), Value: value.NewDouble(10.2)}})
	require.NoError(t, err)
	require.NoError(t, p.RunOnce(ctx))

	n, err := st.Count(ctx, store.Query{Point: b.ID, NotBefore: datetime.DateTime(0), Before: datetime.FromMillis(100000)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n, "the within-deadband notice must not produce a second b value")
}

// TestSelectInputsResolvesEveryRelationIncludingNeverTriggers builds a
// target point fed by two relations: a AlwaysTriggers primary and a
// NeverTriggers secondary. Triggering only the primary must still resolve
// the secondary's current value into the result, confirming
// NeverTriggers relations are reachable even when some other relation owns
// the triggering notice.
func TestSelectInputsResolvesEveryRelationIncludingNeverTriggers(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	arena := metadata.NewArena()
	primary := &metadata.Point{ID: uuid.New(), Name: "primary"}
	cfg := &metadata.Point{ID: uuid.New(), Name: "cfg"}
	target := &metadata.Point{ID: uuid.New(), Name: "target"}
	hp, err := arena.AddPoint(primary)
	require.NoError(t, err)
	hc, err := arena.AddPoint(cfg)
	require.NoError(t, err)
	ht, err := arena.AddPoint(target)
	require.NoError(t, err)
	_, err = arena.AddRelation(&metadata.PointRelation{Input: hp, Result: ht, Behavior: metadata.BehaviorAlwaysTriggers})
	require.NoError(t, err)
	_, err = arena.AddRelation(&metadata.PointRelation{Input: hc, Result: ht, Behavior: metadata.BehaviorNeverTriggers})
	require.NoError(t, err)
	require.NoError(t, arena.Freeze())

	p, err := New(arena, st, 4, time.Second, 4, datetime.SystemClock{})
	require.NoError(t, err)

	ctx := context.Background()
	cfgStamp := datetime.FromMillis(0)
	_, err = st.Update(ctx, []value.PointValue{{Point: cfg.ID, Stamp: cfgStamp, Value: value.NewDouble(3.5)}})
	require.NoError(t, err)

	primaryStamp := datetime.FromMillis(5000)
	notice := value.PointValue{Point: primary.ID, Stamp: primaryStamp, Value: value.NewDouble(42)}

	batch := NewBatch(4, time.Second, datetime.SystemClock{})
	batch.Add(p.trigger(notice)...)
	require.Len(t, batch.Pending, 1)

	require.NoError(t, p.selectInputs(ctx, batch))

	result := batch.Pending[0]
	require.Len(t, result.Inputs, 2, "both the triggering relation and the NeverTriggers relation must be resolved")

	var sawPrimary, sawCfg bool
	for _, in := range result.Inputs {
		if f, ok := in.Value.Double(); ok && f == 42 {
			sawPrimary = true
		}
		if f, ok := in.Value.Double(); ok && f == 3.5 {
			sawCfg = true
		}
	}
	assert.True(t, sawPrimary, "the triggering relation's value must be present")
	assert.True(t, sawCfg, "the NeverTriggers relation's value must be resolved even though it did not trigger")
}

// TestSynchronizedResultObservesPriorStoredValue drives the select pass for
// a Synchronized relation whose result stamp (the next Sync tick) already
// holds a stored value: the prior row must be fetched into the result, and
// the apply pass must not re-emit an identical recomputation of it.
func TestSynchronizedResultObservesPriorStoredValue(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	arena := metadata.NewArena()
	a := &metadata.Point{ID: uuid.New(), Name: "a"}
	b := &metadata.Point{ID: uuid.New(), Name: "b"}
	ha, err := arena.AddPoint(a)
	require.NoError(t, err)
	hb, err := arena.AddPoint(b)
	require.NoError(t, err)
	_, err = arena.AddRelation(&metadata.PointRelation{
		Input:    ha,
		Result:   hb,
		Behavior: metadata.BehaviorSynchronized,
		Sync:     &metadata.SyncSpec{Period: 5 * time.Second},
	})
	require.NoError(t, err)
	require.NoError(t, arena.Freeze())

	p, err := New(arena, st, 4, time.Second, 4, datetime.SystemClock{})
	require.NoError(t, err)

	ctx := context.Background()
	tick := datetime.DateTime(5 * int64(datetime.Second))
	_, err = st.Update(ctx, []value.PointValue{
		{Point: a.ID, Stamp: datetime.DateTime(3 * int64(datetime.Second)), Value: value.NewDouble(42)},
		{Point: b.ID, Stamp: tick, Value: value.NewDouble(42)},
	})
	require.NoError(t, err)

	notice := value.PointValue{Point: a.ID, Stamp: datetime.DateTime(3 * int64(datetime.Second)), Value: value.NewDouble(42)}
	batch := NewBatch(4, time.Second, datetime.SystemClock{})
	batch.Add(p.trigger(notice)...)
	require.Len(t, batch.Pending, 1)
	assert.Equal(t, tick, batch.Pending[0].Stamp)

	require.NoError(t, p.selectInputs(ctx, batch))
	result := batch.Pending[0]
	require.NotNil(t, result.PriorStored, "the stored row at the result's tick must be observed")
	assert.Equal(t, tick, result.PriorStored.Stamp)
	assert.Equal(t, 42.0, mustFloat(t, result.PriorStored.Value))

	emitted, err := p.apply(batch)
	require.NoError(t, err)
	assert.Empty(t, emitted, "recomputing the already-stored row must not re-emit it")
}

func mustFloat(t *testing.T, v value.Value) float64 {
	t.Helper()
	f, ok := v.Double()
	require.True(t, ok)
	return f
}

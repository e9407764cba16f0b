package processor

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/value"
)

func TestResolveEngineDispatch(t *testing.T) {
	arena := metadata.NewArena()

	cases := []struct {
		name string
		want Engine
	}{
		{"", NullEngine{}},
		{"identity", NullEngine{}},
		{"step_filter", StepFilterEngine{}},
		{"deadband_filter", DeadbandFilterEngine{}},
		{"resynchronizer", ResynchronizerEngine{}},
	}
	for _, c := range cases {
		e, err := ResolveEngine(metadata.TransformSpec{Name: c.name}, arena)
		require.NoError(t, err)
		assert.IsType(t, c.want, e)
	}
}

func TestResolveEngineRejectsUnknownTransform(t *testing.T) {
	arena := metadata.NewArena()
	_, err := ResolveEngine(metadata.TransformSpec{Name: "nonsense"}, arena)
	assert.Error(t, err)
}

func TestResolveEngineSplitterResolvesNamedTargets(t *testing.T) {
	arena := metadata.NewArena()
	t1 := &metadata.Point{ID: uuid.New(), Name: "target-1"}
	t2 := &metadata.Point{ID: uuid.New(), Name: "target-2"}
	_, err := arena.AddPoint(t1)
	require.NoError(t, err)
	_, err = arena.AddPoint(t2)
	require.NoError(t, err)

	params := metadata.NewParams(map[string][]value.Value{
		"targets": {value.NewString("target-1"), value.NewString("target-2")},
	})
	e, err := ResolveEngine(metadata.TransformSpec{Name: "splitter", Params: params}, arena)
	require.NoError(t, err)
	splitter, ok := e.(SplitterEngine)
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{t1.ID, t2.ID}, splitter.Targets)
}

func TestResolveEngineSplitterRejectsUnknownTarget(t *testing.T) {
	arena := metadata.NewArena()
	params := metadata.NewParams(map[string][]value.Value{"targets": {value.NewString("ghost")}})
	_, err := ResolveEngine(metadata.TransformSpec{Name: "splitter", Params: params}, arena)
	assert.Error(t, err)
}

func TestNullEnginePrefersInputsOverNotice(t *testing.T) {
	target := &metadata.Point{ID: uuid.New()}
	result := ResultValue{
		Stamp:  datetime.DateTime(10),
		Notice: value.PointValue{Value: value.NewInt64(1)},
		Inputs: []value.PointValue{{Value: value.NewInt64(2)}},
	}
	out, err := NullEngine{}.Apply(result, target)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), mustInt64(t, out[0].Value))
	assert.Equal(t, target.ID, out[0].Point)
}

func TestNullEngineFallsBackToNotice(t *testing.T) {
	target := &metadata.Point{ID: uuid.New()}
	result := ResultValue{
		Stamp:  datetime.DateTime(10),
		Notice: value.PointValue{Value: value.NewInt64(9)},
	}
	out, err := NullEngine{}.Apply(result, target)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(9), mustInt64(t, out[0].Value))
}

func TestSplitterEngineZipsTuplePositionally(t *testing.T) {
	t1, t2 := uuid.New(), uuid.New()
	e := SplitterEngine{Targets: []uuid.UUID{t1, t2}}
	target := &metadata.Point{ID: uuid.New(), Name: "splitter-out"}
	result := ResultValue{
		Stamp:  datetime.DateTime(5),
		Notice: value.PointValue{Value: value.NewTuple([]value.Value{value.NewInt64(1), value.NewInt64(2), value.NewInt64(3)})},
	}
	out, err := e.Apply(result, target)
	require.NoError(t, err)
	require.Len(t, out, 2) // only as many as there are targets
	assert.Equal(t, t1, out[0].Point)
	assert.Equal(t, int64(1), mustInt64(t, out[0].Value))
	assert.Equal(t, t2, out[1].Point)
	assert.Equal(t, int64(2), mustInt64(t, out[1].Value))
}

func TestSplitterEngineRejectsNonTuple(t *testing.T) {
	e := SplitterEngine{Targets: []uuid.UUID{uuid.New()}}
	target := &metadata.Point{ID: uuid.New(), Name: "splitter-out"}
	result := ResultValue{Notice: value.PointValue{Value: value.NewInt64(1)}}
	_, err := e.Apply(result, target)
	assert.Error(t, err)
}

func mustInt64(t *testing.T, v value.Value) int64 {
	t.Helper()
	n, ok := v.Int64()
	require.True(t, ok)
	return n
}

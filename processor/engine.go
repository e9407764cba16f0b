package processor

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/value"
)

// Engine is the Transform implementation family: given a fully-selected
// ResultValue and the target point's metadata, produce zero or more
// PointValues to commit.
// Only SplitterEngine's Apply is allowed to return more than one
// value.
type Engine interface {
	Apply(result ResultValue, target *metadata.Point) ([]value.PointValue, error)
}

// NullEngine passes the triggering notice (or, lacking one, the first
// selected input) straight through to the target point unchanged. Used
// by NeverTriggers/AlwaysTriggers pass-through points and by Replicator.
type NullEngine struct{}

func (NullEngine) Apply(result ResultValue, target *metadata.Point) ([]value.PointValue, error) {
	// The select pass resolves every input relation of target, in
	// relation order, into result.Inputs - including NeverTriggers and
	// secondary relations that never produced the triggering notice
	// themselves - even though NullEngine only forwards the first one.
	src := result.Notice
	if len(result.Inputs) > 0 {
		src = result.Inputs[0]
	}
	return []value.PointValue{{
		Point: target.ID,
		Stamp: result.Stamp,
		Value: src.Value,
		State: src.State,
	}}, nil
}

// StepFilterEngine repackages the value StepFilteredBehavior already
// computed (via filter.StepFilter) as an update to the target point.
type StepFilterEngine struct{}

func (StepFilterEngine) Apply(result ResultValue, target *metadata.Point) ([]value.PointValue, error) {
	return []value.PointValue{{Point: target.ID, Stamp: result.Stamp, Value: result.Notice.Value, State: result.Notice.State}}, nil
}

// DeadbandFilterEngine mirrors StepFilterEngine for DeadbandFilteredBehavior.
type DeadbandFilterEngine struct{}

func (DeadbandFilterEngine) Apply(result ResultValue, target *metadata.Point) ([]value.PointValue, error) {
	return []value.PointValue{{Point: target.ID, Stamp: result.Stamp, Value: result.Notice.Value, State: result.Notice.State}}, nil
}

// ResynchronizerEngine mirrors the filter engines for ResynchronizedBehavior,
// whose filter.ResynchronizerFilter already produced the interpolated value.
type ResynchronizerEngine struct{}

func (ResynchronizerEngine) Apply(result ResultValue, target *metadata.Point) ([]value.PointValue, error) {
	return []value.PointValue{{Point: target.ID, Stamp: result.Stamp, Value: result.Notice.Value}}, nil
}

// SplitterEngine fans one ResultValue carrying a Tuple out into one
// PointValue per target UUID named by the "targets" param, zipped
// positionally.
type SplitterEngine struct {
	Targets []uuid.UUID
}

func (e SplitterEngine) Apply(result ResultValue, target *metadata.Point) ([]value.PointValue, error) {
	items, ok := result.Notice.Value.Tuple()
	if !ok {
		return nil, fmt.Errorf("processor: splitter requires a tuple value at point %q", target.Name)
	}
	n := len(e.Targets)
	if len(items) < n {
		n = len(items)
	}
	out := make([]value.PointValue, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, value.PointValue{Point: e.Targets[i], Stamp: result.Stamp, Value: items[i]})
	}
	return out, nil
}

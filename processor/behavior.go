package processor

import (
	"context"
	"time"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/filter"
	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/syncsched"
	"github.com/xapiens/rvpf/value"
)

// Selector resolves one relation's current value on behalf of a Behavior
// during the select pass. The Processor is the sole
// implementation, fetching through its CacheManager and store.
type Selector interface {
	// ValueAt returns input's value exactly at stamp, synthesizing one by
	// interpolation/extrapolation between surrounding archived rows when
	// no row matches exactly. Used by Synchronized, whose result stamp is
	// a Sync tick rather than the triggering notice's own stamp.
	ValueAt(ctx context.Context, input metadata.Handle, stamp datetime.DateTime) (value.PointValue, bool, error)
	// LatestAt returns input's most recently archived value at or before
	// stamp. Used by every relation contributing a secondary input rather
	// than owning the result's stamp: NeverTriggers, and any
	// AlwaysTriggers/filtered/Replicator relation that is not the one
	// whose notice produced this particular result.
	LatestAt(ctx context.Context, input metadata.Handle, stamp datetime.DateTime) (value.PointValue, bool, error)
}

// Behavior is the per-relation triggering state machine: it
// decides, given a notice on its input point, whether and at which
// stamp(s) the relation's result should be recomputed, and it resolves its
// own contribution to a pending result during the select pass.
type Behavior interface {
	Kind() metadata.BehaviorKind
	// Trigger turns one notice into zero or more pending ResultValues
	// targeting rel.Result.
	Trigger(notice value.PointValue, rel *metadata.PointRelation) []ResultValue
	// Select runs the select pass for rel against result:
	// it appends rel's resolved value to result.Inputs, if one is found.
	// isTrigger reports whether rel is the relation whose notice produced
	// result (set from ResultValue.TriggerRelation), letting a behavior
	// that already captured the triggering value in result.Notice reuse
	// it instead of re-querying the store.
	Select(ctx context.Context, result *ResultValue, rel *metadata.PointRelation, isTrigger bool, sel Selector) error
	// IsResultFetched reports whether results this behavior creates must
	// observe any value already stored at the result's stamp before the
	// transform recomputes. Declared by the schedule-driven behaviors
	// (Synchronized, Resynchronized), whose result stamps land on Sync
	// ticks a previous batch may already have filled.
	IsResultFetched() bool
}

// NewBehavior builds the Behavior instance for rel, per its declared
// BehaviorKind.
func NewBehavior(rel *metadata.PointRelation) (Behavior, error) {
	switch rel.Behavior {
	case metadata.BehaviorNeverTriggers:
		return neverTriggers{}, nil
	case metadata.BehaviorAlwaysTriggers:
		return alwaysTriggers{}, nil
	case metadata.BehaviorSynchronized:
		sync, err := rel.Sync.Build()
		if err != nil {
			return nil, err
		}
		return &synchronized{sync: sync}, nil
	case metadata.BehaviorStepFiltered:
		return &filtered{kind: metadata.BehaviorStepFiltered, f: stepFilterFromParams(rel.Params)}, nil
	case metadata.BehaviorDeadbandFiltered:
		return &filtered{kind: metadata.BehaviorDeadbandFiltered, f: deadbandFilterFromParams(rel.Params)}, nil
	case metadata.BehaviorResynchronized:
		sync, err := rel.Sync.Build()
		if err != nil {
			return nil, err
		}
		return &filtered{kind: metadata.BehaviorResynchronized, f: filter.NewResynchronizerFilter(sync)}, nil
	case metadata.BehaviorReplicator:
		return replicator{}, nil
	default:
		return neverTriggers{}, nil
	}
}

// neverTriggers: input feeds the transform but never causes recomputation
// on its own.
type neverTriggers struct{}

func (neverTriggers) Kind() metadata.BehaviorKind { return metadata.BehaviorNeverTriggers }
func (neverTriggers) Trigger(value.PointValue, *metadata.PointRelation) []ResultValue { return nil }
func (neverTriggers) IsResultFetched() bool { return false }

// Select fetches the input's current value: a NeverTriggers relation never
// produces the triggering notice itself, so it always contributes its
// latest archived value at or before the result's stamp.
func (neverTriggers) Select(ctx context.Context, result *ResultValue, rel *metadata.PointRelation, isTrigger bool, sel Selector) error {
	pv, ok, err := sel.LatestAt(ctx, rel.Input, result.Stamp)
	if err != nil {
		return err
	}
	if ok {
		result.Inputs = append(result.Inputs, pv)
	}
	return nil
}

// alwaysTriggers (PrimaryBehavior): every notice triggers a result at the
// notice's own stamp.
type alwaysTriggers struct{}

func (alwaysTriggers) Kind() metadata.BehaviorKind { return metadata.BehaviorAlwaysTriggers }

func (alwaysTriggers) IsResultFetched() bool { return false }

func (alwaysTriggers) Trigger(notice value.PointValue, rel *metadata.PointRelation) []ResultValue {
	return []ResultValue{{Point: rel.Result, Stamp: notice.Stamp, Notice: notice, TriggerRelation: rel.Handle()}}
}

// Select reuses the triggering notice when this relation is the one that
// produced result; otherwise it is a secondary input on the same target
// point and contributes its latest value at or before the result's stamp.
func (alwaysTriggers) Select(ctx context.Context, result *ResultValue, rel *metadata.PointRelation, isTrigger bool, sel Selector) error {
	if isTrigger {
		result.Inputs = append(result.Inputs, result.Notice)
		return nil
	}
	pv, ok, err := sel.LatestAt(ctx, rel.Input, result.Stamp)
	if err != nil {
		return err
	}
	if ok {
		result.Inputs = append(result.Inputs, pv)
	}
	return nil
}

// synchronized: result stamp is the next Sync tick after the notice.
type synchronized struct {
	sync syncsched.Sync
}

func (s *synchronized) Kind() metadata.BehaviorKind { return metadata.BehaviorSynchronized }

func (s *synchronized) IsResultFetched() bool { return true }

func (s *synchronized) Trigger(notice value.PointValue, rel *metadata.PointRelation) []ResultValue {
	stamp, ok := s.sync.NextStamp(notice.Stamp, false)
	if !ok {
		return nil
	}
	return []ResultValue{{Point: rel.Result, Stamp: stamp, Notice: notice, TriggerRelation: rel.Handle()}}
}

// Select always re-fetches the driving input at the result's stamp (the
// next Sync tick), since that stamp differs from the triggering notice's
// own stamp even when this relation is the trigger.
func (s *synchronized) Select(ctx context.Context, result *ResultValue, rel *metadata.PointRelation, isTrigger bool, sel Selector) error {
	pv, ok, err := sel.ValueAt(ctx, rel.Input, result.Stamp)
	if err != nil {
		return err
	}
	if ok {
		result.Inputs = append(result.Inputs, pv)
	}
	return nil
}

// filtered backs StepFiltered, DeadbandFiltered and Resynchronized: each
// owns the corresponding ingress filter and creates one result per value the
// filter emits.
type filtered struct {
	kind metadata.BehaviorKind
	f    filter.Filter
}

func (b *filtered) Kind() metadata.BehaviorKind { return b.kind }

func (b *filtered) IsResultFetched() bool { return b.kind == metadata.BehaviorResynchronized }

func (b *filtered) Trigger(notice value.PointValue, rel *metadata.PointRelation) []ResultValue {
	emitted := b.f.Filter(&notice)
	out := make([]ResultValue, 0, len(emitted))
	for _, pv := range emitted {
		out = append(out, ResultValue{Point: rel.Result, Stamp: pv.Stamp, Notice: pv, TriggerRelation: rel.Handle()})
	}
	return out
}

// Select reuses the filter's already-computed output when this relation is
// the trigger; as a secondary input on another relation's result it
// contributes its latest value at or before the result's stamp instead.
func (b *filtered) Select(ctx context.Context, result *ResultValue, rel *metadata.PointRelation, isTrigger bool, sel Selector) error {
	if isTrigger {
		result.Inputs = append(result.Inputs, result.Notice)
		return nil
	}
	pv, ok, err := sel.LatestAt(ctx, rel.Input, result.Stamp)
	if err != nil {
		return err
	}
	if ok {
		result.Inputs = append(result.Inputs, pv)
	}
	return nil
}

// replicator forwards the notice unchanged to rel.Result.
type replicator struct{}

func (replicator) Kind() metadata.BehaviorKind { return metadata.BehaviorReplicator }

func (replicator) IsResultFetched() bool { return false }

func (replicator) Trigger(notice value.PointValue, rel *metadata.PointRelation) []ResultValue {
	return []ResultValue{{Point: rel.Result, Stamp: notice.Stamp, Notice: notice, TriggerRelation: rel.Handle()}}
}

// Select mirrors alwaysTriggers: the trigger relation reuses the forwarded
// notice, a secondary one fetches its latest value.
func (replicator) Select(ctx context.Context, result *ResultValue, rel *metadata.PointRelation, isTrigger bool, sel Selector) error {
	if isTrigger {
		result.Inputs = append(result.Inputs, result.Notice)
		return nil
	}
	pv, ok, err := sel.LatestAt(ctx, rel.Input, result.Stamp)
	if err != nil {
		return err
	}
	if ok {
		result.Inputs = append(result.Inputs, pv)
	}
	return nil
}

func stepFilterFromParams(p metadata.Params) *filter.StepFilter {
	sf := &filter.StepFilter{}
	if v, ok := p.GetFloat64("step_size"); ok {
		sf.StepSize = v
	}
	if v, ok := p.GetFloat64("ceiling_gap"); ok {
		sf.CeilingGap = v
	}
	if v, ok := p.GetFloat64("floor_gap"); ok {
		sf.FloorGap = v
	}
	if v, ok := p.GetFloat64("deadband_gap"); ok {
		sf.DeadbandGap = v
	}
	if v, ok := p.GetFloat64("deadband_ratio"); ok {
		sf.DeadbandRatio = v
	}
	if ms, ok := p.GetInt64("time_limit_ms"); ok {
		sf.TimeLimit = datetime.FromDuration(time.Duration(ms) * time.Millisecond)
	}
	return sf
}

func deadbandFilterFromParams(p metadata.Params) *filter.DeadbandFilter {
	df := &filter.DeadbandFilter{}
	if v, ok := p.GetFloat64("gap"); ok {
		df.Gap = v
	}
	if v, ok := p.GetFloat64("ratio"); ok {
		df.Ratio = v
	}
	if ms, ok := p.GetInt64("time_limit_ms"); ok {
		df.TimeLimit = datetime.FromDuration(time.Duration(ms) * time.Millisecond)
	}
	return df
}

package processor

import (
	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/value"
)

// ResultValue is the processor's pending unit of work: a target point at a
// stamp, to be resolved into a PointValue once every required input is
// fetched.
type ResultValue struct {
	Point metadata.Handle
	Stamp datetime.DateTime
	// Inputs accumulates the resolved PointValues this result depends
	// on, in relation order. The engine consumes them in Apply.
	Inputs []value.PointValue
	// Notice is the triggering notice, kept for behaviors (Replicator,
	// the filter-backed behaviors) whose transform is a direct function
	// of it rather than of a separately fetched input set.
	Notice value.PointValue
	// TriggerRelation is the handle of the relation whose notice produced
	// this result, set by the Trigger call that created it. During the
	// select pass, a relation matching this handle may reuse Notice
	// instead of re-querying the store (see Behavior.Select).
	TriggerRelation metadata.Handle
	// PriorStored is the value already archived at (Point, Stamp), fetched
	// during the select pass when the triggering behavior declares
	// IsResultFetched. The apply pass drops an emission that reproduces it
	// exactly, so a replayed schedule tick does not rewrite its own row.
	PriorStored *value.PointValue
}

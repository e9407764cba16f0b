package metadata

import (
	"time"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/syncsched"
)

func datetimeElapsed(d time.Duration) datetime.ElapsedTime { return datetime.FromDuration(d) }

func datetimeOffset(d time.Duration) datetime.DateTime {
	return datetime.DateTime(0).Add(datetime.FromDuration(d))
}

// BehaviorKind names one member of the processor's behavior taxonomy.
type BehaviorKind uint8

const (
	BehaviorNeverTriggers BehaviorKind = iota
	BehaviorAlwaysTriggers
	BehaviorSynchronized
	BehaviorStepFiltered
	BehaviorDeadbandFiltered
	BehaviorResynchronized
	BehaviorReplicator
)

// String renders the behavior kind for logs and error messages.
func (b BehaviorKind) String() string {
	switch b {
	case BehaviorNeverTriggers:
		return "NeverTriggers"
	case BehaviorAlwaysTriggers:
		return "AlwaysTriggers"
	case BehaviorSynchronized:
		return "Synchronized"
	case BehaviorStepFiltered:
		return "StepFiltered"
	case BehaviorDeadbandFiltered:
		return "DeadbandFiltered"
	case BehaviorResynchronized:
		return "Resynchronized"
	case BehaviorReplicator:
		return "Replicator"
	default:
		return "Unknown"
	}
}

// SyncSpec names a relation's optional Sync schedule.
type SyncSpec struct {
	CronExpr string
	Zone     *time.Location
	// Period/Offset configure an ElapsedSync instead of a cron expression
	// when CronExpr is empty.
	Period time.Duration
	Offset time.Duration
}

// Build constructs the syncsched.Sync this spec describes.
func (s SyncSpec) Build() (syncsched.Sync, error) {
	if s.CronExpr != "" {
		zone := s.Zone
		if zone == nil {
			zone = time.UTC
		}
		return syncsched.NewCrontabSync(s.CronExpr, zone)
	}
	return syncsched.NewElapsedSync(datetimeElapsed(s.Period), datetimeOffset(s.Offset))
}

// PointRelation is a directed input->result edge carrying Params, a chosen
// Behavior, and an optional Sync. Relations are immutable
// after the owning Arena's Freeze.
type PointRelation struct {
	Input    Handle
	Result   Handle
	Params   Params
	Behavior BehaviorKind
	Sync     *SyncSpec

	handle Handle
}

// Handle returns this relation's arena handle.
func (r *PointRelation) Handle() Handle { return r.handle }

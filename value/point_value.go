package value

import (
	"github.com/google/uuid"

	"github.com/xapiens/rvpf/datetime"
)

// PointValue is one (point, stamp, state, value) observation. State is
// an optional opaque blob, often a quality code; nil means absent.
type PointValue struct {
	Point uuid.UUID
	Stamp datetime.DateTime
	State []byte
	Value Value
}

// IsTombstone reports whether pv represents a delete: both State and Value
// are absent.
func (pv PointValue) IsTombstone() bool {
	return pv.State == nil && pv.Value.IsNull()
}

// VersionedValue is a PointValue plus the monotonic version assigned by the
// store on write.
type VersionedValue struct {
	PointValue
	Version int64
}

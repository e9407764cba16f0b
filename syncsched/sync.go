// Package syncsched implements restartable schedule iterators: given a
// reference stamp, produce the next/previous stamp on a schedule.
package syncsched

import "github.com/xapiens/rvpf/datetime"

// Sync is a restartable iterator over scheduled datetime.DateTime stamps.
//
// NextStamp returns the smallest scheduled stamp strictly greater than s
// when strict is true, or the smallest stamp >= s when strict is false and s
// itself is on schedule. PrevStamp is the mirror image.
type Sync interface {
	NextStamp(s datetime.DateTime, strict bool) (datetime.DateTime, bool)
	PrevStamp(s datetime.DateTime, strict bool) (datetime.DateTime, bool)
}

package store

import "time"

// RetentionRule configures both Archiver modes for one point.
type RetentionRule struct {
	MaxAge time.Duration
	// MaxRows caps the Archive rows kept for the point, newest first. The
	// row the Snapshot points to is never retired, even when it falls
	// past the cap.
	MaxRows int
	// Attic, when true, sends retired rows to the attic bucket
	// zstd-compressed instead of dropping them.
	Attic bool
}

// enabled reports whether r describes any retention at all.
func (r RetentionRule) enabled() bool {
	return r.MaxAge > 0 || r.MaxRows > 0
}

package processor

import (
	"time"

	"github.com/xapiens/rvpf/datetime"
)

// Batch is the processor's unit of work: a bounded set of pending
// ResultValues accumulated from notices received within Batch.MaxSize or
// Batch.MaxWait, whichever comes first.
type Batch struct {
	MaxSize int
	MaxWait time.Duration

	Pending []ResultValue

	clock   datetime.Clock
	started datetime.DateTime
	running bool
}

// NewBatch returns an empty Batch bounded by maxSize pending results and
// maxWait wall time, reading "now" from clock.
func NewBatch(maxSize int, maxWait time.Duration, clock datetime.Clock) *Batch {
	return &Batch{MaxSize: maxSize, MaxWait: maxWait, clock: clock}
}

// Add appends results to the batch, starting its wall-clock timer on the
// first addition.
func (b *Batch) Add(results ...ResultValue) {
	if !b.running && len(results) > 0 {
		b.started = b.clock.Now()
		b.running = true
	}
	b.Pending = append(b.Pending, results...)
}

// Ready reports whether the batch has grown to MaxSize or its MaxWait has
// elapsed since the first result was added.
func (b *Batch) Ready() bool {
	if len(b.Pending) == 0 {
		return false
	}
	if b.MaxSize > 0 && len(b.Pending) >= b.MaxSize {
		return true
	}
	if b.MaxWait > 0 && b.running && b.clock.Now().Sub(b.started).Duration() >= b.MaxWait {
		return true
	}
	return false
}

// Reset empties the batch for reuse.
func (b *Batch) Reset() {
	b.Pending = b.Pending[:0]
	b.running = false
	b.started = 0
}

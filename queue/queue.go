// Package queue implements the abstract durable FIFO transport shared
// by the store's notifier and listener queues.
package queue

import (
	"context"
	"time"
)

// Message is one opaque payload moving through a Queue.
type Message struct {
	Seq     uint64
	Payload []byte
}

// Queue is a durable FIFO with commit/rollback semantics: messages handed
// out by Receive are not removed until Commit advances the consumer offset
// past them; Rollback returns them to the head instead.
type Queue interface {
	// Send appends messages to the tail. If commit is true the append is
	// immediately visible to readers; if false it is buffered with the
	// caller's own transaction (used when a store commits values and
	// their notices atomically).
	Send(ctx context.Context, messages [][]byte, commit bool) error

	// Receive waits up to timeout for at least one message
	// (timeout < 0: wait indefinitely, 0: poll, > 0: wait that long) and
	// returns up to limit messages delivered-but-uncommitted.
	Receive(ctx context.Context, limit int, timeout time.Duration) ([]Message, error)

	// Commit advances the consumer offset past every message delivered
	// since the last Commit or Rollback.
	Commit(ctx context.Context) error

	// Rollback returns delivered-but-uncommitted messages to the head.
	Rollback(ctx context.Context) error

	// Purge drops every pending message and returns how many were
	// dropped.
	Purge(ctx context.Context) (uint64, error)

	// Close releases the queue's resources.
	Close() error
}

package queue

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/rvpferrors"
)

// BoltQueue is the durable FIFO backed by one bucket of a bbolt.DB, shared
// by this module's notifier and listener queues. The
// caller may pass an existing *bbolt.DB it also uses for other buckets
// (TheStore does this, so that an Update's Archive+Snapshot write and its
// notifier append share one bbolt write transaction and commit atomically,
// without needing a separate two-phase commit).
type BoltQueue struct {
	db     *bbolt.DB
	bucket []byte
	clock  datetime.Clock

	mu          sync.Mutex
	deliveredTo uint64 // next sequence to read on the following Receive
	offset      uint64 // persisted: next sequence to deliver after a restart
	notify      chan struct{}
}

var metaKeyHead = []byte("head")
var metaKeyOffset = []byte("offset")

var _ Queue = (*BoltQueue)(nil)

// OpenBoltQueue opens (creating if absent) a queue over bucket in db,
// reading "now" from clock for Receive deadlines.
func OpenBoltQueue(db *bbolt.DB, bucket string, clock datetime.Clock) (*BoltQueue, error) {
	q := &BoltQueue{db: db, bucket: []byte(bucket), clock: clock, notify: make(chan struct{}, 1)}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(q.bucket)
		if err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(q.metaBucketName())
		if err != nil {
			return err
		}
		if v := meta.Get(metaKeyOffset); v != nil {
			q.offset = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	if err != nil {
		return nil, rvpferrors.NewStoreAccess("queue open", err)
	}
	q.deliveredTo = q.offset
	return q, nil
}

func (q *BoltQueue) metaBucketName() []byte {
	return append(append([]byte{}, q.bucket...), "_meta"...)
}

// Send implements Queue. When commit is true the append is durable and
// visible to readers as soon as Send returns.
func (q *BoltQueue) Send(ctx context.Context, messages [][]byte, commit bool) error {
	_ = ctx
	err := q.db.Update(func(tx *bbolt.Tx) error {
		return q.sendWithTx(tx, messages)
	})
	if err != nil {
		return rvpferrors.NewStoreAccess("queue send", err)
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// SendWithTx appends messages within an already-open write transaction,
// letting a caller (TheStore.Update) fold the append into its own atomic
// commit.
func (q *BoltQueue) SendWithTx(tx *bbolt.Tx, messages [][]byte) error {
	return q.sendWithTx(tx, messages)
}

func (q *BoltQueue) sendWithTx(tx *bbolt.Tx, messages [][]byte) error {
	bucket := tx.Bucket(q.bucket)
	meta := tx.Bucket(q.metaBucketName())
	head := bucket.Sequence()
	for _, m := range messages {
		head++
		key := seqKey(head)
		if err := bucket.Put(key, m); err != nil {
			return err
		}
	}
	if err := bucket.SetSequence(head); err != nil {
		return err
	}
	return meta.Put(metaKeyHead, seqKey(head))
}

// Receive implements Queue.
func (q *BoltQueue) Receive(ctx context.Context, limit int, timeout time.Duration) ([]Message, error) {
	deadline, hasDeadline := q.deadline(timeout)
	for {
		msgs, err := q.receiveOnce(limit)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
		if timeout == 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, rvpferrors.NewCancelled("context done")
		case <-q.notify:
			continue
		case <-time.After(50 * time.Millisecond):
			if hasDeadline && q.clock.Now().After(deadline) {
				return nil, nil
			}
		}
	}
}

func (q *BoltQueue) deadline(timeout time.Duration) (datetime.DateTime, bool) {
	if timeout < 0 {
		return 0, false
	}
	return q.clock.Now().Add(datetime.FromDuration(timeout)), true
}

func (q *BoltQueue) receiveOnce(limit int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Message
	err := q.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(q.bucket)
		c := bucket.Cursor()
		start := seqKey(q.deliveredTo + 1)
		for k, v := c.Seek(start); k != nil && (limit <= 0 || len(out) < limit); k, v = c.Next() {
			seq := binary.BigEndian.Uint64(k)
			payload := append([]byte(nil), v...)
			out = append(out, Message{Seq: seq, Payload: payload})
			q.deliveredTo = seq
		}
		return nil
	})
	if err != nil {
		return nil, rvpferrors.NewStoreAccess("queue receive", err)
	}
	return out, nil
}

// Commit implements Queue.
func (q *BoltQueue) Commit(ctx context.Context) error {
	_ = ctx
	q.mu.Lock()
	offset := q.deliveredTo
	q.mu.Unlock()

	err := q.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(q.metaBucketName()).Put(metaKeyOffset, seqKey(offset))
	})
	if err != nil {
		return rvpferrors.NewStoreAccess("queue commit", err)
	}
	q.mu.Lock()
	q.offset = offset
	q.mu.Unlock()
	return nil
}

// Rollback implements Queue.
func (q *BoltQueue) Rollback(ctx context.Context) error {
	_ = ctx
	q.mu.Lock()
	q.deliveredTo = q.offset
	q.mu.Unlock()
	return nil
}

// Purge implements Queue. Pending means not yet committed past:
// delivered-but-uncommitted messages count as pending too, since a
// Rollback would have returned them to the head.
func (q *BoltQueue) Purge(ctx context.Context) (uint64, error) {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	var dropped uint64
	err := q.db.Update(func(tx *bbolt.Tx) error {
		head := tx.Bucket(q.bucket).Sequence()
		if head > q.offset {
			dropped = head - q.offset
		}
		if err := tx.DeleteBucket(q.bucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(q.bucket); err != nil {
			return err
		}
		return tx.Bucket(q.metaBucketName()).Put(metaKeyOffset, seqKey(0))
	})
	if err != nil {
		return 0, rvpferrors.NewStoreAccess("queue purge", err)
	}
	q.offset = 0
	q.deliveredTo = 0
	return dropped, nil
}

// Close implements Queue. BoltQueue shares its db with other subsystems, so
// Close is a no-op here; the owner of the *bbolt.DB closes it.
func (q *BoltQueue) Close() error { return nil }

func seqKey(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}

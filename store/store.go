// Package store implements the point-value store: a versioned archive
// with a latest-value snapshot, durable notifier and listener queues,
// and an archiver that retires old history, all backed by one
// go.etcd.io/bbolt file with a single writer and many independent
// readers.
package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/gofrs/flock"
	"go.etcd.io/bbolt"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/queue"
	"github.com/xapiens/rvpf/rvpferrors"
	"github.com/xapiens/rvpf/rvpflog"
	"github.com/xapiens/rvpf/rvpfmetrics"
	"github.com/xapiens/rvpf/value"
)

// Store is one point-value store instance: one bbolt.DB file holding the
// archive, snapshot, version index and attic buckets, plus the notifier
// and listener queues sharing the same file so that an Update's write and
// its notifier append commit in one bbolt transaction.
type Store struct {
	db       *bbolt.DB
	fileLock *flock.Flock
	notifier *queue.BoltQueue
	listener *queue.BoltQueue
	archiver Archiver
	clock    datetime.Clock
	log      *rvpflog.Logger
	metrics  *rvpfmetrics.Store

	mu sync.Mutex // serializes Update: a single writer per store

	retentionMu sync.RWMutex
	retention   map[[16]byte]RetentionRule
}

// Open opens (creating if absent) a Store backed by the bbolt file at
// path, reading "now" from the system clock.
func Open(path string) (*Store, error) {
	return OpenWithClock(path, datetime.SystemClock{})
}

// OpenWithClock is Open with an injected clock, used by the archiver's
// retention arithmetic and the queues' receive deadlines. An advisory
// file lock on path+".lock" extends the single-writer guarantee across
// process boundaries, since two independent rvpf-store processes could
// otherwise point at the same data directory.
func OpenWithClock(path string, clock datetime.Clock) (*Store, error) {
	fileLock := flock.New(path + ".lock")
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, rvpferrors.NewStoreAccess("store lock", err)
	}
	if !locked {
		return nil, rvpferrors.NewStoreAccess("store lock", rvpferrors.NewServiceNotAvailable(path, errLocked{path}))
	}

	// A commit that must grow bbolt's memory map waits until every open
	// read transaction (cursor) closes. The large initial mapping keeps a
	// commit from waiting on open cursors until the file outgrows it.
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{InitialMmapSize: 1 << 30})
	if err != nil {
		_ = fileLock.Unlock()
		return nil, rvpferrors.NewStoreAccess("store open", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketArchive, bucketSnapshot, bucketArchiveByVersion, bucketAttic, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		_ = fileLock.Unlock()
		return nil, rvpferrors.NewStoreAccess("store init buckets", err)
	}

	notifier, err := queue.OpenBoltQueue(db, "notifier", clock)
	if err != nil {
		db.Close()
		_ = fileLock.Unlock()
		return nil, err
	}
	listener, err := queue.OpenBoltQueue(db, "listener", clock)
	if err != nil {
		db.Close()
		_ = fileLock.Unlock()
		return nil, err
	}

	s := &Store{
		db:        db,
		fileLock:  fileLock,
		notifier:  notifier,
		listener:  listener,
		clock:     clock,
		log:       rvpflog.New("store"),
		retention: make(map[[16]byte]RetentionRule),
	}
	s.archiver = NewJiTArchiver(s)
	return s, nil
}

type errLocked struct{ path string }

func (e errLocked) Error() string { return "store data path already locked: " + e.path }

// Close releases the store's bbolt file and its advisory lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if unlockErr := s.fileLock.Unlock(); err == nil {
		err = unlockErr
	}
	if err != nil {
		return rvpferrors.NewStoreAccess("store close", err)
	}
	return nil
}

// SetMetrics attaches a metric set; nil (the default) disables
// instrumentation.
func (s *Store) SetMetrics(m *rvpfmetrics.Store) { s.metrics = m }

// Notifier returns the store -> processor notice queue.
func (s *Store) Notifier() *queue.BoltQueue { return s.notifier }

// Listener returns the processor/external-producer -> store update queue.
func (s *Store) Listener() *queue.BoltQueue { return s.listener }

// SetRetention installs the retention rule for point, used by both
// Archiver modes.
func (s *Store) SetRetention(point [16]byte, rule RetentionRule) {
	s.retentionMu.Lock()
	defer s.retentionMu.Unlock()
	s.retention[point] = rule
}

func (s *Store) retentionFor(point [16]byte) (RetentionRule, bool) {
	s.retentionMu.RLock()
	defer s.retentionMu.RUnlock()
	r, ok := s.retention[point]
	return r, ok
}

// knownPoints returns every point with a retention rule, for the
// scheduled archiver sweep.
func (s *Store) knownPoints() [][16]byte {
	s.retentionMu.RLock()
	defer s.retentionMu.RUnlock()
	out := make([][16]byte, 0, len(s.retention))
	for p := range s.retention {
		out = append(out, p)
	}
	return out
}

// Update atomically applies batch: each value that is not an exact
// duplicate of the row already at its (point, stamp) gets a freshly
// assigned, strictly increasing version, an Archive row, a Snapshot
// upsert, and a notifier notice, all inside one bbolt write transaction. A
// value whose state and value match the existing row exactly is a no-op:
// no version is consumed and no notice is enqueued for it.
func (s *Store) Update(ctx context.Context, batch []value.PointValue) ([]value.VersionedValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	out := make([]value.VersionedValue, 0, len(batch))
	var notices [][]byte

	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		next := nextVersion(meta)
		advanced := false

		for _, pv := range batch {
			vv, applied, err := s.applyOne(tx, pv, next+1)
			if err != nil {
				return err
			}
			out = append(out, vv)
			if !applied {
				continue
			}
			next++
			advanced = true
			notices = append(notices, value.EncodeVersionedValue(vv))

			if s.archiver != nil {
				if err := s.archiver.onUpdate(tx, vv); err != nil {
					return err
				}
			}
		}

		if advanced {
			if err := meta.Put(metaKeyVersion, versionKey(next)); err != nil {
				return err
			}
		}
		if len(notices) > 0 {
			if err := s.notifier.SendWithTx(tx, notices); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.NotifierDepth.Add(float64(len(notices)))
			}
		}
		return nil
	})
	if err != nil {
		out = nil
	}
	if s.metrics != nil {
		s.metrics.UpdateLatency.Observe(s.clock.Now().Sub(start).Duration().Seconds())
		if err == nil {
			s.metrics.UpdatesTotal.Add(float64(len(notices)))
		}
	}
	return out, err
}

func nextVersion(meta *bbolt.Bucket) int64 {
	v := meta.Get(metaKeyVersion)
	if v == nil {
		return 0
	}
	return versionFromKey(v)
}

// applyOne writes pv at the candidate version, unless an Archive row
// already exists at (pv.Point, pv.Stamp) with an identical state+value, in
// which case it is a duplicate no-op: applied is false and the existing
// row's VersionedValue is returned unchanged, consuming no version: a
// duplicate is a no-op when value+state match exactly, otherwise it is
// an update replacing the row with a new version.
func (s *Store) applyOne(tx *bbolt.Tx, pv value.PointValue, version int64) (value.VersionedValue, bool, error) {
	archiveB := tx.Bucket(bucketArchive)
	snapshotB := tx.Bucket(bucketSnapshot)
	versionB := tx.Bucket(bucketArchiveByVersion)

	key := archiveKey(pv.Point, pv.Stamp)
	existing := archiveB.Get(key)

	if existing != nil {
		// Decode from a copy: the returned row outlives this transaction,
		// and bbolt's Get slices are only valid while the tx is open.
		existingVV, err := value.DecodeVersionedValue(append([]byte(nil), existing...))
		if err == nil && sameValueAndState(existingVV.PointValue, pv) {
			return existingVV, false, nil
		}
	}

	isDelete := pv.IsTombstone() && existing != nil

	vv := value.VersionedValue{PointValue: pv, Version: version}
	if isDelete {
		vv.PointValue.State = nil
		vv.PointValue.Value = value.Null
	}
	encoded := value.EncodeVersionedValue(vv)
	if err := archiveB.Put(key, append([]byte(nil), encoded...)); err != nil {
		return vv, false, rvpferrors.NewStoreAccess("archive put", err)
	}
	if err := versionB.Put(versionKey(version), append([]byte(nil), key...)); err != nil {
		return vv, false, rvpferrors.NewStoreAccess("version index put", err)
	}

	if err := s.refreshSnapshot(archiveB, snapshotB, pv, key, isDelete); err != nil {
		return vv, false, err
	}
	return vv, true, nil
}

// sameValueAndState reports whether a and b carry identical state bytes and
// an equal Value, the exact-duplicate test used by applyOne.
func sameValueAndState(a, b value.PointValue) bool {
	return bytes.Equal(a.State, b.State) && a.Value.Equal(b.Value)
}

// refreshSnapshot maintains the invariant that Snapshot[p] equals the
// Archive row for p with the maximum stamp. A delete of the current-latest
// stamp replaces
// the snapshot with the prior-in-time row, or removes it if none remains.
func (s *Store) refreshSnapshot(archiveB, snapshotB *bbolt.Bucket, pv value.PointValue, key []byte, isDelete bool) error {
	snapKey := pv.Point[:]
	current := snapshotB.Get(snapKey)
	isLatest := true
	if current != nil {
		curVV, err := value.DecodeVersionedValue(current)
		if err == nil && curVV.Stamp > pv.Stamp {
			isLatest = false
		}
	}
	if !isLatest {
		return nil
	}
	if !isDelete {
		row := archiveB.Get(key)
		return snapshotB.Put(snapKey, append([]byte(nil), row...))
	}

	c := archiveB.Cursor()
	c.Seek(key)
	prevKey, prevVal := c.Prev()
	if prevKey != nil && bytes.HasPrefix(prevKey, pv.Point[:]) {
		return snapshotB.Put(snapKey, append([]byte(nil), prevVal...))
	}
	return snapshotB.Delete(snapKey)
}

// RunListener drains the listener queue, applying each received
// PointValue via Update in receive order, and acknowledges (Commit) only
// once every value in a batch has been persisted.
func (s *Store) RunListener(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		msgs, err := s.listener.Receive(ctx, 256, -1)
		if err != nil {
			if _, ok := err.(*rvpferrors.CancelledError); ok {
				return nil
			}
			return err
		}
		if len(msgs) == 0 {
			continue
		}
		batch := make([]value.PointValue, 0, len(msgs))
		for _, m := range msgs {
			pv, err := value.DecodePointValue(m.Payload)
			if err != nil {
				s.log.Error("dropping malformed listener message", "seq", m.Seq, "err", err)
				continue
			}
			batch = append(batch, pv)
		}
		if _, err := s.Update(ctx, batch); err != nil {
			_ = s.listener.Rollback(ctx)
			return err
		}
		if err := s.listener.Commit(ctx); err != nil {
			return err
		}
	}
}

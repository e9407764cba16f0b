package store

import (
	"bytes"
	"context"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/rvpferrors"
	"github.com/xapiens/rvpf/value"
)

// Query describes one store values query.
type Query struct {
	Point uuid.UUID

	// At, when HasAt is true, restricts the query to a single stamp.
	At    datetime.DateTime
	HasAt bool

	// NotBefore/Before bound a half-open range [NotBefore, Before) when
	// HasAt is false.
	NotBefore datetime.DateTime
	Before    datetime.DateTime

	Reverse      bool
	Rows         int // 0 means unlimited
	Interpolated bool
	Extrapolated bool
	Pull         bool // iterate by version instead of (point, stamp)
}

// Cursor wraps one open read-only bbolt.Tx for its lifetime, giving
// repeatable-read semantics: the transaction's MVCC snapshot is fixed at
// Open.
type Cursor struct {
	tx      *bbolt.Tx
	q       Query
	c       *bbolt.Cursor
	done    bool
	started bool
	emitted int
	atDone  bool
}

// Open begins a read-only cursor over q.
func (s *Store) Open(q Query) (*Cursor, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, rvpferrors.NewStoreAccess("cursor open", err)
	}
	bucketName := bucketArchive
	if q.Pull {
		bucketName = bucketArchiveByVersion
	}
	cur := &Cursor{tx: tx, q: q, c: tx.Bucket(bucketName).Cursor()}
	return cur, nil
}

// Close releases the cursor's transaction. Safe to call more than once.
func (cur *Cursor) Close() error {
	if cur.tx == nil {
		return nil
	}
	err := cur.tx.Rollback()
	cur.tx = nil
	if err != nil && err != bbolt.ErrTxClosed {
		return rvpferrors.NewStoreAccess("cursor close", err)
	}
	return nil
}

// Next yields the next value in the requested order. Pull mode guarantees
// strictly increasing version; non-pull order is (point, stamp) ASC
// or DESC per Reverse.
func (cur *Cursor) Next(ctx context.Context) (value.VersionedValue, bool, error) {
	select {
	case <-ctx.Done():
		return value.VersionedValue{}, false, rvpferrors.NewCancelled("context done")
	default:
	}
	if cur.done {
		return value.VersionedValue{}, false, nil
	}
	if cur.rowLimitReached() {
		cur.done = true
		return value.VersionedValue{}, false, nil
	}
	switch {
	case cur.q.Pull:
		return cur.nextPull()
	case cur.q.HasAt:
		return cur.nextAt()
	default:
		return cur.nextRange()
	}
}

func (cur *Cursor) rowLimitReached() bool {
	return cur.q.Rows > 0 && cur.emitted >= cur.q.Rows
}

func (cur *Cursor) nextPull() (value.VersionedValue, bool, error) {
	for {
		var k, v []byte
		if !cur.started {
			cur.started = true
			if cur.q.Reverse {
				k, v = cur.c.Last()
			} else {
				k, v = cur.c.First()
			}
		} else if cur.q.Reverse {
			k, v = cur.c.Prev()
		} else {
			k, v = cur.c.Next()
		}
		if k == nil {
			cur.done = true
			return value.VersionedValue{}, false, nil
		}
		row := cur.tx.Bucket(bucketArchive).Get(v)
		if row == nil {
			continue // retired between append and read
		}
		vv, err := decodeRow(row)
		if err != nil {
			return value.VersionedValue{}, false, rvpferrors.NewFormat("pull cursor decode", err)
		}
		if cur.q.Point != uuid.Nil && vv.Point != cur.q.Point {
			continue
		}
		cur.emitted++
		return vv, true, nil
	}
}

func (cur *Cursor) nextRange() (value.VersionedValue, bool, error) {
	for {
		k, v := cur.advance()
		if k == nil {
			cur.done = true
			return value.VersionedValue{}, false, nil
		}
		if cur.q.Point != uuid.Nil && !bytes.HasPrefix(k, cur.q.Point[:]) {
			if cur.pastPointRange(k) {
				cur.done = true
				return value.VersionedValue{}, false, nil
			}
			continue
		}
		stamp := archiveKeyStamp(k)
		if stamp < cur.q.NotBefore || stamp >= cur.q.Before {
			if cur.pastStampRange(stamp) {
				cur.done = true
				return value.VersionedValue{}, false, nil
			}
			continue
		}
		vv, err := decodeRow(v)
		if err != nil {
			return value.VersionedValue{}, false, rvpferrors.NewFormat("cursor decode", err)
		}
		cur.emitted++
		return vv, true, nil
	}
}

// decodeRow decodes from a copy of the bucket value: decoded rows outlive
// the cursor's transaction (callers cache them), and bbolt slices are only
// valid while the tx is open.
func decodeRow(raw []byte) (value.VersionedValue, error) {
	return value.DecodeVersionedValue(append([]byte(nil), raw...))
}

func (cur *Cursor) advance() ([]byte, []byte) {
	if !cur.started {
		cur.started = true
		if cur.q.Point != uuid.Nil {
			seek := cur.q.Point[:]
			if cur.q.Reverse {
				k, _ := cur.c.Seek(seek)
				for k != nil && bytes.HasPrefix(k, seek) {
					k, _ = cur.c.Next()
				}
				// A Next that runs off the end leaves the cursor on the
				// last key, which belongs to this point: start there.
				if k == nil {
					return cur.c.Last()
				}
				return cur.c.Prev()
			}
			return cur.c.Seek(seek)
		}
		if cur.q.Reverse {
			return cur.c.Last()
		}
		return cur.c.First()
	}
	if cur.q.Reverse {
		return cur.c.Prev()
	}
	return cur.c.Next()
}

func (cur *Cursor) pastPointRange(k []byte) bool {
	if cur.q.Point == uuid.Nil {
		return false
	}
	if cur.q.Reverse {
		return bytes.Compare(k[:16], cur.q.Point[:]) < 0
	}
	return bytes.Compare(k[:16], cur.q.Point[:]) > 0
}

func (cur *Cursor) pastStampRange(stamp datetime.DateTime) bool {
	if cur.q.Reverse {
		return stamp < cur.q.NotBefore
	}
	return stamp >= cur.q.Before
}

// nextAt handles the single-stamp query form, optionally synthesizing a
// value by linear interpolation/extrapolation between the archived rows
// that straddle q.At when no exact row exists.
func (cur *Cursor) nextAt() (value.VersionedValue, bool, error) {
	if cur.atDone {
		cur.done = true
		return value.VersionedValue{}, false, nil
	}
	cur.atDone = true

	if cur.q.Point == uuid.Nil {
		return value.VersionedValue{}, false, rvpferrors.NewBadParameter("query.point", "at() query requires a point")
	}

	key := archiveKey(cur.q.Point, cur.q.At)
	if row := cur.tx.Bucket(bucketArchive).Get(key); row != nil {
		vv, err := decodeRow(row)
		if err != nil {
			return value.VersionedValue{}, false, rvpferrors.NewFormat("cursor decode", err)
		}
		cur.emitted++
		return vv, true, nil
	}

	before, after, ok := cur.straddle(key)
	if !ok {
		return value.VersionedValue{}, false, nil
	}
	haveBefore := before != nil
	haveAfter := after != nil

	if haveBefore && haveAfter {
		if !cur.q.Interpolated {
			return value.VersionedValue{}, false, nil
		}
	} else if !cur.q.Extrapolated {
		// Only one side available: "extrapolated" is a separate opt-in
		// even when interpolated is set.
		return value.VersionedValue{}, false, nil
	}

	synthesized, err := interpolateAt(before, after, cur.q.At)
	if err != nil || synthesized == nil {
		return value.VersionedValue{}, false, err
	}
	cur.emitted++
	return *synthesized, true, nil
}

func (cur *Cursor) straddle(key []byte) (before, after *value.VersionedValue, ok bool) {
	c := cur.tx.Bucket(bucketArchive).Cursor()
	// Seek positions the cursor at the first key >= key (the row right
	// after the requested stamp, if any); Prev from there is the row
	// right before it, regardless of whether Seek found anything.
	k, v := c.Seek(key)
	if k != nil && bytes.HasPrefix(k, cur.q.Point[:]) {
		if vv, err := decodeRow(v); err == nil {
			after = &vv
		}
	}
	pk, pv := c.Prev()
	if pk != nil && bytes.HasPrefix(pk, cur.q.Point[:]) {
		if vv, err := decodeRow(pv); err == nil {
			before = &vv
		}
	}
	return before, after, true
}

func interpolateAt(before, after *value.VersionedValue, at datetime.DateTime) (*value.VersionedValue, error) {
	if before == nil && after == nil {
		return nil, nil
	}
	if before == nil {
		v := *after
		v.Stamp = at
		return &v, nil
	}
	if after == nil {
		v := *before
		v.Stamp = at
		return &v, nil
	}
	beforeNum, ok1 := value.Numeric(before.Value)
	afterNum, ok2 := value.Numeric(after.Value)
	if !ok1 || !ok2 || after.Stamp == before.Stamp {
		v := *before
		v.Stamp = at
		return &v, nil
	}
	frac := float64(at-before.Stamp) / float64(after.Stamp-before.Stamp)
	interp := beforeNum + (afterNum-beforeNum)*frac
	return &value.VersionedValue{
		PointValue: value.PointValue{Point: before.Point, Stamp: at, Value: value.NewDouble(interp)},
		Version:    after.Version,
	}, nil
}

// Count returns the number of rows q matches, without transferring
// payloads.
func (s *Store) Count(ctx context.Context, q Query) (uint64, error) {
	cur, err := s.Open(q)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	var n uint64
	for {
		_, ok, err := cur.Next(ctx)
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}

// Purge deletes Archive rows for points whose stamps lie in
// [notBefore, before). When the interval intersects a point's Snapshot,
// the Snapshot row is removed as well and a tombstone notice (null state
// and value at the removed stamp, carrying a fresh version) is enqueued
// on the notifier, so downstream consumers learn the point's current
// value was retracted. A purge that only trims history emits nothing.
func (s *Store) Purge(ctx context.Context, points []uuid.UUID, notBefore, before datetime.DateTime) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = ctx

	var deleted uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		archiveB := tx.Bucket(bucketArchive)
		snapshotB := tx.Bucket(bucketSnapshot)
		versionB := tx.Bucket(bucketArchiveByVersion)

		var tombstones []value.VersionedValue
		for _, point := range points {
			lo := archiveKey(point, notBefore)
			hi := archiveKey(point, before)
			c := archiveB.Cursor()
			var toDelete [][]byte
			for k, _ := c.Seek(lo); k != nil && bytes.Compare(k, hi) < 0; k, _ = c.Next() {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
			for _, k := range toDelete {
				row := archiveB.Get(k)
				if row != nil {
					if vv, err := value.DecodeVersionedValue(row); err == nil {
						_ = versionB.Delete(versionKey(vv.Version))
					}
				}
				if err := archiveB.Delete(k); err != nil {
					return rvpferrors.NewStoreAccess("purge delete", err)
				}
				deleted++
			}

			snapRow := snapshotB.Get(point[:])
			if snapRow == nil {
				continue
			}
			snapVV, err := value.DecodeVersionedValue(snapRow)
			if err != nil {
				continue
			}
			if snapVV.Stamp >= notBefore && snapVV.Stamp < before {
				if err := snapshotB.Delete(point[:]); err != nil {
					return rvpferrors.NewStoreAccess("purge snapshot", err)
				}
				tombstones = append(tombstones, value.VersionedValue{
					PointValue: value.PointValue{Point: point, Stamp: snapVV.Stamp, Value: value.Null},
				})
			}
		}

		if len(tombstones) > 0 {
			meta := tx.Bucket(bucketMeta)
			next := nextVersion(meta)
			notices := make([][]byte, 0, len(tombstones))
			for i := range tombstones {
				next++
				tombstones[i].Version = next
				notices = append(notices, value.EncodeVersionedValue(tombstones[i]))
			}
			if err := meta.Put(metaKeyVersion, versionKey(next)); err != nil {
				return rvpferrors.NewStoreAccess("purge version", err)
			}
			if err := s.notifier.SendWithTx(tx, notices); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.NotifierDepth.Add(float64(len(notices)))
			}
		}
		return nil
	})
	return deleted, err
}

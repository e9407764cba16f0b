package store

import (
	"bytes"
	"context"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"
	"golang.org/x/time/rate"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/rvpferrors"
	"github.com/xapiens/rvpf/rvpflog"
	"github.com/xapiens/rvpf/value"
)

// Archiver retires Archive rows according to each point's RetentionRule.
// Two strategies share the retire helper so
// retention logic is not duplicated.
type Archiver interface {
	// onUpdate is called by Store.Update, inside the write transaction
	// that just wrote vv, for the just-in-time strategy. The scheduled
	// strategy implements it as a no-op.
	onUpdate(tx *bbolt.Tx, vv value.VersionedValue) error
}

// retire enforces rule for point inside tx, deleting (or atticking) every
// Archive row beyond rule.MaxRows or older than rule.MaxAge, except the
// row the Snapshot currently points to (that row is never retired).
func retire(tx *bbolt.Tx, point [16]byte, rule RetentionRule, now datetime.DateTime) (int, error) {
	if !rule.enabled() {
		return 0, nil
	}
	archiveB := tx.Bucket(bucketArchive)
	snapshotB := tx.Bucket(bucketSnapshot)

	snapRow := snapshotB.Get(point[:])
	var snapKey []byte
	if snapRow != nil {
		snapVV, err := value.DecodeVersionedValue(snapRow)
		if err == nil {
			snapKey = archiveKey(snapVV.Point, snapVV.Stamp)
		}
	}

	prefix := point[:]
	c := archiveB.Cursor()

	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	// keys are in ascending stamp order (oldest first); everything past
	// MaxRows from the tail, or older than MaxAge, is a retirement
	// candidate, minus the snapshot row.
	var cutoffIdx int
	if rule.MaxRows > 0 && len(keys) > rule.MaxRows {
		cutoffIdx = len(keys) - rule.MaxRows
	}

	var cutoff datetime.DateTime
	if rule.MaxAge > 0 {
		cutoff = now.Add(-datetime.FromDuration(rule.MaxAge))
	}

	retired := 0
	for i, k := range keys {
		if bytes.Equal(k, snapKey) {
			continue
		}
		byAge := rule.MaxAge > 0 && archiveKeyStamp(k) < cutoff
		byCount := i < cutoffIdx
		if !byAge && !byCount {
			continue
		}
		if err := retireRow(tx, archiveB, k, rule); err != nil {
			return retired, err
		}
		retired++
	}
	return retired, nil
}

func retireRow(tx *bbolt.Tx, archiveB *bbolt.Bucket, key []byte, rule RetentionRule) error {
	if rule.Attic {
		row := archiveB.Get(key)
		compressed, err := atticCompress(row)
		if err != nil {
			return rvpferrors.NewStoreAccess("attic compress", err)
		}
		atticB := tx.Bucket(bucketAttic)
		if err := atticB.Put(append([]byte(nil), key...), compressed); err != nil {
			return rvpferrors.NewStoreAccess("attic put", err)
		}
	}
	versionB := tx.Bucket(bucketArchiveByVersion)
	row := archiveB.Get(key)
	if row != nil {
		if vv, err := value.DecodeVersionedValue(row); err == nil {
			_ = versionB.Delete(versionKey(vv.Version))
		}
	}
	if err := archiveB.Delete(key); err != nil {
		return rvpferrors.NewStoreAccess("archive delete", err)
	}
	return nil
}

func atticCompress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// JiTArchiver retires excess rows inline, in the same write transaction
// as the update that made them eligible.
type JiTArchiver struct {
	store *Store
}

// NewJiTArchiver returns an Archiver that runs retention checks
// synchronously from Store.Update.
func NewJiTArchiver(s *Store) *JiTArchiver { return &JiTArchiver{store: s} }

func (a *JiTArchiver) onUpdate(tx *bbolt.Tx, vv value.VersionedValue) error {
	rule, ok := a.store.retentionFor(vv.Point)
	if !ok {
		return nil
	}
	retired, err := retire(tx, vv.Point, rule, a.store.clock.Now())
	if err == nil && a.store.metrics != nil {
		a.store.metrics.ArchiverRetired.Add(float64(retired))
	}
	return err
}

// ScheduledArchiver sweeps every known point on a rate-limited ticker,
// instead of retiring inline.
type ScheduledArchiver struct {
	store   *Store
	limiter *rate.Limiter
	period  time.Duration
	log     *rvpflog.Logger
}

// NewScheduledArchiver returns a ScheduledArchiver sweeping every period,
// throttled to at most rps sweep-transactions per second.
func NewScheduledArchiver(s *Store, period time.Duration, rps float64) *ScheduledArchiver {
	return &ScheduledArchiver{
		store:   s,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		period:  period,
		log:     rvpflog.New("archiver"),
	}
}

func (a *ScheduledArchiver) onUpdate(tx *bbolt.Tx, vv value.VersionedValue) error { return nil }

// Run sweeps every known point until ctx is done.
func (a *ScheduledArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.sweep(ctx); err != nil {
				a.log.Error("sweep failed", "err", err)
			}
		}
	}
}

func (a *ScheduledArchiver) sweep(ctx context.Context) error {
	for _, point := range a.store.knownPoints() {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		rule, ok := a.store.retentionFor(point)
		if !ok {
			continue
		}
		err := a.store.db.Update(func(tx *bbolt.Tx) error {
			retired, err := retire(tx, point, rule, a.store.clock.Now())
			if err == nil && a.store.metrics != nil {
				a.store.metrics.ArchiverRetired.Add(float64(retired))
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

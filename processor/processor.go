// Package processor implements the dependency-driven batch engine: it
// consumes update notices from its store's notifier queue,
// drives each affected relation's Behavior, resolves pending
// ResultValues against the store (in parallel look-up passes),
// and commits the emitted values back through Store.Update.
package processor

import (
	"bytes"
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/rvpferrors"
	"github.com/xapiens/rvpf/rvpflog"
	"github.com/xapiens/rvpf/rvpfmetrics"
	"github.com/xapiens/rvpf/store"
	"github.com/xapiens/rvpf/value"
)

// Processor drives one metadata arena's relation graph against its
// store.
type Processor struct {
	arena *metadata.Arena
	store *store.Store
	cache *CacheManager

	behaviors map[metadata.Handle]Behavior // keyed by relation handle
	engines   map[metadata.Handle]Engine   // keyed by target point handle

	batchMaxSize int
	batchMaxWait time.Duration
	lookupConc   int64
	clock        datetime.Clock

	log     *rvpflog.Logger
	metrics *rvpfmetrics.Processor
}

// SetMetrics attaches a metric set; nil (the default) disables
// instrumentation.
func (p *Processor) SetMetrics(m *rvpfmetrics.Processor) { p.metrics = m }

// SetCacheBudget replaces the result cache with one sized to maxBytes,
// discarding whatever was memoized under the previous sizing. A zero
// maxBytes restores the host-memory-derived default.
func (p *Processor) SetCacheBudget(maxBytes uint64) {
	if maxBytes == 0 {
		p.cache = NewCacheManager()
		return
	}
	p.cache = NewCacheManagerWithBudget(maxBytes)
}

// New builds a Processor over arena's relation graph, running against
// store and reading "now" from clock. arena must already be frozen.
func New(arena *metadata.Arena, st *store.Store, batchMaxSize int, batchMaxWait time.Duration, lookupConcurrency int64, clock datetime.Clock) (*Processor, error) {
	p := &Processor{
		arena:        arena,
		store:        st,
		cache:        NewCacheManager(),
		behaviors:    make(map[metadata.Handle]Behavior),
		engines:      make(map[metadata.Handle]Engine),
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
		lookupConc:   lookupConcurrency,
		clock:        clock,
		log:          rvpflog.New("processor"),
	}
	for _, rel := range arena.Relations() {
		b, err := NewBehavior(rel)
		if err != nil {
			return nil, err
		}
		p.behaviors[rel.Handle()] = b
	}
	for _, pt := range arena.Points() {
		engine, err := ResolveEngine(pt.Transform, arena)
		if err != nil {
			return nil, err
		}
		p.engines[pt.Handle()] = engine
	}
	return p, nil
}

// Run consumes the store's notifier queue until ctx is done, committing
// one batch per drained round. A transient store failure retries the
// batch with exponential back-off: RunOnce rolled the notifier back, so
// the retry replays from the last committed notifier position. Any other
// error is surfaced to the holder for a service restart.
func (p *Processor) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		err := p.RunOnce(ctx)
		if err == nil {
			backoff = time.Second
			continue
		}
		var storeErr *rvpferrors.StoreAccessError
		if !errors.As(err, &storeErr) {
			return err
		}
		p.log.Warn("transient store failure, retrying batch", "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// RunOnce drains up to one batch worth of notices and, if any were
// produced, runs the full batch algorithm to completion: trigger, select
// (parallel look-up), transform, commit.
func (p *Processor) RunOnce(ctx context.Context) error {
	start := p.clock.Now()
	batch := NewBatch(p.batchMaxSize, p.batchMaxWait, p.clock)

	for !batch.Ready() {
		msgs, err := p.store.Notifier().Receive(ctx, p.batchMaxSize, 200*time.Millisecond)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			notice, err := value.DecodeVersionedValue(m.Payload)
			if err != nil {
				p.log.Error("dropping malformed notice", "seq", m.Seq, "err", err)
				continue
			}
			p.cache.Invalidate(p.handleFor(notice.Point))
			batch.Add(p.trigger(notice.PointValue)...)
		}
	}
	if len(batch.Pending) == 0 {
		return nil
	}

	if err := p.selectInputs(ctx, batch); err != nil {
		_ = p.store.Notifier().Rollback(ctx)
		return err
	}

	emitted, err := p.apply(batch)
	if err != nil {
		_ = p.store.Notifier().Rollback(ctx)
		return err
	}

	if _, err := p.store.Update(ctx, emitted); err != nil {
		_ = p.store.Notifier().Rollback(ctx)
		return err
	}
	if err := p.store.Notifier().Commit(ctx); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.BatchesTotal.Inc()
		p.metrics.BatchLatency.Observe(p.clock.Now().Sub(start).Duration().Seconds())
	}
	return nil
}

func (p *Processor) handleFor(point [16]byte) metadata.Handle {
	h, _ := p.arena.PointByUUID(point)
	return h
}

// trigger runs the trigger pass of the batch algorithm: Behavior.Trigger
// on every relation where the notice's point is the input.
func (p *Processor) trigger(notice value.PointValue) []ResultValue {
	h, ok := p.arena.PointByUUID(notice.Point)
	if !ok {
		return nil
	}
	point := p.arena.Point(h)
	var out []ResultValue
	for _, relHandle := range point.Results() {
		rel := p.arena.Relation(relHandle)
		b := p.behaviors[relHandle]
		out = append(out, b.Trigger(notice, rel)...)
	}
	return out
}

// selectInputs runs the select pass over every input relation of every
// pending result's target point, so a result is not applied until every
// one of its required inputs is resolved, in parallel passes bounded by
// lookupConc.
// Each result's own relations are resolved sequentially within one
// goroutine (ResultValue.Inputs is not safe for concurrent appends), but
// different results in the batch proceed in parallel.
func (p *Processor) selectInputs(ctx context.Context, batch *Batch) error {
	sem := semaphore.NewWeighted(p.lookupConc)
	g, gctx := errgroup.WithContext(ctx)

	for i := range batch.Pending {
		i := i
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			return p.selectOne(gctx, &batch.Pending[i])
		})
	}
	return g.Wait()
}

// selectOne runs every input relation of result's target point through its
// Behavior.Select, accumulating into result.Inputs in relation order. When
// the triggering behavior declares IsResultFetched, the value already
// stored at the result's own stamp is fetched too, so the apply pass can
// observe it before recomputing.
func (p *Processor) selectOne(ctx context.Context, result *ResultValue) error {
	target := p.arena.Point(result.Point)
	for _, relHandle := range target.Inputs() {
		rel := p.arena.Relation(relHandle)
		b := p.behaviors[relHandle]
		isTrigger := relHandle == result.TriggerRelation
		if err := b.Select(ctx, result, rel, isTrigger, p); err != nil {
			return err
		}
	}
	if b, ok := p.behaviors[result.TriggerRelation]; ok && b.IsResultFetched() {
		cur, err := p.store.Open(store.Query{Point: target.ID, At: result.Stamp, HasAt: true})
		if err != nil {
			return err
		}
		vv, found, err := cur.Next(ctx)
		_ = cur.Close()
		if err != nil {
			return err
		}
		if found {
			prior := vv.PointValue
			result.PriorStored = &prior
		}
	}
	return nil
}

// ValueAt implements Selector: it returns input's value exactly at stamp,
// synthesizing one by interpolation/extrapolation when no archived row
// matches exactly (used by Synchronized).
func (p *Processor) ValueAt(ctx context.Context, input metadata.Handle, stamp datetime.DateTime) (value.PointValue, bool, error) {
	if cached, ok := p.cache.Get(input, stamp); ok {
		if p.metrics != nil {
			p.metrics.CacheHits.Inc()
		}
		return cached.PointValue, true, nil
	}
	if p.metrics != nil {
		p.metrics.CacheMisses.Inc()
	}
	pt := p.arena.Point(input)
	cur, err := p.store.Open(store.Query{Point: pt.ID, At: stamp, HasAt: true, Interpolated: true, Extrapolated: true})
	if err != nil {
		return value.PointValue{}, false, err
	}
	defer cur.Close()
	vv, ok, err := cur.Next(ctx)
	if err != nil || !ok {
		return value.PointValue{}, false, err
	}
	p.cache.Put(input, vv)
	return vv.PointValue, true, nil
}

// LatestAt implements Selector: it returns input's most recently archived
// value at or before stamp, used by every relation contributing a
// secondary input rather than owning the result's stamp.
func (p *Processor) LatestAt(ctx context.Context, input metadata.Handle, stamp datetime.DateTime) (value.PointValue, bool, error) {
	if cached, ok := p.cache.Get(input, stamp); ok {
		if p.metrics != nil {
			p.metrics.CacheHits.Inc()
		}
		return cached.PointValue, true, nil
	}
	if p.metrics != nil {
		p.metrics.CacheMisses.Inc()
	}
	pt := p.arena.Point(input)
	cur, err := p.store.Open(store.Query{Point: pt.ID, NotBefore: datetime.Min, Before: stamp.NextMicro(), Reverse: true, Rows: 1})
	if err != nil {
		return value.PointValue{}, false, err
	}
	defer cur.Close()
	vv, ok, err := cur.Next(ctx)
	if err != nil || !ok {
		return value.PointValue{}, false, err
	}
	p.cache.Put(input, vv)
	return vv.PointValue, true, nil
}

// apply runs the transform pass: Engine.Apply for every fully-selected
// result.
func (p *Processor) apply(batch *Batch) ([]value.PointValue, error) {
	var emitted []value.PointValue
	for _, result := range batch.Pending {
		target := p.arena.Point(result.Point)
		engine := p.engines[result.Point]
		values, err := engine.Apply(result, target)
		if err != nil {
			p.log.Error("transform failed, suppressing result", "point", target.Name, "err", err)
			if p.metrics != nil {
				p.metrics.ResultsSuppress.Inc()
			}
			continue
		}
		for _, v := range values {
			if samePriorRow(result.PriorStored, v) {
				continue
			}
			emitted = append(emitted, v)
		}
	}
	if p.metrics != nil {
		p.metrics.ResultsEmitted.Add(float64(len(emitted)))
	}
	return emitted, nil
}

// samePriorRow reports whether v reproduces the already-stored row prior
// exactly, in which case re-emitting it would only rewrite the row a
// previous batch committed at the same stamp.
func samePriorRow(prior *value.PointValue, v value.PointValue) bool {
	return prior != nil && v.Stamp == prior.Stamp && v.Value.Equal(prior.Value) && bytes.Equal(v.State, prior.State)
}

// Package rebase implements history compaction: folding operations
// below a watermark into their OID's baseline so the operation log does
// not grow without bound.
package rebase

import (
	"context"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fork-archive-hub/lo-fi/hlc"
	"github.com/fork-archive-hub/lo-fi/oid"
	"github.com/fork-archive-hub/lo-fi/patch"
	"github.com/fork-archive-hub/lo-fi/store"
)

// Event reports the result of folding one document's worth of
// operations during a single RunRebase call.
type Event struct {
	DocRoot          oid.OID
	FoldedOperations int
	BaselinesTouched int
	Watermark        hlc.Timestamp
}

// Engine runs rebase passes against a store. It is safe to share across
// goroutines only via Close; RunRebase itself is not reentrant and the
// façade's caller is expected to serialize rebase passes the same way
// every other store mutation is serialized.
type Engine struct {
	ops       store.OperationStore
	baselines store.BaselineStore
	logger    *zap.Logger
	closed    int32
}

// New builds a rebase engine over ops/baselines. logger may be nil.
func New(ops store.OperationStore, baselines store.BaselineStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{ops: ops, baselines: baselines, logger: logger}
}

// Close marks the engine closed. A RunRebase in progress checks this
// flag between OIDs and stops after the current OID finishes folding,
// rather than leaving a baseline half-updated.
func (e *Engine) Close() {
	atomic.StoreInt32(&e.closed, 1)
}

func (e *Engine) isClosed() bool {
	return atomic.LoadInt32(&e.closed) == 1
}

// RunRebase folds every operation with a timestamp at or before
// watermark into its OID's baseline, then deletes the folded
// operations. The new baseline is stamped not with watermark itself but
// with Tmax — the maximum timestamp actually observed among the folded
// operations for that OID — since watermark is a global bound and may
// be strictly ahead of the last operation this particular OID received;
// stamping with watermark would claim the baseline reflects state it
// never actually saw.
func (e *Engine) RunRebase(ctx context.Context, watermark hlc.Timestamp) ([]Event, error) {
	byOID := make(map[oid.OID][]patch.Operation)
	if err := e.ops.IterateOverAllOperations(ctx, store.IterationOptions{To: watermark}, func(op patch.Operation) error {
		byOID[op.OID] = append(byOID[op.OID], op)
		return nil
	}); err != nil {
		return nil, err
	}

	ids := make([]oid.OID, 0, len(byOID))
	for id := range byOID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	byDoc := make(map[oid.OID]*Event)
	for _, id := range ids {
		if e.isClosed() {
			e.logger.Info("rebase: engine closed, stopping early", zap.Int("remainingOids", len(ids)))
			break
		}

		ops := byOID[id]
		if err := e.foldOne(ctx, id, ops, watermark, byDoc); err != nil {
			return nil, err
		}
	}

	events := make([]Event, 0, len(byDoc))
	for _, ev := range byDoc {
		events = append(events, *ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].DocRoot < events[j].DocRoot })
	return events, nil
}

func (e *Engine) foldOne(ctx context.Context, id oid.OID, ops []patch.Operation, watermark hlc.Timestamp, byDoc map[oid.OID]*Event) error {
	base, ok, err := e.baselines.Get(ctx, id)
	if err != nil {
		return err
	}

	var cur interface{}
	if ok {
		cur = base.Snapshot
	}

	next, err := patch.ApplyOperations(cur, ops, e.logger)
	if err != nil {
		return err
	}

	tmax := ops[0].Timestamp
	for _, op := range ops[1:] {
		if tmax.Less(op.Timestamp) {
			tmax = op.Timestamp
		}
	}

	if next == nil {
		if err := e.baselines.Delete(ctx, id); err != nil {
			return err
		}
	} else {
		if err := e.baselines.Set(ctx, id, store.Baseline{Snapshot: next, Timestamp: tmax}); err != nil {
			return err
		}
	}

	if err := e.ops.DeleteOperations(ctx, ops); err != nil {
		return err
	}

	docRoot := id.DocRoot()
	ev, ok := byDoc[docRoot]
	if !ok {
		ev = &Event{DocRoot: docRoot, Watermark: watermark}
		byDoc[docRoot] = ev
	}
	ev.FoldedOperations += len(ops)
	ev.BaselinesTouched++
	return nil
}

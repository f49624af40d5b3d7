// Package metadata implements the façade that coordinates the HLC, the
// operation log, and the baseline store into the document-level API the
// rest of the system calls through: inserting local and remote changes,
// tracking peer acknowledgement, reconstructing a document snapshot,
// running rebase, and exporting/restoring the entire store.
package metadata

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fork-archive-hub/lo-fi/hlc"
	"github.com/fork-archive-hub/lo-fi/normalize"
	"github.com/fork-archive-hub/lo-fi/oid"
	"github.com/fork-archive-hub/lo-fi/patch"
	"github.com/fork-archive-hub/lo-fi/rebase"
	"github.com/fork-archive-hub/lo-fi/store"
)

// Options configures a Facade's ambient policy, mirroring
// crdtstorage's StorageOptions/DocumentOptions construction pattern.
type Options struct {
	// RebaseDisabled suppresses every automatic rebase trigger — the
	// autonomous never-synced trigger in InsertLocalOperation, and the
	// invocation SetGlobalAck would otherwise make. RunRebase remains
	// directly callable regardless.
	RebaseDisabled bool
}

// Schema is the versioned schema descriptor tracked in the façade's
// info table (§6: "info holding singleton rows for ... stored schema").
type Schema struct {
	Version int
	Content interface{}
}

// Facade is the coordination point described in §5: it owns the HLC
// (the only component allowed to call clock.Now). Its mutex guards the
// clock and the façade's own ack, sync and schema state; store writes
// and rebase passes run outside that lock, so calls made from several
// goroutines at once are not serialized against one another.
type Facade struct {
	mu        sync.Mutex
	clock     *hlc.Clock
	ops       store.OperationStore
	baselines store.BaselineStore
	registry  *oid.Registry
	logger    *zap.Logger
	rebase    *rebase.Engine
	sink      Sink
	opts      Options

	acks       map[string]hlc.Timestamp
	globalAck  hlc.Timestamp
	everSynced bool
	schema     *Schema
}

// New builds a façade. logger may be nil (a no-op logger is used); sink
// may be nil (messages are collected into a MemorySink nobody reads).
func New(clock *hlc.Clock, ops store.OperationStore, baselines store.BaselineStore, registry *oid.Registry, logger *zap.Logger, sink Sink, opts Options) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = NewMemorySink()
	}
	return &Facade{
		clock:     clock,
		ops:       ops,
		baselines: baselines,
		registry:  registry,
		logger:    logger,
		rebase:    rebase.New(ops, baselines, logger),
		sink:      sink,
		opts:      opts,
		acks:      make(map[string]hlc.Timestamp),
	}
}

// InsertLocalOperation stamps data with a fresh local timestamp and
// persists it, emits the outbound operation message, then — per §4.8's
// autonomous trigger — runs a rebase up to the timestamp it just
// stamped if this replica has never synced with anything.
func (f *Facade) InsertLocalOperation(ctx context.Context, id oid.OID, data patch.Patch) (patch.Operation, error) {
	f.mu.Lock()
	ts := f.clock.Now()
	replicaID := f.clock.ReplicaID()
	f.mu.Unlock()

	op := patch.Operation{OID: id, Timestamp: ts, Data: data, IsLocal: true}
	if _, err := f.ops.AddOperations(ctx, []patch.Operation{op}); err != nil {
		return patch.Operation{}, err
	}

	f.sink.Send(Message{Type: MessageOperation, ReplicaID: replicaID, Operations: []patch.Operation{op}})

	f.mu.Lock()
	neverSynced := !f.everSynced
	disabled := f.opts.RebaseDisabled
	f.mu.Unlock()

	if neverSynced && !disabled {
		if _, err := f.rebase.RunRebase(ctx, ts); err != nil {
			return op, err
		}
	}

	return op, nil
}

// InsertRemoteOperations persists operations received over the
// transport, raising the local clock past each one's timestamp so a
// subsequent local Now() never collides with or precedes them, then
// acknowledges the highest timestamp it just saw and returns the set of
// document roots the batch touched.
func (f *Facade) InsertRemoteOperations(ctx context.Context, ops []patch.Operation) ([]oid.OID, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	f.mu.Lock()
	for _, op := range ops {
		if err := f.clock.Observe(op.Timestamp); err != nil {
			f.mu.Unlock()
			return nil, err
		}
	}
	f.everSynced = true
	f.mu.Unlock()

	roots, err := f.ops.AddOperations(ctx, ops)
	if err != nil {
		return nil, err
	}

	f.Ack(f.clock.ReplicaID(), maxTimestamp(ops))
	return roots, nil
}

// InsertRemoteBaselines persists baselines received over the transport
// (typically as part of catching a new replica up), observing each
// one's timestamp the same way InsertRemoteOperations does, then
// acknowledges the highest timestamp and returns the affected roots.
func (f *Facade) InsertRemoteBaselines(ctx context.Context, baselines map[oid.OID]store.Baseline) ([]oid.OID, error) {
	if len(baselines) == 0 {
		return nil, nil
	}

	f.mu.Lock()
	var last hlc.Timestamp
	for _, b := range baselines {
		if err := f.clock.Observe(b.Timestamp); err != nil {
			f.mu.Unlock()
			return nil, err
		}
		if last == "" || last.Less(b.Timestamp) {
			last = b.Timestamp
		}
	}
	f.everSynced = true
	f.mu.Unlock()

	roots := make(map[oid.OID]bool, len(baselines))
	for id, b := range baselines {
		if err := f.baselines.Set(ctx, id, b); err != nil {
			return nil, err
		}
		roots[id.DocRoot()] = true
	}

	f.Ack(f.clock.ReplicaID(), last)

	out := make([]oid.OID, 0, len(roots))
	for r := range roots {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Ack records that replicaID has received everything up to and
// including ts, and emits the corresponding outbound ack message on
// every call. The recorded acks feed GlobalAck's minimum; rebase itself
// does not consult them (it runs at SetGlobalAck's ts, or autonomously
// from InsertLocalOperation).
func (f *Facade) Ack(replicaID string, ts hlc.Timestamp) {
	f.mu.Lock()
	if cur, ok := f.acks[replicaID]; !ok || cur.Less(ts) {
		f.acks[replicaID] = ts
	}
	f.mu.Unlock()

	f.sink.Send(Message{Type: MessageAck, ReplicaID: replicaID, Timestamp: ts})
}

// SetGlobalAck records ts as the global watermark — for deployments that
// track peer acknowledgement out of band (e.g. a server with no notion
// of individual replicas) rather than via per-replica Ack calls.
// GlobalAck reports the minimum of ts and the per-replica acks. Per
// §4.7, it then invokes rebase with ts itself unless rebasing is
// disabled.
func (f *Facade) SetGlobalAck(ctx context.Context, ts hlc.Timestamp) error {
	f.mu.Lock()
	f.globalAck = ts
	f.everSynced = true
	disabled := f.opts.RebaseDisabled
	f.mu.Unlock()

	if disabled {
		return nil
	}
	_, err := f.rebase.RunRebase(ctx, ts)
	return err
}

// GlobalAck returns the safe rebase watermark: the minimum of every
// per-replica ack and any manually set global ack.
func (f *Facade) GlobalAck() hlc.Timestamp {
	f.mu.Lock()
	defer f.mu.Unlock()

	watermark := f.globalAck
	for _, ts := range f.acks {
		if watermark == "" || ts.Less(watermark) {
			watermark = ts
		}
	}
	return watermark
}

// UpdateSchema changes the stored schema descriptor and the schema
// version stamped on future local timestamps. Per §4.7/§6, if a schema
// is already stored at the same version but with different content,
// the update is rejected as drift unless overrideConflict names that
// exact version.
func (f *Facade) UpdateSchema(schema Schema, overrideConflict *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.schema != nil && f.schema.Version == schema.Version && !reflect.DeepEqual(f.schema.Content, schema.Content) {
		if overrideConflict == nil || *overrideConflict != f.schema.Version {
			return ErrSchemaDrift{Version: schema.Version}
		}
	}

	stored := schema
	f.schema = &stored
	f.clock.SetSchemaVersion(schema.Version)
	return nil
}

// GetAllDocumentRelatedOids returns every OID the store currently knows
// about under docRoot: every OID with a baseline, plus every OID any
// operation targets, plus docRoot itself.
func (f *Facade) GetAllDocumentRelatedOids(ctx context.Context, docRoot oid.OID) ([]oid.OID, error) {
	if err := oid.RequireDocRoot(docRoot); err != nil {
		return nil, err
	}

	seen := map[oid.OID]bool{docRoot: true}

	baselines, err := f.baselines.GetAllForDocument(ctx, docRoot)
	if err != nil {
		return nil, err
	}
	for id := range baselines {
		seen[id] = true
	}

	if err := f.ops.IterateOverAllOperationsForDocument(ctx, docRoot, store.IterationOptions{}, func(op patch.Operation) error {
		seen[op.OID] = true
		return nil
	}); err != nil {
		return nil, err
	}

	ids := make([]oid.OID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetDocumentSnapshot folds each related OID's baseline and operations
// into its current shallow value, then substitutes refs to materialize
// the whole document rooted at docRoot.
func (f *Facade) GetDocumentSnapshot(ctx context.Context, docRoot oid.OID) (interface{}, error) {
	ids, err := f.GetAllDocumentRelatedOids(ctx, docRoot)
	if err != nil {
		return nil, err
	}

	flat := make(map[oid.OID]interface{}, len(ids))
	for _, id := range ids {
		cur, err := f.resolveEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			continue // folded to deleted
		}
		flat[id] = cur
	}

	if _, ok := flat[docRoot]; !ok {
		return nil, nil
	}

	materialized, _, err := normalize.SubstituteRefs(docRoot, flat, f.registry)
	return materialized, err
}

// resolveEntity folds one OID's baseline (if any) through its pending
// operations (if any) into its current shallow value.
func (f *Facade) resolveEntity(ctx context.Context, id oid.OID) (interface{}, error) {
	base, ok, err := f.baselines.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var cur interface{}
	if ok {
		cur = base.Snapshot
	}

	var ops []patch.Operation
	if err := f.ops.IterateOverAllOperationsForEntity(ctx, id, store.IterationOptions{}, func(op patch.Operation) error {
		ops = append(ops, op)
		return nil
	}); err != nil {
		return nil, err
	}

	return patch.ApplyOperations(cur, ops, f.logger)
}

// Snapshot is the full state of the store, as produced by Export and
// consumed by ResetFrom.
type Snapshot struct {
	Baselines  map[oid.OID]store.Baseline
	Operations []patch.Operation
	Schema     Schema
}

// Export dumps every baseline, every pending operation, and the stored
// schema in the store.
func (f *Facade) Export(ctx context.Context) (Snapshot, error) {
	docRoots, err := f.baselines.AllDocumentRoots(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	baselines := make(map[oid.OID]store.Baseline)
	for _, docRoot := range docRoots {
		forDoc, err := f.baselines.GetAllForDocument(ctx, docRoot)
		if err != nil {
			return Snapshot{}, err
		}
		for id, b := range forDoc {
			baselines[id] = b
		}
	}

	var ops []patch.Operation
	if err := f.ops.IterateOverAllOperations(ctx, store.IterationOptions{}, func(op patch.Operation) error {
		ops = append(ops, op)
		return nil
	}); err != nil {
		return Snapshot{}, err
	}

	f.mu.Lock()
	schema := Schema{}
	if f.schema != nil {
		schema = *f.schema
	} else {
		_, _, _, version, err := hlc.Decode(f.clock.Snapshot())
		if err != nil {
			f.mu.Unlock()
			return Snapshot{}, err
		}
		schema.Version = version
	}
	f.mu.Unlock()

	return Snapshot{Baselines: baselines, Operations: ops, Schema: schema}, nil
}

// ResetFrom discards the current store contents and replaces them with
// snap, raising the local clock past every timestamp it contains.
func (f *Facade) ResetFrom(ctx context.Context, snap Snapshot) error {
	if err := f.baselines.Reset(ctx); err != nil {
		return err
	}
	if err := f.baselines.SetAll(ctx, snap.Baselines); err != nil {
		return err
	}
	if err := f.ops.Reset(ctx); err != nil {
		return err
	}
	if len(snap.Operations) > 0 {
		if _, err := f.ops.AddOperations(ctx, snap.Operations); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range snap.Baselines {
		if err := f.clock.Observe(b.Timestamp); err != nil {
			return err
		}
	}
	for _, op := range snap.Operations {
		if err := f.clock.Observe(op.Timestamp); err != nil {
			return err
		}
	}
	stored := snap.Schema
	f.schema = &stored
	f.clock.SetSchemaVersion(snap.Schema.Version)
	return nil
}

// maxTimestamp returns the largest timestamp among ops. Callers ensure
// ops is non-empty.
func maxTimestamp(ops []patch.Operation) hlc.Timestamp {
	max := ops[0].Timestamp
	for _, op := range ops[1:] {
		if max.Less(op.Timestamp) {
			max = op.Timestamp
		}
	}
	return max
}

// Package store defines the operation log and baseline snapshot
// interfaces the metadata façade persists through, plus an in-memory
// and a Redis-backed implementation of both.
package store

import (
	"context"

	"github.com/fork-archive-hub/lo-fi/hlc"
	"github.com/fork-archive-hub/lo-fi/oid"
	"github.com/fork-archive-hub/lo-fi/patch"
)

// Baseline is a folded snapshot of one OID as of Timestamp: everything
// at or below Timestamp has already been incorporated into Snapshot.
type Baseline struct {
	Snapshot  interface{}
	Timestamp hlc.Timestamp
}

// IterationOptions bounds a scan. The zero value is unbounded; a
// non-empty To truncates the scan to operations with timestamp ≤ To —
// the optional to/before bound every §4.5 iteration method accepts.
type IterationOptions struct {
	To hlc.Timestamp
}

// within reports whether ts is within opts's bound.
func (opts IterationOptions) within(ts hlc.Timestamp) bool {
	return opts.To == "" || !opts.To.Less(ts)
}

// OperationStore is the append-only (oid, timestamp) -> Operation index.
// Callers never mutate an operation once added; rebase deletes folded
// ones outright instead.
type OperationStore interface {
	// AddOperations appends ops, which must already be stamped. Safe to
	// call with operations that duplicate an existing (oid, timestamp)
	// pair — the resulting store state is the same either way, matching
	// an at-least-once delivery transport. Returns the set of document
	// roots touched by ops, sorted and de-duplicated.
	AddOperations(ctx context.Context, ops []patch.Operation) ([]oid.OID, error)

	// IterateOverAllOperationsForDocument visits, in timestamp order,
	// every operation whose OID's document-root is docRoot, optionally
	// truncated at opts.To.
	IterateOverAllOperationsForDocument(ctx context.Context, docRoot oid.OID, opts IterationOptions, fn func(patch.Operation) error) error

	// IterateOverAllOperationsForEntity visits, in timestamp order, every
	// operation targeting exactly id, optionally truncated at opts.To.
	IterateOverAllOperationsForEntity(ctx context.Context, id oid.OID, opts IterationOptions, fn func(patch.Operation) error) error

	// IterateOverAllOperations visits every operation in the store, in
	// timestamp order within each OID but with no cross-OID ordering
	// guarantee, optionally truncated at opts.To. Used by export and by
	// rebase's watermark scan.
	IterateOverAllOperations(ctx context.Context, opts IterationOptions, fn func(patch.Operation) error) error

	// DeleteOperations removes exactly the given operations (matched by
	// OID+timestamp). Used by rebase once they are folded into a baseline.
	DeleteOperations(ctx context.Context, ops []patch.Operation) error

	// Reset discards all operations, for resetFrom.
	Reset(ctx context.Context) error
}

// BaselineStore is the OID -> {snapshot, timestamp} baseline map.
type BaselineStore interface {
	Get(ctx context.Context, id oid.OID) (Baseline, bool, error)
	Set(ctx context.Context, id oid.OID, b Baseline) error
	Delete(ctx context.Context, id oid.OID) error

	// GetAllForDocument returns every baseline whose OID's document-root
	// is docRoot.
	GetAllForDocument(ctx context.Context, docRoot oid.OID) (map[oid.OID]Baseline, error)

	// IterateOverAllForDocument is the streaming counterpart of
	// GetAllForDocument, used when a document may have many sub-objects.
	IterateOverAllForDocument(ctx context.Context, docRoot oid.OID, fn func(oid.OID, Baseline) error) error

	// SetAll replaces the full baseline set in one call, for resetFrom.
	SetAll(ctx context.Context, baselines map[oid.OID]Baseline) error

	// AllDocumentRoots returns every document-root OID that has at least
	// one baseline, for export.
	AllDocumentRoots(ctx context.Context) ([]oid.OID, error)

	Reset(ctx context.Context) error
}

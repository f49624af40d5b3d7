package store

import (
	"context"
	"sort"
	"sync"

	"github.com/fork-archive-hub/lo-fi/oid"
	"github.com/fork-archive-hub/lo-fi/patch"
)

// MemoryOperationStore is an in-process OperationStore, grounded on the
// mutex-guarded map pattern crdtstorage's adapters use. It is the
// default store for tests and for single-process deployments that don't
// need the log to outlive the process.
type MemoryOperationStore struct {
	mu  sync.RWMutex
	ops map[oid.OID]map[string]patch.Operation // OID -> timestamp string -> op
}

func NewMemoryOperationStore() *MemoryOperationStore {
	return &MemoryOperationStore{ops: make(map[oid.OID]map[string]patch.Operation)}
}

func (s *MemoryOperationStore) AddOperations(ctx context.Context, ops []patch.Operation) ([]oid.OID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roots := make(map[oid.OID]bool)
	for _, op := range ops {
		byTS, ok := s.ops[op.OID]
		if !ok {
			byTS = make(map[string]patch.Operation)
			s.ops[op.OID] = byTS
		}
		byTS[string(op.Timestamp)] = op
		roots[op.OID.DocRoot()] = true
	}
	return sortedRoots(roots), nil
}

func (s *MemoryOperationStore) IterateOverAllOperationsForDocument(ctx context.Context, docRoot oid.OID, opts IterationOptions, fn func(patch.Operation) error) error {
	s.mu.RLock()
	var matched []patch.Operation
	for id, byTS := range s.ops {
		if id.DocRoot() != docRoot {
			continue
		}
		for _, op := range byTS {
			if opts.within(op.Timestamp) {
				matched = append(matched, op)
			}
		}
	}
	s.mu.RUnlock()

	sort.Sort(patch.ByTimestamp(matched))
	for _, op := range matched {
		if err := fn(op); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryOperationStore) IterateOverAllOperationsForEntity(ctx context.Context, id oid.OID, opts IterationOptions, fn func(patch.Operation) error) error {
	s.mu.RLock()
	byTS := s.ops[id]
	matched := make([]patch.Operation, 0, len(byTS))
	for _, op := range byTS {
		if opts.within(op.Timestamp) {
			matched = append(matched, op)
		}
	}
	s.mu.RUnlock()

	sort.Sort(patch.ByTimestamp(matched))
	for _, op := range matched {
		if err := fn(op); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryOperationStore) IterateOverAllOperations(ctx context.Context, opts IterationOptions, fn func(patch.Operation) error) error {
	s.mu.RLock()
	var all []patch.Operation
	for _, byTS := range s.ops {
		for _, op := range byTS {
			if opts.within(op.Timestamp) {
				all = append(all, op)
			}
		}
	}
	s.mu.RUnlock()

	sort.Sort(patch.ByTimestamp(all))
	for _, op := range all {
		if err := fn(op); err != nil {
			return err
		}
	}
	return nil
}

// sortedRoots flattens a root set into the sorted slice every document
// root accessor in this package returns.
func sortedRoots(roots map[oid.OID]bool) []oid.OID {
	out := make([]oid.OID, 0, len(roots))
	for r := range roots {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *MemoryOperationStore) DeleteOperations(ctx context.Context, ops []patch.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		byTS, ok := s.ops[op.OID]
		if !ok {
			continue
		}
		delete(byTS, string(op.Timestamp))
		if len(byTS) == 0 {
			delete(s.ops, op.OID)
		}
	}
	return nil
}

func (s *MemoryOperationStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = make(map[oid.OID]map[string]patch.Operation)
	return nil
}

// MemoryBaselineStore is an in-process BaselineStore.
type MemoryBaselineStore struct {
	mu        sync.RWMutex
	baselines map[oid.OID]Baseline
}

func NewMemoryBaselineStore() *MemoryBaselineStore {
	return &MemoryBaselineStore{baselines: make(map[oid.OID]Baseline)}
}

func (s *MemoryBaselineStore) Get(ctx context.Context, id oid.OID) (Baseline, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[id]
	return b, ok, nil
}

func (s *MemoryBaselineStore) Set(ctx context.Context, id oid.OID, b Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[id] = b
	return nil
}

func (s *MemoryBaselineStore) Delete(ctx context.Context, id oid.OID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.baselines, id)
	return nil
}

func (s *MemoryBaselineStore) GetAllForDocument(ctx context.Context, docRoot oid.OID) (map[oid.OID]Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[oid.OID]Baseline)
	for id, b := range s.baselines {
		if id.DocRoot() == docRoot {
			out[id] = b
		}
	}
	return out, nil
}

func (s *MemoryBaselineStore) IterateOverAllForDocument(ctx context.Context, docRoot oid.OID, fn func(oid.OID, Baseline) error) error {
	all, err := s.GetAllForDocument(ctx, docRoot)
	if err != nil {
		return err
	}
	ids := make([]oid.OID, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := fn(id, all[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryBaselineStore) AllDocumentRoots(ctx context.Context) ([]oid.OID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[oid.OID]bool)
	for id := range s.baselines {
		seen[id.DocRoot()] = true
	}
	return sortedRoots(seen), nil
}

func (s *MemoryBaselineStore) SetAll(ctx context.Context, baselines map[oid.OID]Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines = make(map[oid.OID]Baseline, len(baselines))
	for id, b := range baselines {
		s.baselines[id] = b
	}
	return nil
}

func (s *MemoryBaselineStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines = make(map[oid.OID]Baseline)
	return nil
}

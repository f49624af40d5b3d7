package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fork-archive-hub/lo-fi/oid"
	"github.com/fork-archive-hub/lo-fi/patch"
)

func TestMemoryOperationStoreOrdersByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryOperationStore()

	ops := []patch.Operation{
		{OID: "todo/a:root", Timestamp: "3", Data: patch.Set{Name: "x", Value: 3}},
		{OID: "todo/a:root", Timestamp: "1", Data: patch.Set{Name: "x", Value: 1}},
		{OID: "todo/a:root", Timestamp: "2", Data: patch.Set{Name: "x", Value: 2}},
	}
	roots, err := s.AddOperations(ctx, ops)
	require.NoError(t, err)
	assert.Equal(t, []oid.OID{"todo/a:root"}, roots)

	var seen []string
	require.NoError(t, s.IterateOverAllOperationsForEntity(ctx, "todo/a:root", IterationOptions{}, func(op patch.Operation) error {
		seen = append(seen, string(op.Timestamp))
		return nil
	}))
	assert.Equal(t, []string{"1", "2", "3"}, seen)
}

func TestMemoryOperationStoreIterateRespectsToBound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryOperationStore()

	_, err := s.AddOperations(ctx, []patch.Operation{
		{OID: "todo/a:root", Timestamp: "1", Data: patch.Set{Name: "x", Value: 1}},
		{OID: "todo/a:root", Timestamp: "2", Data: patch.Set{Name: "x", Value: 2}},
		{OID: "todo/a:root", Timestamp: "3", Data: patch.Set{Name: "x", Value: 3}},
	})
	require.NoError(t, err)

	var seen []string
	require.NoError(t, s.IterateOverAllOperationsForEntity(ctx, "todo/a:root", IterationOptions{To: "2"}, func(op patch.Operation) error {
		seen = append(seen, string(op.Timestamp))
		return nil
	}))
	assert.Equal(t, []string{"1", "2"}, seen)
}

func TestMemoryOperationStoreScopesByDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryOperationStore()

	_, err := s.AddOperations(ctx, []patch.Operation{
		{OID: "todo/a:root", Timestamp: "1", Data: patch.Set{Name: "x", Value: 1}},
		{OID: "todo/a:root#sub", Timestamp: "2", Data: patch.Set{Name: "y", Value: 2}},
		{OID: "todo/b:root", Timestamp: "3", Data: patch.Set{Name: "z", Value: 3}},
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.IterateOverAllOperationsForDocument(ctx, "todo/a:root", IterationOptions{}, func(patch.Operation) error {
		count++
		return nil
	}))
	assert.Equal(t, 2, count)
}

func TestMemoryOperationStoreDeleteAndReset(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryOperationStore()
	op := patch.Operation{OID: "todo/a:root", Timestamp: "1", Data: patch.Set{Name: "x", Value: 1}}
	_, err := s.AddOperations(ctx, []patch.Operation{op})
	require.NoError(t, err)
	require.NoError(t, s.DeleteOperations(ctx, []patch.Operation{op}))

	var count int
	require.NoError(t, s.IterateOverAllOperations(ctx, IterationOptions{}, func(patch.Operation) error { count++; return nil }))
	assert.Zero(t, count)

	_, err = s.AddOperations(ctx, []patch.Operation{op})
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))
	count = 0
	require.NoError(t, s.IterateOverAllOperations(ctx, IterationOptions{}, func(patch.Operation) error { count++; return nil }))
	assert.Zero(t, count)
}

func TestMemoryBaselineStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBaselineStore()

	_, ok, err := s.Get(ctx, "todo/a:root")
	require.NoError(t, err)
	assert.False(t, ok)

	b := Baseline{Snapshot: map[string]interface{}{"x": 1}, Timestamp: "1"}
	require.NoError(t, s.Set(ctx, "todo/a:root", b))

	got, ok, err := s.Get(ctx, "todo/a:root")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, got)

	require.NoError(t, s.Delete(ctx, "todo/a:root"))
	_, ok, err = s.Get(ctx, "todo/a:root")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBaselineStoreGetAllForDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBaselineStore()
	require.NoError(t, s.Set(ctx, "todo/a:root", Baseline{Snapshot: 1, Timestamp: "1"}))
	require.NoError(t, s.Set(ctx, "todo/a:root#sub", Baseline{Snapshot: 2, Timestamp: "2"}))
	require.NoError(t, s.Set(ctx, "todo/b:root", Baseline{Snapshot: 3, Timestamp: "3"}))

	all, err := s.GetAllForDocument(ctx, "todo/a:root")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	_, hasOther := all[oid.OID("todo/b:root")]
	assert.False(t, hasOther)
}

func TestMemoryBaselineStoreAllDocumentRoots(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBaselineStore()
	require.NoError(t, s.Set(ctx, "todo/a:root", Baseline{Snapshot: 1, Timestamp: "1"}))
	require.NoError(t, s.Set(ctx, "todo/a:root#sub", Baseline{Snapshot: 2, Timestamp: "2"}))
	require.NoError(t, s.Set(ctx, "todo/b:root", Baseline{Snapshot: 3, Timestamp: "3"}))

	roots, err := s.AllDocumentRoots(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []oid.OID{"todo/a:root", "todo/b:root"}, roots)
}

func TestMemoryBaselineStoreSetAllReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBaselineStore()
	require.NoError(t, s.Set(ctx, "todo/a:root", Baseline{Snapshot: 1, Timestamp: "1"}))

	require.NoError(t, s.SetAll(ctx, map[oid.OID]Baseline{
		"todo/b:root": {Snapshot: 2, Timestamp: "2"},
	}))

	_, ok, err := s.Get(ctx, "todo/a:root")
	require.NoError(t, err)
	assert.False(t, ok, "SetAll must replace, not merge")

	_, ok, err = s.Get(ctx, "todo/b:root")
	require.NoError(t, err)
	assert.True(t, ok)
}

package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fork-archive-hub/lo-fi/oid"
)

func TestApplyInitializeDeepClones(t *testing.T) {
	src := map[string]interface{}{"nested": []interface{}{float64(1)}}
	out, err := Apply(nil, Initialize{Value: src}, nil)
	require.NoError(t, err)

	src["nested"].([]interface{})[0] = float64(99)
	assert.Equal(t, float64(1), out.(map[string]interface{})["nested"].([]interface{})[0])
}

func TestApplySetObject(t *testing.T) {
	base := map[string]interface{}{"title": "old"}
	out, err := Apply(base, Set{Name: "title", Value: "new"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", out.(map[string]interface{})["title"])
}

func TestApplySetArraySlot(t *testing.T) {
	base := []interface{}{"a", "b", "c"}
	out, err := Apply(base, Set{Name: "1", Value: "B"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "B", "c"}, out)
}

func TestApplyRemove(t *testing.T) {
	base := map[string]interface{}{"a": 1, "b": 2}
	out, err := Apply(base, Remove{Name: "a"}, nil)
	require.NoError(t, err)
	_, exists := out.(map[string]interface{})["a"]
	assert.False(t, exists)
}

func TestApplyListPush(t *testing.T) {
	base := []interface{}{"a"}
	out, err := Apply(base, ListPush{Value: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, out)
}

func TestApplyListInsert(t *testing.T) {
	base := []interface{}{"a", "d"}
	out, err := Apply(base, ListInsert{Index: 1, Values: []interface{}{"b", "c"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b", "c", "d"}, out)
}

func TestApplyListInsertEmptyIsFatal(t *testing.T) {
	base := []interface{}{"a"}
	_, err := Apply(base, ListInsert{Index: 0, Values: nil}, nil)
	assert.Error(t, err)
	assert.IsType(t, ErrInvalidListInsert{}, err)
}

func TestApplyListDelete(t *testing.T) {
	base := []interface{}{"a", "b", "c", "d"}
	out, err := Apply(base, ListDelete{Index: 1, Count: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "d"}, out)
}

func TestApplyListMoveByIndex(t *testing.T) {
	base := []interface{}{"a", "b", "c"}
	out, err := Apply(base, ListMoveByIndex{From: 0, To: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"b", "c", "a"}, out)
}

func TestApplyListMoveByRef(t *testing.T) {
	base := []interface{}{oid.NewRef("todo/a:x#items.0"), oid.NewRef("todo/a:x#items.1")}
	out, err := Apply(base, ListMoveByRef{Ref: "todo/a:x#items.1", Index: 0}, nil)
	require.NoError(t, err)
	first, _ := oid.IsRef(out.([]interface{})[0])
	assert.Equal(t, oid.OID("todo/a:x#items.1"), first.ID)
}

func TestApplyListRemoveFirst(t *testing.T) {
	base := []interface{}{"a", "b", "a"}
	out, err := Apply(base, ListRemove{Value: "a", Only: RemoveFirst}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"b", "a"}, out)
}

func TestApplyListRemoveAll(t *testing.T) {
	base := []interface{}{"a", "b", "a"}
	out, err := Apply(base, ListRemove{Value: "a", Only: RemoveAll}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"b"}, out)
}

func TestApplyListAddDeduplicates(t *testing.T) {
	base := []interface{}{"a"}
	out, err := Apply(base, ListAdd{Value: "a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a"}, out)

	out, err = Apply(out, ListAdd{Value: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, out)
}

func TestApplyDelete(t *testing.T) {
	base := map[string]interface{}{"a": 1}
	out, err := Apply(base, Delete{}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestApplyListPatchOnNonListIsNonFatal(t *testing.T) {
	logger := zaptest.NewLogger(t)
	base := map[string]interface{}{"a": 1}
	out, err := Apply(base, ListPush{Value: "x"}, logger)
	require.NoError(t, err)
	assert.Equal(t, base, out)
}

func TestApplyOnAbsentBaseIsNoop(t *testing.T) {
	out, err := Apply(nil, Set{Name: "a", Value: 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestApplyOperationsFoldsThroughCurrent(t *testing.T) {
	base := []interface{}{}
	ops := []Operation{
		{Data: ListPush{Value: "a"}},
		{Data: ListPush{Value: "b"}},
		{Data: ListMoveByIndex{From: 0, To: 1}},
	}
	out, err := ApplyOperations(base, ops, nil)
	require.NoError(t, err)
	// if each op had instead been re-applied to the original empty base,
	// the move would have no elements to act on and this would be empty
	assert.Equal(t, []interface{}{"b", "a"}, out)
}

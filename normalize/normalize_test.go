package normalize

import (
	"testing"

	"github.com/fork-archive-hub/lo-fi/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFlat(t *testing.T) {
	reg := oid.NewRegistry()
	value := map[string]interface{}{"id": "a", "title": "hi"}

	flat, err := Normalize(value, "todo/a:x", reg)
	require.NoError(t, err)
	require.Len(t, flat, 1)

	root, ok := flat["todo/a:x"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a", root["id"])
	assert.Equal(t, "hi", root["title"])
}

func TestNormalizeNested(t *testing.T) {
	reg := oid.NewRegistry()
	value := map[string]interface{}{
		"id":  "a",
		"sub": map[string]interface{}{"v": float64(1)},
	}

	flat, err := Normalize(value, "todo/a:x", reg)
	require.NoError(t, err)
	require.Len(t, flat, 2)

	root := flat["todo/a:x"].(map[string]interface{})
	ref, ok := oid.IsRef(root["sub"])
	require.True(t, ok)
	assert.Equal(t, oid.OID("todo/a:x#sub"), ref.ID)

	sub := flat["todo/a:x#sub"].(map[string]interface{})
	assert.Equal(t, float64(1), sub["v"])
}

func TestNormalizeArray(t *testing.T) {
	reg := oid.NewRegistry()
	value := map[string]interface{}{
		"items": []interface{}{float64(1), float64(2), float64(3)},
	}

	flat, err := Normalize(value, "todo/a:x", reg)
	require.NoError(t, err)
	require.Len(t, flat, 2)

	items := flat["todo/a:x#items"].([]interface{})
	assert.Equal(t, []interface{}{float64(1), float64(2), float64(3)}, items)
}

func TestNormalizeIdentityStable(t *testing.T) {
	reg := oid.NewRegistry()
	sub := map[string]interface{}{"v": float64(1)}
	value := map[string]interface{}{"id": "a", "sub": sub}

	flat1, err := Normalize(value, "todo/a:x", reg)
	require.NoError(t, err)

	sub["v"] = float64(2)
	flat2, err := Normalize(value, "todo/a:x", reg)
	require.NoError(t, err)

	root1 := flat1["todo/a:x"].(map[string]interface{})
	root2 := flat2["todo/a:x"].(map[string]interface{})
	ref1, _ := oid.IsRef(root1["sub"])
	ref2, _ := oid.IsRef(root2["sub"])
	assert.Equal(t, ref1.ID, ref2.ID, "re-normalizing the same live sub-object must reuse its OID")
}

func TestSubstituteRefsRoundTrip(t *testing.T) {
	reg := oid.NewRegistry()
	value := map[string]interface{}{
		"id":  "a",
		"sub": map[string]interface{}{"v": float64(1)},
		"items": []interface{}{
			map[string]interface{}{"name": "x"},
		},
	}

	flat, err := Normalize(value, "todo/a:x", reg)
	require.NoError(t, err)

	materialized, reached, err := SubstituteRefs("todo/a:x", flat, reg)
	require.NoError(t, err)
	assert.Equal(t, value, materialized)
	assert.Len(t, reached, len(flat))
}

func TestSubstituteRefsMissing(t *testing.T) {
	reg := oid.NewRegistry()
	flat := map[oid.OID]interface{}{
		"todo/a:x": map[string]interface{}{"sub": oid.NewRef("todo/a:x#sub")},
	}

	_, _, err := SubstituteRefs("todo/a:x", flat, reg)
	assert.ErrorAs(t, err, &ErrMissingRef{})
}

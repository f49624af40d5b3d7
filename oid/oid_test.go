package oid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	parts, err := Parse("todo/a:x#sub.items.0")
	require.NoError(t, err)
	assert.Equal(t, "todo", parts.Collection)
	assert.Equal(t, "a", parts.DocID)
	assert.Equal(t, "x", parts.SubID)
	assert.Equal(t, "sub.items.0", parts.Path)
}

func TestParseNoSub(t *testing.T) {
	parts, err := Parse("todo/a")
	require.NoError(t, err)
	assert.Equal(t, "todo", parts.Collection)
	assert.Equal(t, "a", parts.DocID)
	assert.Empty(t, parts.SubID)
	assert.Empty(t, parts.Path)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse("no-slash-here")
	assert.Error(t, err)
}

func TestRoot(t *testing.T) {
	assert.Equal(t, OID("todo/a:x"), OID("todo/a:x#sub").Root())
	assert.Equal(t, OID("todo/a:x"), OID("todo/a:x").Root())
	assert.True(t, OID("todo/a:x").IsRoot())
	assert.False(t, OID("todo/a:x#sub").IsRoot())
}

func TestDocRoot(t *testing.T) {
	assert.Equal(t, OID("todo/a:root"), OID("todo/a:x#sub.items.0").DocRoot())
	assert.Equal(t, OID("todo/a:root"), OID("todo/a:root").DocRoot())
	assert.True(t, OID("todo/a:root").IsDocRoot())
	assert.False(t, OID("todo/a:x").IsDocRoot())
}

func TestSub(t *testing.T) {
	assert.Equal(t, OID("todo/a:x#sub"), Sub("todo/a:x", "sub"))
	assert.Equal(t, OID("todo/a:x#sub"), Sub("todo/a:x#old", "sub"))
}

func TestRequireDocRoot(t *testing.T) {
	assert.NoError(t, RequireDocRoot("todo/a:root"))
	assert.Error(t, RequireDocRoot("todo/a:x"))
}

func TestRegistryIdentity(t *testing.T) {
	reg := NewRegistry()
	obj := map[string]interface{}{"v": 1}

	_, ok := reg.MaybeGet(obj)
	assert.False(t, ok)

	reg.Assign(obj, "todo/a:x")
	got, ok := reg.MaybeGet(obj)
	require.True(t, ok)
	assert.Equal(t, OID("todo/a:x"), got)

	clone := map[string]interface{}{"v": 1}
	_, ok = reg.MaybeGet(clone)
	assert.False(t, ok, "a structurally-equal but distinct map must not share identity")
}

func TestRefRoundTrip(t *testing.T) {
	r := NewRef("todo/a:x")
	assert.Equal(t, RefKind, r.Kind)

	got, ok := IsRef(r)
	require.True(t, ok)
	assert.Equal(t, OID("todo/a:x"), got.ID)

	asMap := map[string]interface{}{"kind": "ref", "id": "todo/a:x"}
	got, ok = IsRef(asMap)
	require.True(t, ok)
	assert.Equal(t, OID("todo/a:x"), got.ID)

	_, ok = IsRef("not a ref")
	assert.False(t, ok)
}

package oid

import (
	"reflect"
	"sync"
)

// Registry stamps arbitrary map/slice values with a hidden OID, keyed by
// the value's own reference identity rather than by an inline field —
// per the design note that normalization consumers should never observe
// OIDs inline in serialized form. A Registry is the side table; callers
// share one per process (or per test) so that re-normalizing the same
// live value yields the same OID. A structurally equal but distinct
// value (a clone) has no identity of its own here.
type Registry struct {
	mu  sync.Mutex
	ids map[uintptr]OID
}

// NewRegistry creates an empty identity registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[uintptr]OID)}
}

// identityKey returns the runtime address backing a map or slice value,
// or ok=false for anything without reference identity (scalars, nil).
func identityKey(value interface{}) (uintptr, bool) {
	if value == nil {
		return 0, false
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Map, reflect.Slice:
		if v.IsNil() {
			return 0, false
		}
		return v.Pointer(), true
	default:
		return 0, false
	}
}

// Assign stamps value with id. It is a no-op for values without
// reference identity (scalars).
func (r *Registry) Assign(value interface{}, id OID) {
	key, ok := identityKey(value)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[key] = id
}

// MaybeGet returns the OID previously assigned to value, if any.
func (r *Registry) MaybeGet(value interface{}) (OID, bool) {
	key, ok := identityKey(value)
	if !ok {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[key]
	return id, ok
}

// Forget removes any stamped identity for value.
func (r *Registry) Forget(value interface{}) {
	key, ok := identityKey(value)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, key)
}

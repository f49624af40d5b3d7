package patch

import (
	"reflect"

	"github.com/fork-archive-hub/lo-fi/oid"
)

// isContainer reports whether v is a normalized-form map or slice — the
// only two shapes ShallowDiff refuses to recurse into.
func isContainer(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	default:
		return false
	}
}

// valuesEqual compares two slot values the way the applier and diff
// engine need to: refs compare by target id, everything else by deep
// equality (scalars compare directly; this also makes two structurally
// equal but distinct maps/slices compare equal, which matters for
// list-remove/list-add on literal values rather than refs).
func valuesEqual(a, b interface{}) bool {
	refA, okA := oid.IsRef(a)
	refB, okB := oid.IsRef(b)
	if okA || okB {
		return okA && okB && refA.ID == refB.ID
	}
	return reflect.DeepEqual(a, b)
}

func deepClone(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = deepClone(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepClone(val)
		}
		return out
	default:
		return t
	}
}

func sameContainerKind(a, b interface{}) bool {
	_, aIsObj := a.(map[string]interface{})
	_, bIsObj := b.(map[string]interface{})
	if aIsObj || bIsObj {
		return aIsObj && bIsObj
	}
	_, aIsArr := a.([]interface{})
	_, bIsArr := b.([]interface{})
	return aIsArr && bIsArr
}

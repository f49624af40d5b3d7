// Package normalize decomposes a nested JSON-like value tree into the
// flat OID-addressed form the rest of the core operates on, and folds
// that flat form back into a materialized value.
package normalize

import (
	"fmt"
	"sort"

	"github.com/fork-archive-hub/lo-fi/oid"
	"github.com/pkg/errors"
)

// ErrMissingRef is returned when substitution encounters an ObjectRef
// with no corresponding entry in the snapshot map — a fatal condition
// per spec §7, indicating store corruption.
type ErrMissingRef struct {
	ID oid.OID
}

func (e ErrMissingRef) Error() string {
	return fmt.Sprintf("normalize: missing reference %q", string(e.ID))
}

// ErrCycle is returned when substitution would recurse through an OID
// it has already visited. Cyclic references are a caller error (§9:
// "normalization assumes a tree; cycles in input are a caller error").
type ErrCycle struct {
	ID oid.OID
}

func (e ErrCycle) Error() string {
	return fmt.Sprintf("normalize: cyclic reference at %q", string(e.ID))
}

// Normalize walks value and produces a flat OID -> shallow-normalized-value
// map. value must be a scalar, map[string]interface{}, or []interface{};
// nested objects and arrays are addressed by an ObjectRef in their parent's
// slot. rootOID is the OID assigned to the top-level entry. Every nested
// object or array is assigned an OID by appending its dotted key path (from
// the top-level entry) to rootOID, unless reg already knows its identity —
// OIDs are content-stable across clones of a value once assigned.
func Normalize(value interface{}, rootOID oid.OID, reg *oid.Registry) (map[oid.OID]interface{}, error) {
	out := make(map[oid.OID]interface{})
	// A rootOID that already carries a #path anchors its children under
	// that path, so they cannot collide with the document's top-level paths.
	parts, _ := oid.Parse(rootOID)
	if _, err := normalizeNode(value, rootOID, parts.Path, rootOID, out, reg); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeNode(value interface{}, assignedID oid.OID, keyPath string, root oid.OID, out map[oid.OID]interface{}, reg *oid.Registry) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		id := identityOrAssign(v, assignedID, keyPath, root, reg)
		shallow := make(map[string]interface{}, len(v))
		for _, k := range sortedKeys(v) {
			slot, err := normalizeNode(v[k], "", joinPath(keyPath, k), root, out, reg)
			if err != nil {
				return nil, err
			}
			shallow[k] = slot
		}
		out[id] = shallow
		return oid.NewRef(id), nil

	case []interface{}:
		id := identityOrAssign(v, assignedID, keyPath, root, reg)
		shallow := make([]interface{}, len(v))
		for i, elem := range v {
			slot, err := normalizeNode(elem, "", joinPath(keyPath, fmt.Sprintf("%d", i)), root, out, reg)
			if err != nil {
				return nil, err
			}
			shallow[i] = slot
		}
		out[id] = shallow
		return oid.NewRef(id), nil

	default:
		return value, nil
	}
}

func identityOrAssign(v interface{}, assignedID oid.OID, keyPath string, root oid.OID, reg *oid.Registry) oid.OID {
	if id, ok := reg.MaybeGet(v); ok {
		return id
	}
	id := assignedID
	if id == "" {
		id = oid.Sub(root, keyPath)
	}
	reg.Assign(v, id)
	return id
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SubstituteRefs materializes root from snapshot: every ObjectRef
// reachable from root is replaced by a copy of its referenced value
// (stamping that copy's identity in reg), and the materialized root value
// is returned along with the list of OIDs that were reached. snapshot
// itself is not modified; the returned value is built from new maps and
// slices. A missing reference is fatal (ErrMissingRef); a
// cycle is fatal (ErrCycle) since normalization assumes a tree.
func SubstituteRefs(root oid.OID, snapshot map[oid.OID]interface{}, reg *oid.Registry) (interface{}, []oid.OID, error) {
	visited := make(map[oid.OID]bool)
	val, err := substitute(root, snapshot, reg, visited)
	if err != nil {
		return nil, nil, err
	}

	reached := make([]oid.OID, 0, len(visited))
	for id := range visited {
		reached = append(reached, id)
	}
	sort.Slice(reached, func(i, j int) bool { return reached[i] < reached[j] })

	return val, reached, nil
}

func substitute(id oid.OID, snapshot map[oid.OID]interface{}, reg *oid.Registry, visited map[oid.OID]bool) (interface{}, error) {
	if visited[id] {
		return nil, errors.WithStack(ErrCycle{ID: id})
	}
	visited[id] = true

	raw, ok := snapshot[id]
	if !ok {
		return nil, errors.WithStack(ErrMissingRef{ID: id})
	}

	switch v := raw.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, slot := range v {
			sub, err := substituteSlot(slot, snapshot, reg, visited)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		reg.Assign(out, id)
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(v))
		for i, slot := range v {
			sub, err := substituteSlot(slot, snapshot, reg, visited)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		reg.Assign(out, id)
		return out, nil

	default:
		return v, nil
	}
}

func substituteSlot(v interface{}, snapshot map[oid.OID]interface{}, reg *oid.Registry, visited map[oid.OID]bool) (interface{}, error) {
	if ref, ok := oid.IsRef(v); ok {
		return substitute(ref.ID, snapshot, reg, visited)
	}
	return v, nil
}

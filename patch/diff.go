package patch

import (
	"sort"
	"strconv"

	"github.com/fork-archive-hub/lo-fi/hlc"
	"github.com/fork-archive-hub/lo-fi/normalize"
	"github.com/fork-archive-hub/lo-fi/oid"
)

// Options tunes the diff engine's handling of two ambiguous cases
// called out by the spec.
type Options struct {
	// MergeUnknownObjects lets a new object/array that lacks an assigned
	// identity adopt the old value's OID when the old value at the same
	// slot is a container of the same kind, instead of always minting a
	// fresh identity. Without it, every object literal the caller builds
	// fresh (e.g. by round-tripping through JSON) is treated as a brand
	// new entity.
	MergeUnknownObjects bool
	// DefaultUndefined treats a key present in from but absent from to
	// as "left alone" rather than "removed" — no Remove is emitted for
	// it. It does not affect arrays: a shorter to array still yields a
	// ListDelete for the dropped tail.
	DefaultUndefined bool
}

// Diff compares from and to, two trees rooted at the same logical
// object, and emits the ordered list of operations that transform from
// into to when applied through the metadata façade. root is the OID of
// the top-level entry; nested objects and arrays are addressed the same
// way Normalize addresses them — by appending their dotted key path
// (from root) to root, unless reg already knows an object's identity.
// When that path-derived OID still belongs to the container being
// replaced at the same slot, the new container's path is suffixed with
// "@" and now instead.
func Diff(from, to interface{}, now hlc.Timestamp, root oid.OID, reg *oid.Registry, opts Options) ([]Operation, error) {
	// A fully-absent from has no root OID to target a Set against yet —
	// route it through InitialToPatches the same way diffItem does for
	// a brand-new nested container, so the root actually materializes.
	if from == nil && isContainer(to) {
		return InitialToPatches(to, root, now, reg)
	}

	var ops []Operation
	if err := diffSubObject(root, root, "", from, to, now, reg, opts, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// InitialToPatches normalizes value under rootOID and emits one
// Initialize operation per resulting entry, root first.
func InitialToPatches(value interface{}, rootOID oid.OID, now hlc.Timestamp, reg *oid.Registry) ([]Operation, error) {
	flat, err := normalize.Normalize(value, rootOID, reg)
	if err != nil {
		return nil, err
	}

	ids := make([]oid.OID, 0, len(flat))
	for id := range flat {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ops := make([]Operation, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, Operation{OID: id, Timestamp: now, Data: Initialize{Value: flat[id]}})
	}
	return ops, nil
}

// diffSubObject compares the shallow contents of one addressable
// sub-object (id, known to be either from or to's container at keyPath)
// field by field (object) or element by element (array), recursing into
// diffItem for each slot.
func diffSubObject(root, id oid.OID, keyPath string, from, to interface{}, now hlc.Timestamp, reg *oid.Registry, opts Options, ops *[]Operation) error {
	if toArr, ok := to.([]interface{}); ok {
		var fromArr []interface{}
		if from != nil {
			fa, ok2 := from.([]interface{})
			if !ok2 {
				return ErrShapeConflict{OID: string(id)}
			}
			fromArr = fa
		}

		for i, v := range toArr {
			var old interface{}
			if i < len(fromArr) {
				old = fromArr[i]
			}
			childPath := joinPath(keyPath, strconv.Itoa(i))
			if err := diffItem(root, id, strconv.Itoa(i), childPath, v, old, now, reg, opts, ops); err != nil {
				return err
			}
		}

		if len(fromArr) > len(toArr) {
			for i := len(toArr); i < len(fromArr); i++ {
				if subID, ok := reg.MaybeGet(fromArr[i]); ok {
					*ops = append(*ops, Operation{OID: subID, Timestamp: now, Data: Delete{}})
				}
			}
			*ops = append(*ops, Operation{OID: id, Timestamp: now, Data: ListDelete{Index: len(toArr), Count: len(fromArr) - len(toArr)}})
		}
		return nil
	}

	if toObj, ok := to.(map[string]interface{}); ok {
		var fromObj map[string]interface{}
		if from != nil {
			fo, ok2 := from.(map[string]interface{})
			if !ok2 {
				return ErrShapeConflict{OID: string(id)}
			}
			fromObj = fo
		}

		for _, k := range sortedKeys(toObj) {
			var old interface{}
			if fromObj != nil {
				old = fromObj[k]
			}
			childPath := joinPath(keyPath, k)
			if err := diffItem(root, id, k, childPath, toObj[k], old, now, reg, opts, ops); err != nil {
				return err
			}
		}

		if fromObj != nil && !opts.DefaultUndefined {
			for _, k := range sortedKeys(fromObj) {
				if _, exists := toObj[k]; !exists {
					*ops = append(*ops, Operation{OID: id, Timestamp: now, Data: Remove{Name: k}})
				}
			}
		}
		return nil
	}

	return nil
}

// diffItem compares a single slot (key within parentID's object, or
// index within parentID's array). newVal/oldVal are the live values at
// that slot in to/from respectively; childPath is the full dotted path
// from root, used to mint a fresh OID when newVal is a brand-new
// container.
func diffItem(root, parentID oid.OID, key, childPath string, newVal, oldVal interface{}, now hlc.Timestamp, reg *oid.Registry, opts Options, ops *[]Operation) error {
	if !isContainer(newVal) {
		if !valuesEqual(newVal, oldVal) {
			*ops = append(*ops, Operation{OID: parentID, Timestamp: now, Data: Set{Name: key, Value: newVal}})
		}
		return nil
	}

	existingID, hasIdentity := reg.MaybeGet(newVal)
	oldID, oldHasIdentity := reg.MaybeGet(oldVal)

	var valueID oid.OID
	preserve := false

	switch {
	case hasIdentity:
		valueID = existingID
		preserve = oldHasIdentity && oldID == existingID
	case opts.MergeUnknownObjects && oldHasIdentity && sameContainerKind(oldVal, newVal):
		valueID = oldID
		reg.Assign(newVal, oldID)
		preserve = true
	default:
		valueID = oid.Sub(root, childPath)
		if oldHasIdentity && oldID == valueID {
			// The slot's path-derived OID still names the old sub-object;
			// qualify the new one with this diff's timestamp so the two
			// stay distinct and the old one can be deleted below.
			valueID = oid.Sub(root, childPath+"@"+string(now))
		}
		reg.Assign(newVal, valueID)
	}

	if preserve {
		return diffSubObject(root, valueID, childPath, oldVal, newVal, now, reg, opts, ops)
	}

	initOps, err := InitialToPatches(newVal, valueID, now, reg)
	if err != nil {
		return err
	}
	*ops = append(*ops, initOps...)
	*ops = append(*ops, Operation{OID: parentID, Timestamp: now, Data: Set{Name: key, Value: oid.NewRef(valueID)}})

	if oldHasIdentity && oldID != valueID {
		*ops = append(*ops, Operation{OID: oldID, Timestamp: now, Data: Delete{}})
	}
	return nil
}

// ShallowDiff compares two already-normalized values at a single OID:
// no recursion, since a normalized value's slots hold only scalars and
// refs. A nested object/array at this level is a caller error.
func ShallowDiff(id oid.OID, from, to interface{}, now hlc.Timestamp, opts Options) ([]Operation, error) {
	var ops []Operation

	switch toV := to.(type) {
	case map[string]interface{}:
		fromV, _ := from.(map[string]interface{})
		for _, k := range sortedKeys(toV) {
			nv := toV[k]
			if isContainer(nv) {
				return nil, ErrShapeConflict{OID: string(id), Message: "shallow diff encountered a nested object"}
			}
			var ov interface{}
			if fromV != nil {
				ov = fromV[k]
			}
			if isContainer(ov) {
				return nil, ErrShapeConflict{OID: string(id), Message: "shallow diff encountered a nested object"}
			}
			if !valuesEqual(nv, ov) {
				ops = append(ops, Operation{OID: id, Timestamp: now, Data: Set{Name: k, Value: nv}})
			}
		}
		if fromV != nil && !opts.DefaultUndefined {
			for _, k := range sortedKeys(fromV) {
				if _, exists := toV[k]; !exists {
					ops = append(ops, Operation{OID: id, Timestamp: now, Data: Remove{Name: k}})
				}
			}
		}

	case []interface{}:
		fromV, _ := from.([]interface{})
		for i, nv := range toV {
			if isContainer(nv) {
				return nil, ErrShapeConflict{OID: string(id), Message: "shallow diff encountered a nested array element"}
			}
			var ov interface{}
			if i < len(fromV) {
				ov = fromV[i]
			}
			if isContainer(ov) {
				return nil, ErrShapeConflict{OID: string(id), Message: "shallow diff encountered a nested array element"}
			}
			if !valuesEqual(nv, ov) {
				ops = append(ops, Operation{OID: id, Timestamp: now, Data: Set{Name: strconv.Itoa(i), Value: nv}})
			}
		}
		if len(fromV) > len(toV) {
			ops = append(ops, Operation{OID: id, Timestamp: now, Data: ListDelete{Index: len(toV), Count: len(fromV) - len(toV)}})
		}

	default:
		return nil, ErrShapeConflict{OID: string(id), Message: "shallow diff root must be an object or array"}
	}

	return ops, nil
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

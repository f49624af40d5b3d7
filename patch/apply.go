package patch

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/fork-archive-hub/lo-fi/oid"
)

// Apply folds a single patch onto base, the current shallow-normalized
// value of one OID (a map, a slice, or nil for an absent sub-object).
// Per §7: a list-targeted patch applied to a non-array, or an object
// patch applied to a non-object, is non-fatal — it is logged and base
// is returned unchanged. Only initialize and delete are defined on an
// absent base; every other variant is a no-op there (the sub-object
// simply has not been created yet, or has already been deleted).
func Apply(base interface{}, p Patch, logger *zap.Logger) (interface{}, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch v := p.(type) {
	case Initialize:
		return deepClone(v.Value), nil
	case Delete:
		return nil, nil
	}

	if base == nil {
		logger.Debug("patch applied to absent sub-object, skipping", zap.String("kind", string(p.Kind())))
		return nil, nil
	}

	switch v := p.(type) {
	case Set:
		switch b := base.(type) {
		case map[string]interface{}:
			b[v.Name] = v.Value
			return b, nil
		case []interface{}:
			idx, err := strconv.Atoi(v.Name)
			if err != nil || idx < 0 || idx >= len(b) {
				logger.Warn("set: array index out of range, skipping", zap.String("name", v.Name), zap.Int("len", len(b)))
				return b, nil
			}
			b[idx] = v.Value
			return b, nil
		default:
			logger.Warn("set applied to scalar base, skipping")
			return base, nil
		}

	case Remove:
		b, ok := base.(map[string]interface{})
		if !ok {
			logger.Warn("remove applied to non-object, skipping")
			return base, nil
		}
		delete(b, v.Name)
		return b, nil

	case ListPush:
		b, ok := base.([]interface{})
		if !ok {
			logger.Warn("list-push applied to non-array, skipping")
			return base, nil
		}
		return append(b, v.Value), nil

	case ListInsert:
		b, ok := base.([]interface{})
		if !ok {
			logger.Warn("list-insert applied to non-array, skipping")
			return base, nil
		}
		if len(v.Values) == 0 {
			return nil, ErrInvalidListInsert{Reason: "empty values"}
		}
		if v.Index < 0 || v.Index > len(b) {
			return nil, ErrInvalidListInsert{Reason: "index out of range"}
		}
		out := make([]interface{}, 0, len(b)+len(v.Values))
		out = append(out, b[:v.Index]...)
		out = append(out, v.Values...)
		out = append(out, b[v.Index:]...)
		return out, nil

	case ListDelete:
		b, ok := base.([]interface{})
		if !ok {
			logger.Warn("list-delete applied to non-array, skipping")
			return base, nil
		}
		start, end := v.Index, v.Index+v.Count
		if start < 0 {
			start = 0
		}
		if start > len(b) {
			start = len(b)
		}
		if end > len(b) {
			end = len(b)
		}
		if end < start {
			end = start
		}
		out := make([]interface{}, 0, len(b)-(end-start))
		out = append(out, b[:start]...)
		out = append(out, b[end:]...)
		return out, nil

	case ListMoveByIndex:
		b, ok := base.([]interface{})
		if !ok {
			logger.Warn("list-move-by-index applied to non-array, skipping")
			return base, nil
		}
		if v.From < 0 || v.From >= len(b) || v.To < 0 || v.To >= len(b) {
			logger.Warn("list-move-by-index: out of range, skipping", zap.Int("from", v.From), zap.Int("to", v.To), zap.Int("len", len(b)))
			return b, nil
		}
		elem := b[v.From]
		rest := make([]interface{}, 0, len(b)-1)
		rest = append(rest, b[:v.From]...)
		rest = append(rest, b[v.From+1:]...)
		to := v.To
		if to > len(rest) {
			to = len(rest)
		}
		out := make([]interface{}, 0, len(b))
		out = append(out, rest[:to]...)
		out = append(out, elem)
		out = append(out, rest[to:]...)
		return out, nil

	case ListMoveByRef:
		b, ok := base.([]interface{})
		if !ok {
			logger.Warn("list-move-by-ref applied to non-array, skipping")
			return base, nil
		}
		idx := findByRef(b, v.Ref)
		if idx < 0 {
			logger.Warn("list-move-by-ref: ref not present, skipping", zap.String("ref", string(v.Ref)))
			return b, nil
		}
		return Apply(b, ListMoveByIndex{From: idx, To: v.Index}, logger)

	case ListRemove:
		b, ok := base.([]interface{})
		if !ok {
			logger.Warn("list-remove applied to non-array, skipping")
			return base, nil
		}
		return listRemove(b, v), nil

	case ListAdd:
		b, ok := base.([]interface{})
		if !ok {
			logger.Warn("list-add applied to non-array, skipping")
			return base, nil
		}
		for _, existing := range b {
			if valuesEqual(existing, v.Value) {
				return b, nil
			}
		}
		return append(b, v.Value), nil

	default:
		return nil, ErrUnknownPatchKind{Kind: p.Kind()}
	}
}

// ApplyOperations folds every operation onto base in order, threading
// the result of each application into the next (rather than re-applying
// every operation to the original base). See DESIGN.md for why this
// correction to the naive per-call re-application matters.
func ApplyOperations(base interface{}, ops []Operation, logger *zap.Logger) (interface{}, error) {
	cur := base
	for _, op := range ops {
		next, err := Apply(cur, op.Data, logger)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func findByRef(list []interface{}, target oid.OID) int {
	for i, elem := range list {
		if ref, ok := oid.IsRef(elem); ok && ref.ID == target {
			return i
		}
	}
	return -1
}

func listRemove(list []interface{}, v ListRemove) []interface{} {
	match := func(e interface{}) bool { return valuesEqual(e, v.Value) }

	switch v.Only {
	case RemoveFirst:
		for i, e := range list {
			if match(e) {
				out := make([]interface{}, 0, len(list)-1)
				out = append(out, list[:i]...)
				out = append(out, list[i+1:]...)
				return out
			}
		}
		return list
	case RemoveLast:
		for i := len(list) - 1; i >= 0; i-- {
			if match(list[i]) {
				out := make([]interface{}, 0, len(list)-1)
				out = append(out, list[:i]...)
				out = append(out, list[i+1:]...)
				return out
			}
		}
		return list
	default: // RemoveAll, or unset
		out := make([]interface{}, 0, len(list))
		for _, e := range list {
			if !match(e) {
				out = append(out, e)
			}
		}
		return out
	}
}

package oid

// RefKind is the tag carried by every ObjectRef.
const RefKind = "ref"

// Ref is a tagged value standing in for a nested object or array in a
// parent's normalized form.
type Ref struct {
	Kind string `json:"kind"`
	ID   OID    `json:"id"`
}

// NewRef wraps id in a Ref.
func NewRef(id OID) Ref {
	return Ref{Kind: RefKind, ID: id}
}

// IsRef reports whether v is an ObjectRef. It handles Ref, *Ref, and the
// map[string]interface{} shape a generic JSON decode produces for one.
func IsRef(v interface{}) (Ref, bool) {
	switch t := v.(type) {
	case Ref:
		return t, true
	case *Ref:
		if t == nil {
			return Ref{}, false
		}
		return *t, true
	case map[string]interface{}:
		kind, ok := t["kind"].(string)
		if !ok || kind != RefKind {
			return Ref{}, false
		}
		id, ok := t["id"].(string)
		if !ok {
			return Ref{}, false
		}
		return Ref{Kind: RefKind, ID: OID(id)}, true
	default:
		return Ref{}, false
	}
}

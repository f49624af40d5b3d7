package patch

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/fork-archive-hub/lo-fi/hlc"
	"github.com/fork-archive-hub/lo-fi/oid"
)

// envelope is the wire shape of a Patch: a kind discriminator plus
// whichever fields that kind uses. Unused fields are omitted on encode
// and ignored on decode, mirroring the teacher's handwritten operation
// envelope rather than reflection-driven tagging.
type envelope struct {
	Kind   Kind            `json:"kind"`
	Name   string          `json:"name,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Values json.RawMessage `json:"values,omitempty"`
	Index  *int            `json:"index,omitempty"`
	Count  *int            `json:"count,omitempty"`
	From   *int            `json:"from,omitempty"`
	To     *int            `json:"to,omitempty"`
	Ref    oid.OID         `json:"ref,omitempty"`
	Only   RemoveMode      `json:"only,omitempty"`
}

// EncodePatch serializes a Patch to its wire envelope.
func EncodePatch(p Patch) ([]byte, error) {
	env := envelope{Kind: p.Kind()}

	switch v := p.(type) {
	case Initialize:
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: encode initialize value")
		}
		env.Value = raw
	case Set:
		env.Name = v.Name
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: encode set value")
		}
		env.Value = raw
	case Remove:
		env.Name = v.Name
	case ListPush:
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: encode list-push value")
		}
		env.Value = raw
	case ListInsert:
		idx := v.Index
		env.Index = &idx
		raw, err := json.Marshal(v.Values)
		if err != nil {
			return nil, errors.Wrap(err, "patch: encode list-insert values")
		}
		env.Values = raw
	case ListDelete:
		idx, cnt := v.Index, v.Count
		env.Index = &idx
		env.Count = &cnt
	case ListMoveByIndex:
		from, to := v.From, v.To
		env.From = &from
		env.To = &to
	case ListMoveByRef:
		env.Ref = v.Ref
		idx := v.Index
		env.Index = &idx
	case ListRemove:
		env.Only = v.Only
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: encode list-remove value")
		}
		env.Value = raw
	case ListAdd:
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: encode list-add value")
		}
		env.Value = raw
	case Delete:
		// no fields
	default:
		return nil, ErrUnknownPatchKind{Kind: p.Kind()}
	}

	return json.Marshal(env)
}

// DecodePatch parses a wire envelope back into a concrete Patch.
func DecodePatch(data []byte) (Patch, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "patch: decode envelope")
	}

	unmarshalValue := func(raw json.RawMessage) (interface{}, error) {
		if len(raw) == 0 {
			return nil, nil
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return unrefValue(v), nil
	}

	switch env.Kind {
	case KindInitialize:
		v, err := unmarshalValue(env.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: decode initialize value")
		}
		return Initialize{Value: v}, nil
	case KindSet:
		v, err := unmarshalValue(env.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: decode set value")
		}
		return Set{Name: env.Name, Value: v}, nil
	case KindRemove:
		return Remove{Name: env.Name}, nil
	case KindListPush:
		v, err := unmarshalValue(env.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: decode list-push value")
		}
		return ListPush{Value: v}, nil
	case KindListInsert:
		if env.Index == nil {
			return nil, errors.New("patch: list-insert missing index")
		}
		var rawValues []json.RawMessage
		if len(env.Values) > 0 {
			if err := json.Unmarshal(env.Values, &rawValues); err != nil {
				return nil, errors.Wrap(err, "patch: decode list-insert values")
			}
		}
		values := make([]interface{}, 0, len(rawValues))
		for _, raw := range rawValues {
			v, err := unmarshalValue(raw)
			if err != nil {
				return nil, errors.Wrap(err, "patch: decode list-insert value")
			}
			values = append(values, v)
		}
		return ListInsert{Index: *env.Index, Values: values}, nil
	case KindListDelete:
		if env.Index == nil || env.Count == nil {
			return nil, errors.New("patch: list-delete missing index/count")
		}
		return ListDelete{Index: *env.Index, Count: *env.Count}, nil
	case KindListMoveByIndex:
		if env.From == nil || env.To == nil {
			return nil, errors.New("patch: list-move-by-index missing from/to")
		}
		return ListMoveByIndex{From: *env.From, To: *env.To}, nil
	case KindListMoveByRef:
		if env.Index == nil {
			return nil, errors.New("patch: list-move-by-ref missing index")
		}
		return ListMoveByRef{Ref: env.Ref, Index: *env.Index}, nil
	case KindListRemove:
		v, err := unmarshalValue(env.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: decode list-remove value")
		}
		return ListRemove{Value: v, Only: env.Only}, nil
	case KindListAdd:
		v, err := unmarshalValue(env.Value)
		if err != nil {
			return nil, errors.Wrap(err, "patch: decode list-add value")
		}
		return ListAdd{Value: v}, nil
	case KindDelete:
		return Delete{}, nil
	default:
		return nil, ErrUnknownPatchKind{Kind: env.Kind}
	}
}

// unrefValue re-tags a decoded {"kind":"ref","id":"..."} map back into an
// oid.Ref so downstream code can type-switch on it like any other
// in-memory ref instead of a bare map.
func unrefValue(v interface{}) interface{} {
	if ref, ok := oid.IsRef(v); ok {
		return ref
	}
	switch t := v.(type) {
	case map[string]interface{}:
		for k, slot := range t {
			t[k] = unrefValue(slot)
		}
		return t
	case []interface{}:
		for i, slot := range t {
			t[i] = unrefValue(slot)
		}
		return t
	default:
		return t
	}
}

// operationWire is Operation's on-the-wire shape.
type operationWire struct {
	OID       oid.OID         `json:"oid"`
	Timestamp hlc.Timestamp   `json:"ts"`
	Patch     json.RawMessage `json:"patch"`
	IsLocal   bool            `json:"isLocal,omitempty"`
}

func (o Operation) MarshalJSON() ([]byte, error) {
	raw, err := EncodePatch(o.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(operationWire{OID: o.OID, Timestamp: o.Timestamp, Patch: raw, IsLocal: o.IsLocal})
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var wire operationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrap(err, "patch: decode operation")
	}
	p, err := DecodePatch(wire.Patch)
	if err != nil {
		return err
	}
	o.OID = wire.OID
	o.Timestamp = wire.Timestamp
	o.Data = p
	o.IsLocal = wire.IsLocal
	return nil
}

// Package patch implements the operation model: the tagged union of
// patch variants, the diff engine that derives patches from a
// before/after value pair, and the applier that folds patches onto a
// normalized value.
package patch

import (
	"fmt"

	"github.com/fork-archive-hub/lo-fi/hlc"
	"github.com/fork-archive-hub/lo-fi/oid"
)

// Kind names a patch variant.
type Kind string

const (
	KindInitialize      Kind = "initialize"
	KindSet             Kind = "set"
	KindRemove          Kind = "remove"
	KindListPush        Kind = "list-push"
	KindListInsert      Kind = "list-insert"
	KindListDelete      Kind = "list-delete"
	KindListMoveByIndex Kind = "list-move-by-index"
	KindListMoveByRef   Kind = "list-move-by-ref"
	KindListRemove      Kind = "list-remove"
	KindListAdd         Kind = "list-add"
	KindDelete          Kind = "delete"
)

// RemoveMode selects how many matches list-remove drops.
type RemoveMode string

const (
	RemoveFirst RemoveMode = "first"
	RemoveLast  RemoveMode = "last"
	RemoveAll   RemoveMode = "all"
)

// Patch is the sealed tagged union of patch variants. The unexported
// method keeps the variant set closed to this package, so the type
// switches here list every variant; each still ends in a default case
// that returns ErrUnknownPatchKind at run time, since Go does not check
// switch exhaustiveness at compile time.
type Patch interface {
	Kind() Kind
	sealed()
}

// Initialize creates or replaces an entire sub-object with a deep-cloned
// value.
type Initialize struct {
	Value interface{}
}

func (Initialize) Kind() Kind { return KindInitialize }
func (Initialize) sealed()    {}

// Set assigns a property (object) or slot (array, by decimal index in Name).
type Set struct {
	Name  string
	Value interface{}
}

func (Set) Kind() Kind { return KindSet }
func (Set) sealed()    {}

// Remove deletes a property from an object.
type Remove struct {
	Name string
}

func (Remove) Kind() Kind { return KindRemove }
func (Remove) sealed()    {}

// ListPush appends a single value.
type ListPush struct {
	Value interface{}
}

func (ListPush) Kind() Kind { return KindListPush }
func (ListPush) sealed()    {}

// ListInsert inserts one or more values starting at Index.
type ListInsert struct {
	Index  int
	Values []interface{}
}

func (ListInsert) Kind() Kind { return KindListInsert }
func (ListInsert) sealed()    {}

// ListDelete removes Count elements starting at Index.
type ListDelete struct {
	Index int
	Count int
}

func (ListDelete) Kind() Kind { return KindListDelete }
func (ListDelete) sealed()    {}

// ListMoveByIndex splice-moves the element at From to land at To.
type ListMoveByIndex struct {
	From int
	To   int
}

func (ListMoveByIndex) Kind() Kind { return KindListMoveByIndex }
func (ListMoveByIndex) sealed()    {}

// ListMoveByRef locates the element whose ref id matches Ref and moves it
// to Index.
type ListMoveByRef struct {
	Ref   oid.OID
	Index int
}

func (ListMoveByRef) Kind() Kind { return KindListMoveByRef }
func (ListMoveByRef) sealed()    {}

// ListRemove removes elements equal to Value (ref compared by id, else by
// equality), per Only.
type ListRemove struct {
	Value interface{}
	Only  RemoveMode
}

func (ListRemove) Kind() Kind { return KindListRemove }
func (ListRemove) sealed()    {}

// ListAdd appends Value iff it is not already present (set-style add).
type ListAdd struct {
	Value interface{}
}

func (ListAdd) Kind() Kind { return KindListAdd }
func (ListAdd) sealed()    {}

// Delete marks the sub-object deleted; it materializes as absent.
type Delete struct{}

func (Delete) Kind() Kind { return KindDelete }
func (Delete) sealed()    {}

// Operation is a single timestamped mutation targeting one OID.
type Operation struct {
	OID       oid.OID
	Timestamp hlc.Timestamp
	Data      Patch
	// IsLocal marks an operation as authored by the local replica rather
	// than received from the transport. It is encoded as "isLocal"
	// (omitted when false); the metadata façade sets it in
	// InsertLocalOperation.
	IsLocal bool
}

func (o Operation) String() string {
	return fmt.Sprintf("Operation{oid=%s, ts=%s, kind=%s}", o.OID, o.Timestamp, o.Data.Kind())
}

// ByTimestamp sorts operations into the total order the store and
// applier require.
type ByTimestamp []Operation

func (b ByTimestamp) Len() int      { return len(b) }
func (b ByTimestamp) Swap(i, j int) { b[i], b[j] = b[j], b[i] }
func (b ByTimestamp) Less(i, j int) bool {
	return b[i].Timestamp.Less(b[j].Timestamp)
}

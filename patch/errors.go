package patch

import "fmt"

// ErrUnknownPatchKind is returned by Apply for a Patch value this package
// did not construct (a foreign implementation of the interface, or a
// decode bug). It is fatal: the caller's operation stream is suspect.
type ErrUnknownPatchKind struct {
	Kind Kind
}

func (e ErrUnknownPatchKind) Error() string {
	return fmt.Sprintf("patch: unknown patch kind %q", string(e.Kind))
}

// ErrInvalidListInsert is fatal per §7: an empty or malformed
// list-insert is a caller bug, not a convergence race.
type ErrInvalidListInsert struct {
	Reason string
}

func (e ErrInvalidListInsert) Error() string {
	return fmt.Sprintf("patch: invalid list-insert: %s", e.Reason)
}

// ErrShapeConflict is returned by the diff engine when from and to
// disagree on container kind (array vs object) at the same OID.
type ErrShapeConflict struct {
	OID     string
	Message string
}

func (e ErrShapeConflict) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("patch: shape conflict at %q: %s", e.OID, e.Message)
	}
	return fmt.Sprintf("patch: shape conflict at %q: array/object mismatch", e.OID)
}

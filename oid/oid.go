// Package oid implements the object-identifier grammar used to address
// sub-objects within a document: collection/docId(:subId(#path)?)?
package oid

import (
	"strings"

	"github.com/pkg/errors"
)

// OID names a single addressable sub-object.
//
// Grammar: collection '/' docId (':' subId ('#' path)?)?
type OID string

// RootSubID is the reserved sub-identifier every document's top-level
// object is assigned, so the document-root prefix of any OID is
// derivable by truncation alone, without a lookup.
const RootSubID = "root"

const (
	collSep = "/"
	subSep  = ":"
	pathSep = "#"
)

// Parts is the decomposed form of an OID.
type Parts struct {
	Collection string
	DocID      string
	SubID      string // empty if the OID names only a document, not a sub-object
	Path       string // empty for a root (non-#) OID
}

// ErrMalformed is returned when a string does not match the OID grammar.
type ErrMalformed struct {
	Value string
}

func (e ErrMalformed) Error() string {
	return "oid: malformed identifier: " + e.Value
}

// New builds a root OID (no #path) for a sub-object.
func New(collection, docID, subID string) OID {
	return OID(collection + collSep + docID + subSep + subID)
}

// NewDoc builds an OID that names only a document (no sub-object).
func NewDoc(collection, docID string) OID {
	return OID(collection + collSep + docID)
}

// Sub appends a key-path to a root OID, producing the OID of a nested
// sub-object. Any #path root already carries is dropped first.
func Sub(root OID, path string) OID {
	return OID(string(root.Root()) + pathSep + path)
}

// Parse decomposes an OID string. It fails only if the collection/docId
// prefix is missing; a malformed :subId or #path tail degrades gracefully
// into an empty field rather than erroring, matching the grammar's
// permissive trailing structure.
func Parse(s OID) (Parts, error) {
	raw := string(s)
	slash := strings.Index(raw, collSep)
	if slash < 0 {
		return Parts{}, ErrMalformed{Value: raw}
	}

	collection := raw[:slash]
	rest := raw[slash+1:]
	if collection == "" || rest == "" {
		return Parts{}, ErrMalformed{Value: raw}
	}

	docID := rest
	subID := ""
	path := ""

	if i := strings.Index(rest, subSep); i >= 0 {
		docID = rest[:i]
		tail := rest[i+1:]
		if j := strings.Index(tail, pathSep); j >= 0 {
			subID = tail[:j]
			path = tail[j+1:]
		} else {
			subID = tail
		}
	}

	if docID == "" {
		return Parts{}, ErrMalformed{Value: raw}
	}

	return Parts{Collection: collection, DocID: docID, SubID: subID, Path: path}, nil
}

// Root returns the OID with any #path stripped. It never fails: a
// malformed OID is returned unchanged, since root extraction is purely
// lexical (per spec: "the root is always obtainable by lexical
// truncation").
func (o OID) Root() OID {
	if i := strings.Index(string(o), pathSep); i >= 0 {
		return o[:i]
	}
	return o
}

// IsRoot reports whether the OID carries no #path component.
func (o OID) IsRoot() bool {
	return !strings.Contains(string(o), pathSep)
}

// DocRoot returns the document-root OID: the collection/docId prefix
// with the sub-identifier replaced by RootSubID and any #path stripped.
// Like Root, this is purely lexical and never fails.
func (o OID) DocRoot() OID {
	raw := string(o)
	slash := strings.Index(raw, collSep)
	if slash < 0 {
		return o
	}
	collection := raw[:slash]
	rest := raw[slash+1:]
	docID := rest
	if i := strings.Index(rest, subSep); i >= 0 {
		docID = rest[:i]
	} else if j := strings.Index(rest, pathSep); j >= 0 {
		docID = rest[:j]
	}
	return New(collection, docID, RootSubID)
}

// IsDocRoot reports whether o is already its own document-root OID.
func (o OID) IsDocRoot() bool {
	return o.DocRoot() == o
}

// RequireDocRoot fails fatally (per spec §7 "non-root OID passed to a
// document-level API") unless o already is the document-root OID.
func RequireDocRoot(o OID) error {
	if !o.IsDocRoot() {
		return errors.Errorf("oid: %q is not a document-root OID", string(o))
	}
	return nil
}

func (o OID) String() string {
	return string(o)
}

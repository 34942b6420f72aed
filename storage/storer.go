// Package storage defines the storage-agnostic interfaces the rest of this
// module codes against: object storage, reference storage, index storage,
// and the composite Storer a Repository holds. Concrete back-ends live in
// storage/filesystem (on-disk, byte-compatible with stock git) and
// storage/memory (scratch/tests).
package storage

import (
	"errors"
	"io"

	"github.com/kirdyuk/govcs/plumbing"
)

// Errors returned by concrete Storer back-ends around repository lifecycle.
var (
	ErrRepositoryAlreadyExists = errors.New("repository already exists")
	ErrRepositoryNotExists     = errors.New("repository does not exist")
)

// EncodedObjectIter iterates over EncodedObjects.
type EncodedObjectIter interface {
	Next() (plumbing.EncodedObject, error)
	ForEach(func(plumbing.EncodedObject) error) error
	Close()
}

// EncodedObjectStorer is the object-store side of spec §4.1: existence,
// read, write and iteration, independent of whether the object is in loose
// or packed form.
type EncodedObjectStorer interface {
	NewEncodedObject() plumbing.EncodedObject
	SetEncodedObject(plumbing.EncodedObject) (plumbing.Hash, error)
	EncodedObject(plumbing.ObjectType, plumbing.Hash) (plumbing.EncodedObject, error)
	IterEncodedObjects(plumbing.ObjectType) (EncodedObjectIter, error)
	HasEncodedObject(plumbing.Hash) error
	EncodedObjectSize(plumbing.Hash) (int64, error)
}

// ReferenceIter iterates over References.
type ReferenceIter interface {
	Next() (*plumbing.Reference, error)
	ForEach(func(*plumbing.Reference) error) error
	Close()
}

// ReferenceStorer is the refs side of spec §4.2.
type ReferenceStorer interface {
	SetReference(*plumbing.Reference) error
	// CheckAndSetReference performs a compare-and-swap: it fails with
	// plumbing.ErrRefStale if the current value of new.Name() is not old
	// (nil old means "must not currently exist").
	CheckAndSetReference(new, old *plumbing.Reference) error
	Reference(plumbing.ReferenceName) (*plumbing.Reference, error)
	IterReferences() (ReferenceIter, error)
	RemoveReference(plumbing.ReferenceName) error
	CountLooseRefs() (int, error)
}

// IndexStorer persists the single binary index file (spec §3, "Index").
type IndexStorer interface {
	// SetIndex atomically overwrites the stored index.
	SetIndex(io.Reader) error
	// Index returns a reader over the stored index, or an error if none
	// has ever been written.
	Index() (io.ReadCloser, error)
}

// ShallowStorer is unused by this core (no partial clone support beyond
// depth, which is handled at the transport layer) but kept as the natural
// extension point a byte-compatible store needs for a "shallow" file.
type ShallowStorer interface {
	SetShallow([]plumbing.Hash) error
	Shallow() ([]plumbing.Hash, error)
}

// Storer is the full composite a Repository is built from.
type Storer interface {
	EncodedObjectStorer
	ReferenceStorer
	IndexStorer
	ShallowStorer
}

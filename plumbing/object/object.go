// Package object implements the four object codecs (blob, tree, commit,
// tag) and the helpers built directly on top of them: parent iteration,
// tree path lookup and recursive tree flattening (spec §3).
package object

import (
	"errors"
	"fmt"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/storage"
)

// ErrUnsupportedObject is returned by DecodeObject for an object type with
// no registered codec (there are only four).
var ErrUnsupportedObject = errors.New("unsupported object type")

// Object is satisfied by Blob, Tree, Commit and Tag: every decodable git
// object kind.
type Object interface {
	ID() plumbing.Hash
	Type() plumbing.ObjectType
	Decode(plumbing.EncodedObject) error
	Encode(plumbing.EncodedObject) error
}

// DecodeObject dispatches on eo.Type() to produce the typed Object.
func DecodeObject(s storage.EncodedObjectStorer, eo plumbing.EncodedObject) (Object, error) {
	switch eo.Type() {
	case plumbing.CommitObject:
		c := &Commit{s: s}
		if err := c.Decode(eo); err != nil {
			return nil, err
		}
		return c, nil
	case plumbing.TreeObject:
		t := &Tree{s: s}
		if err := t.Decode(eo); err != nil {
			return nil, err
		}
		return t, nil
	case plumbing.BlobObject:
		b := &Blob{}
		if err := b.Decode(eo); err != nil {
			return nil, err
		}
		return b, nil
	case plumbing.TagObject:
		t := &Tag{s: s}
		if err := t.Decode(eo); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedObject, eo.Type())
	}
}

// GetCommit looks up and decodes the commit at h.
func GetCommit(s storage.EncodedObjectStorer, h plumbing.Hash) (*Commit, error) {
	eo, err := s.EncodedObject(plumbing.CommitObject, h)
	if err != nil {
		return nil, err
	}
	c := &Commit{s: s}
	if err := c.Decode(eo); err != nil {
		return nil, err
	}
	return c, nil
}

// GetTree looks up and decodes the tree at h.
func GetTree(s storage.EncodedObjectStorer, h plumbing.Hash) (*Tree, error) {
	eo, err := s.EncodedObject(plumbing.TreeObject, h)
	if err != nil {
		return nil, err
	}
	t := &Tree{s: s}
	if err := t.Decode(eo); err != nil {
		return nil, err
	}
	return t, nil
}

// GetBlob looks up and decodes the blob at h.
func GetBlob(s storage.EncodedObjectStorer, h plumbing.Hash) (*Blob, error) {
	eo, err := s.EncodedObject(plumbing.BlobObject, h)
	if err != nil {
		return nil, err
	}
	b := &Blob{}
	if err := b.Decode(eo); err != nil {
		return nil, err
	}
	return b, nil
}

// GetTag looks up and decodes the annotated tag at h.
func GetTag(s storage.EncodedObjectStorer, h plumbing.Hash) (*Tag, error) {
	eo, err := s.EncodedObject(plumbing.TagObject, h)
	if err != nil {
		return nil, err
	}
	t := &Tag{s: s}
	if err := t.Decode(eo); err != nil {
		return nil, err
	}
	return t, nil
}

// WriteObject encodes o into a fresh EncodedObject from s and persists it,
// returning its hash. This is the common path every write (commit, tree
// build, tag) funnels through.
func WriteObject(s storage.EncodedObjectStorer, o Object) (plumbing.Hash, error) {
	eo := s.NewEncodedObject()
	eo.SetType(o.Type())
	if err := o.Encode(eo); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.SetEncodedObject(eo)
}

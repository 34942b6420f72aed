package object

import (
	"io"

	"github.com/kirdyuk/govcs/plumbing"
)

// Blob is a raw byte sequence with no internal structure (spec §3, "Blob").
type Blob struct {
	hash plumbing.Hash
	size int64
	obj  plumbing.EncodedObject
}

func (b *Blob) ID() plumbing.Hash            { return b.hash }
func (b *Blob) Type() plumbing.ObjectType    { return plumbing.BlobObject }
func (b *Blob) Size() int64                  { return b.size }

// Reader streams the blob's content.
func (b *Blob) Reader() (io.ReadCloser, error) { return b.obj.Reader() }

func (b *Blob) Decode(o plumbing.EncodedObject) error {
	if o.Type() != plumbing.BlobObject {
		return plumbing.ErrInvalidType
	}
	b.hash = o.Hash()
	b.size = o.Size()
	b.obj = o
	return nil
}

func (b *Blob) Encode(o plumbing.EncodedObject) error {
	w, err := o.Writer()
	if err != nil {
		return err
	}
	defer w.Close()

	r, err := b.obj.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = io.Copy(w, r)
	return err
}

// NewBlob constructs a Blob ready to be encoded from raw content bytes.
func NewBlob(content []byte) *Blob {
	m := plumbing.NewMemoryObject()
	m.SetType(plumbing.BlobObject)
	m.SetContent(content)
	return &Blob{hash: m.Hash(), size: m.Size(), obj: m}
}

package plumbing

import (
	"bytes"
	"io"
)

// MemoryObject is the simplest EncodedObject: its content lives entirely in
// a byte slice. It is what the object codec (plumbing/object) encodes into
// before handing off to whichever store (loose, pack, memory) persists it.
type MemoryObject struct {
	typ  ObjectType
	size int64
	hash Hash
	blob []byte
}

func NewMemoryObject() *MemoryObject { return &MemoryObject{} }

func (o *MemoryObject) Hash() Hash { return o.hash }

func (o *MemoryObject) Type() ObjectType    { return o.typ }
func (o *MemoryObject) SetType(t ObjectType) { o.typ = t }

func (o *MemoryObject) Size() int64     { return o.size }
func (o *MemoryObject) SetSize(s int64) { o.size = s }

func (o *MemoryObject) Reader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(o.blob)), nil
}

type memoryObjectWriter struct {
	o   *MemoryObject
	buf bytes.Buffer
}

func (w *memoryObjectWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memoryObjectWriter) Close() error {
	w.o.blob = w.buf.Bytes()
	w.o.size = int64(w.buf.Len())
	hs := NewHasher(w.o.typ, w.o.size)
	hs.Write(w.o.blob)
	w.o.hash = hs.Sum()
	return nil
}

func (o *MemoryObject) Writer() (io.WriteCloser, error) {
	return &memoryObjectWriter{o: o}, nil
}

// SetContent is a convenience for tests and codecs that already have the
// full byte slice in hand and don't need the streaming Writer.
func (o *MemoryObject) SetContent(b []byte) {
	o.blob = b
	o.size = int64(len(b))
	hs := NewHasher(o.typ, o.size)
	hs.Write(b)
	o.hash = hs.Sum()
}

// Bytes returns the object's raw content.
func (o *MemoryObject) Bytes() []byte { return o.blob }

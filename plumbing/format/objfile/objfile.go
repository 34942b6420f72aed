// Package objfile implements the on-disk framing of a loose object: zlib
// deflate over "<type> <size>\0<content>" (spec §4.1, "Loose storage").
package objfile

import (
	"bufio"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"

	"github.com/kirdyuk/govcs/plumbing"
)

// Writer wraps a destination writer, framing and deflating a single object.
// WriteHeader must be called exactly once before any Write calls; Close
// flushes the zlib stream.
type Writer struct {
	raw io.WriteCloser
	zw  *zlib.Writer
	h   plumbing.Hasher
	typ plumbing.ObjectType
}

func NewWriter(w io.WriteCloser) *Writer {
	return &Writer{raw: w}
}

// WriteHeader writes the "<type> <size>\0" framing prefix.
func (w *Writer) WriteHeader(t plumbing.ObjectType, size int64) error {
	w.typ = t
	w.h = plumbing.NewHasher(t, size)
	w.zw = zlib.NewWriter(w.raw)

	header := fmt.Sprintf("%s %d\x00", t.String(), size)
	_, err := w.zw.Write([]byte(header))
	return err
}

func (w *Writer) Write(p []byte) (int, error) {
	w.h.Write(p)
	return w.zw.Write(p)
}

// Hash returns the object hash computed so far; valid only after Close.
func (w *Writer) Hash() plumbing.Hash { return w.h.Sum() }

func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		return err
	}
	return w.raw.Close()
}

// Reader wraps a source reader, inflating and parsing the type+size header
// of a loose object. Use Type/Size after NewReader, then Read for content.
type Reader struct {
	zr   io.ReadCloser
	br   *bufio.Reader
	typ  plumbing.ObjectType
	size int64
}

// NewReader inflates r and parses the object header.
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrMalformedObject, err)
	}

	br := bufio.NewReader(zr)
	typeWord, err := br.ReadString(' ')
	if err != nil {
		return nil, fmt.Errorf("%w: missing type", plumbing.ErrMalformedObject)
	}
	typeWord = typeWord[:len(typeWord)-1]

	sizeWord, err := br.ReadString(0)
	if err != nil {
		return nil, fmt.Errorf("%w: missing size", plumbing.ErrMalformedObject)
	}
	sizeWord = sizeWord[:len(sizeWord)-1]

	t, err := plumbing.ParseObjectType(typeWord)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown type %q", plumbing.ErrMalformedObject, typeWord)
	}
	size, err := strconv.ParseInt(sizeWord, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad size %q", plumbing.ErrMalformedObject, sizeWord)
	}

	return &Reader{zr: zr, br: br, typ: t, size: size}, nil
}

func (r *Reader) Type() plumbing.ObjectType { return r.typ }
func (r *Reader) Size() int64               { return r.size }

func (r *Reader) Read(p []byte) (int, error) { return r.br.Read(p) }

func (r *Reader) Close() error { return r.zr.Close() }

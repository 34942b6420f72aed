// Package packfile implements the PACK container format: header, the
// variable-length object stream (literal or OFS/REF delta), and the
// trailing checksum (spec §3 "Packfile", §4.1 "Pack storage", §4.8).
package packfile

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/format/idxfile"
)

var packSignature = [4]byte{'P', 'A', 'C', 'K'}

const packVersion = 2

// Object is a single decoded (i.e. delta-resolved) object recovered from a
// pack, plus its byte offset for index construction.
type Object struct {
	Hash    plumbing.Hash
	Type    plumbing.ObjectType
	Content []byte
	Offset  int64
	CRC32   uint32
}

// ObjectEntry is the input to Encode: either a literal object, or a delta
// against BaseHash (when BaseHash is non-zero, Content must already be the
// encoded delta bytes produced by CreateDelta).
type ObjectEntry struct {
	Hash     plumbing.Hash
	Type     plumbing.ObjectType
	Content  []byte
	BaseHash plumbing.Hash
}

// Encode writes a full PACK stream for entries to w, returning the pack's
// trailer checksum and an Index ready to be serialized alongside it.
// Entries with a non-zero BaseHash are written as REF_DELTA records; all
// others are written literally. Base objects must appear in entries too
// (possibly deltified themselves) for REF_DELTA resolution to succeed
// later — this encoder never reaches outside the given entry set.
func Encode(w io.Writer, entries []ObjectEntry) (plumbing.Hash, *idxfile.Index, error) {
	h := sha1.New()
	cw := &countingHashWriter{w: w, h: h}

	if _, err := cw.Write(packSignature[:]); err != nil {
		return plumbing.ZeroHash, nil, err
	}
	if err := writeBE32(cw, packVersion); err != nil {
		return plumbing.ZeroHash, nil, err
	}
	if err := writeBE32(cw, uint32(len(entries))); err != nil {
		return plumbing.ZeroHash, nil, err
	}

	idxEntries := make([]idxfile.Entry, 0, len(entries))

	for _, e := range entries {
		offset := cw.n
		crc := crc32.NewIEEE()
		mw := io.MultiWriter(cw, crc)

		if e.BaseHash.IsZero() {
			if err := encodeTypeAndSize(mw, int(e.Type), uint64(len(e.Content))); err != nil {
				return plumbing.ZeroHash, nil, err
			}
			zw := zlib.NewWriter(mw)
			if _, err := zw.Write(e.Content); err != nil {
				return plumbing.ZeroHash, nil, err
			}
			if err := zw.Close(); err != nil {
				return plumbing.ZeroHash, nil, err
			}
		} else {
			if err := encodeTypeAndSize(mw, int(plumbing.REFDeltaObject), uint64(len(e.Content))); err != nil {
				return plumbing.ZeroHash, nil, err
			}
			if _, err := mw.Write(e.BaseHash[:]); err != nil {
				return plumbing.ZeroHash, nil, err
			}
			zw := zlib.NewWriter(mw)
			if _, err := zw.Write(e.Content); err != nil {
				return plumbing.ZeroHash, nil, err
			}
			if err := zw.Close(); err != nil {
				return plumbing.ZeroHash, nil, err
			}
		}

		idxEntries = append(idxEntries, idxfile.Entry{Hash: e.Hash, Offset: offset, CRC32: crc.Sum32()})
	}

	sum := h.Sum(nil)
	var packHash plumbing.Hash
	copy(packHash[:], sum)

	if _, err := w.Write(sum); err != nil {
		return plumbing.ZeroHash, nil, err
	}

	return packHash, idxfile.NewIndex(idxEntries, packHash), nil
}

type countingHashWriter struct {
	w io.Writer
	h hash.Hash
	n int64
}

func (c *countingHashWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.h.Write(p[:n])
	c.n += int64(n)
	return n, err
}

func writeBE32(w io.Writer, v uint32) error {
	_, err := w.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	return err
}

func readBE32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// rawEntry is one still-possibly-deltified record read off the wire.
type rawEntry struct {
	offset     int64
	typ        plumbing.ObjectType
	size       uint64
	content    []byte // literal content, or delta bytes if typ is a delta type
	baseOffset int64  // absolute offset of base, for OFS_DELTA
	baseHash   plumbing.Hash
	crc        uint32
}

// ExternalResolver looks up an object that lives outside the pack being
// decoded — used for thin-pack REF_DELTA bases (spec §4.10, "thin-pack").
type ExternalResolver func(h plumbing.Hash) (plumbing.ObjectType, []byte, bool)

// Decode parses a full PACK stream and resolves every delta, returning the
// flat list of materialized objects. The stream's trailing checksum is
// verified against a running SHA-1 of everything preceding it (spec §4.8,
// "Pack trailer"); a mismatch is plumbing.ErrBadChecksum.
func Decode(r io.Reader, resolve ExternalResolver) ([]Object, plumbing.Hash, error) {
	h := sha1.New()
	br := bufio.NewReader(r)
	tr := io.TeeReader(br, h)

	var sig [4]byte
	if _, err := io.ReadFull(tr, sig[:]); err != nil || sig != packSignature {
		return nil, plumbing.ZeroHash, fmt.Errorf("%w: bad signature", plumbing.ErrMalformedPack)
	}
	version, err := readBE32(tr)
	if err != nil || version != packVersion {
		return nil, plumbing.ZeroHash, fmt.Errorf("%w: unsupported version", plumbing.ErrMalformedPack)
	}
	count, err := readBE32(tr)
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("%w: truncated header", plumbing.ErrMalformedPack)
	}

	var offset int64 = 12 // PACK + version + count
	raws := make([]rawEntry, 0, count)

	for i := uint32(0); i < count; i++ {
		entryStart := offset
		byteCounter := &countingByteReader{r: tr}
		typ, size, err := decodeTypeAndSize(byteCounter)
		if err != nil {
			return nil, plumbing.ZeroHash, fmt.Errorf("%w: truncated object header", plumbing.ErrMalformedPack)
		}

		e := rawEntry{offset: entryStart, typ: plumbing.ObjectType(typ), size: size}

		switch e.typ {
		case plumbing.OFSDeltaObject:
			neg, err := decodeOFSOffset(byteCounter)
			if err != nil {
				return nil, plumbing.ZeroHash, fmt.Errorf("%w: truncated ofs-delta offset", plumbing.ErrMalformedPack)
			}
			e.baseOffset = entryStart - neg
		case plumbing.REFDeltaObject:
			if _, err := io.ReadFull(byteCounter, e.baseHash[:]); err != nil {
				return nil, plumbing.ZeroHash, fmt.Errorf("%w: truncated ref-delta hash", plumbing.ErrMalformedPack)
			}
		}

		zr, err := zlib.NewReader(byteCounter)
		if err != nil {
			return nil, plumbing.ZeroHash, fmt.Errorf("%w: %v", plumbing.ErrMalformedPack, err)
		}
		content, err := io.ReadAll(zr)
		if err != nil {
			return nil, plumbing.ZeroHash, fmt.Errorf("%w: %v", plumbing.ErrMalformedPack, err)
		}
		zr.Close()
		e.content = content

		offset += int64(byteCounter.n)
		raws = append(raws, e)
	}

	var trailer [20]byte
	if _, err := io.ReadFull(br, trailer[:]); err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("%w: truncated trailer", plumbing.ErrMalformedPack)
	}
	computed := h.Sum(nil)
	if !bytes.Equal(computed, trailer[:]) {
		return nil, plumbing.ZeroHash, plumbing.ErrBadChecksum
	}
	var packHash plumbing.Hash
	copy(packHash[:], trailer[:])

	objs, err := resolveAll(raws, resolve)
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}
	return objs, packHash, nil
}

type countingByteReader struct {
	r io.Reader
	n int64
}

func (c *countingByteReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingByteReader) ReadByte() (byte, error) {
	var b [1]byte
	n, err := c.r.Read(b[:])
	c.n += int64(n)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

type resolved struct {
	typ     plumbing.ObjectType
	content []byte
}

func resolveAll(raws []rawEntry, ext ExternalResolver) ([]Object, error) {
	byOffset := make(map[int64]*resolved, len(raws))
	byHash := make(map[plumbing.Hash]*resolved, len(raws))
	done := make([]bool, len(raws))
	objs := make([]Object, len(raws))

	resolveOne := func(i int) (*resolved, error) {
		e := raws[i]
		switch {
		case e.typ.Valid():
			res := &resolved{typ: e.typ, content: e.content}
			return res, nil
		case e.typ == plumbing.OFSDeltaObject:
			base, ok := byOffset[e.baseOffset]
			if !ok {
				return nil, nil // not ready yet
			}
			content, err := ApplyDelta(base.content, e.content)
			if err != nil {
				return nil, err
			}
			return &resolved{typ: base.typ, content: content}, nil
		case e.typ == plumbing.REFDeltaObject:
			if base, ok := byHash[e.baseHash]; ok {
				content, err := ApplyDelta(base.content, e.content)
				if err != nil {
					return nil, err
				}
				return &resolved{typ: base.typ, content: content}, nil
			}
			if ext != nil {
				if typ, content, ok := ext(e.baseHash); ok {
					out, err := ApplyDelta(content, e.content)
					if err != nil {
						return nil, err
					}
					return &resolved{typ: typ, content: out}, nil
				}
			}
			return nil, nil // not ready yet
		default:
			return nil, fmt.Errorf("%w: unknown pack object type %v", plumbing.ErrMalformedPack, e.typ)
		}
	}

	progress := true
	for progress {
		progress = false
		for i, e := range raws {
			if done[i] {
				continue
			}
			res, err := resolveOne(i)
			if err != nil {
				return nil, err
			}
			if res == nil {
				continue
			}

			hs := plumbing.NewHasher(res.typ, int64(len(res.content)))
			hs.Write(res.content)
			hash := hs.Sum()

			byOffset[e.offset] = res
			byHash[hash] = res
			done[i] = true
			progress = true

			objs[i] = Object{Hash: hash, Type: res.typ, Content: res.content, Offset: e.offset, CRC32: e.crc}
		}
	}

	for i, d := range done {
		if !d {
			return nil, fmt.Errorf("%w: unresolved delta base for object at offset %d", plumbing.ErrMalformedPack, raws[i].offset)
		}
	}

	return objs, nil
}

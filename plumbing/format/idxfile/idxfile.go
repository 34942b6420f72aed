// Package idxfile implements the pack ".idx" version 2 format: a fan-out
// table over the first byte of each hash, a sorted hash table, a CRC-32
// table and an offset table (spec §4.8, "Index format").
package idxfile

import (
	"bufio"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/kirdyuk/govcs/plumbing"
)

var idxMagic = [4]byte{0xff, 0x74, 0x4f, 0x63}

const idxVersion = 2

// Entry is one object's record in the index: its hash, pack offset and
// CRC-32 of its (still compressed) on-disk representation.
type Entry struct {
	Hash   plumbing.Hash
	Offset int64
	CRC32  uint32
}

// Index is a decoded or in-construction pack index.
type Index struct {
	entries  []Entry
	byHash   map[plumbing.Hash]*Entry
	PackHash plumbing.Hash
}

// NewIndex builds an Index from a complete entry set, sorting it by hash as
// the on-disk format requires.
func NewIndex(entries []Entry, packHash plumbing.Hash) *Index {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Hash.Compare(entries[j].Hash[:]) < 0 })
	idx := &Index{entries: entries, byHash: make(map[plumbing.Hash]*Entry, len(entries)), PackHash: packHash}
	for i := range idx.entries {
		idx.byHash[idx.entries[i].Hash] = &idx.entries[i]
	}
	return idx
}

// Entries returns the entries, already sorted by hash.
func (idx *Index) Entries() []Entry { return idx.entries }

// FindOffset looks up the pack offset of h in the in-memory hash-keyed
// entry map.
func (idx *Index) FindOffset(h plumbing.Hash) (int64, bool) {
	e, ok := idx.byHash[h]
	if !ok {
		return 0, false
	}
	return e.Offset, true
}

// FindHashByPrefix resolves an unambiguous hex prefix (spec §4.2, revision
// syntax) against the sorted hash table; returns ok=false if zero or more
// than one entry matches.
func (idx *Index) FindHashByPrefix(prefix string) (plumbing.Hash, bool) {
	var match plumbing.Hash
	count := 0
	for _, e := range idx.entries {
		if len(prefix) <= len(e.Hash.String()) && e.Hash.String()[:len(prefix)] == prefix {
			match = e.Hash
			count++
			if count > 1 {
				return plumbing.ZeroHash, false
			}
		}
	}
	return match, count == 1
}

// Encode writes the version-2 idx format to w.
func Encode(w io.Writer, idx *Index) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(idxMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(idxVersion)); err != nil {
		return err
	}

	var fanout [256]uint32
	for _, e := range idx.entries {
		fanout[e.Hash[0]]++
	}
	var cum uint32
	for i := 0; i < 256; i++ {
		cum += fanout[i]
		fanout[i] = cum
	}
	for _, v := range fanout {
		if err := binary.Write(bw, binary.BigEndian, v); err != nil {
			return err
		}
	}

	h := sha1.New()
	mw := io.MultiWriter(bw, h)

	for _, e := range idx.entries {
		if _, err := mw.Write(e.Hash[:]); err != nil {
			return err
		}
	}
	for _, e := range idx.entries {
		if err := binary.Write(mw, binary.BigEndian, e.CRC32); err != nil {
			return err
		}
	}

	var large []int64
	for _, e := range idx.entries {
		if e.Offset > 0x7fffffff {
			large = append(large, e.Offset)
			idx32 := uint32(0x80000000 | uint32(len(large)-1))
			if err := binary.Write(mw, binary.BigEndian, idx32); err != nil {
				return err
			}
			continue
		}
		if err := binary.Write(mw, binary.BigEndian, uint32(e.Offset)); err != nil {
			return err
		}
	}
	for _, off := range large {
		if err := binary.Write(mw, binary.BigEndian, uint64(off)); err != nil {
			return err
		}
	}

	if _, err := mw.Write(idx.PackHash[:]); err != nil {
		return err
	}

	sum := h.Sum(nil)
	if _, err := bw.Write(sum); err != nil {
		return err
	}

	return bw.Flush()
}

// Decode parses a version-2 idx stream.
func Decode(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", plumbing.ErrMalformedPack, err)
	}
	if magic != idxMagic {
		return nil, fmt.Errorf("%w: not a v2 idx file", plumbing.ErrMalformedPack)
	}

	var version uint32
	if err := binary.Read(br, binary.BigEndian, &version); err != nil || version != idxVersion {
		return nil, fmt.Errorf("%w: unsupported idx version", plumbing.ErrMalformedPack)
	}

	var fanout [256]uint32
	if err := binary.Read(br, binary.BigEndian, &fanout); err != nil {
		return nil, fmt.Errorf("%w: truncated fanout", plumbing.ErrMalformedPack)
	}
	count := int(fanout[255])

	hashes := make([]plumbing.Hash, count)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(br, hashes[i][:]); err != nil {
			return nil, fmt.Errorf("%w: truncated hash table", plumbing.ErrMalformedPack)
		}
	}

	crcs := make([]uint32, count)
	for i := 0; i < count; i++ {
		if err := binary.Read(br, binary.BigEndian, &crcs[i]); err != nil {
			return nil, fmt.Errorf("%w: truncated crc table", plumbing.ErrMalformedPack)
		}
	}

	rawOffsets := make([]uint32, count)
	var largeCount int
	for i := 0; i < count; i++ {
		if err := binary.Read(br, binary.BigEndian, &rawOffsets[i]); err != nil {
			return nil, fmt.Errorf("%w: truncated offset table", plumbing.ErrMalformedPack)
		}
		if rawOffsets[i]&0x80000000 != 0 {
			largeCount++
		}
	}

	large := make([]int64, largeCount)
	for i := 0; i < largeCount; i++ {
		var v uint64
		if err := binary.Read(br, binary.BigEndian, &v); err != nil {
			return nil, fmt.Errorf("%w: truncated large offset table", plumbing.ErrMalformedPack)
		}
		large[i] = int64(v)
	}

	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		var off int64
		if rawOffsets[i]&0x80000000 != 0 {
			off = large[rawOffsets[i]&0x7fffffff]
		} else {
			off = int64(rawOffsets[i])
		}
		entries[i] = Entry{Hash: hashes[i], Offset: off, CRC32: crcs[i]}
	}

	var packHash plumbing.Hash
	if _, err := io.ReadFull(br, packHash[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated pack hash trailer", plumbing.ErrMalformedPack)
	}

	var idxHash plumbing.Hash
	io.ReadFull(br, idxHash[:]) // best-effort; not re-verified here

	idx := &Index{entries: entries, byHash: make(map[plumbing.Hash]*Entry, count), PackHash: packHash}
	for i := range idx.entries {
		idx.byHash[idx.entries[i].Hash] = &idx.entries[i]
	}
	return idx, nil
}

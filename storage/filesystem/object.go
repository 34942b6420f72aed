// Package filesystem implements storage.Storer on top of a real on-disk
// ".git"-style directory (storage/filesystem/dotgit), with loose objects,
// one or more packfiles, refs, packed-refs, the index file and config
// (spec §4.1–§4.3, §6).
package filesystem

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/format/idxfile"
	"github.com/kirdyuk/govcs/plumbing/format/objfile"
	"github.com/kirdyuk/govcs/plumbing/format/packfile"
	"github.com/kirdyuk/govcs/storage"
	"github.com/kirdyuk/govcs/storage/filesystem/dotgit"
)

// ObjectStorage is the object-store half of Storage: it consults loose
// files first, then every known pack, exactly as spec §4.1 describes.
type ObjectStorage struct {
	dir *dotgit.DotGit

	mu        sync.RWMutex
	packIdx   map[string]*idxfile.Index
	packCache map[string][]packfile.Object // fully-resolved contents, id -> objects
}

func NewObjectStorage(dir *dotgit.DotGit) *ObjectStorage {
	return &ObjectStorage{dir: dir, packIdx: make(map[string]*idxfile.Index), packCache: make(map[string][]packfile.Object)}
}

func (s *ObjectStorage) NewEncodedObject() plumbing.EncodedObject { return plumbing.NewMemoryObject() }

// SetEncodedObject writes o as a loose object file (crash-safe: temp
// sibling + rename, per spec §4.1 "Loose storage").
func (s *ObjectStorage) SetEncodedObject(o plumbing.EncodedObject) (plumbing.Hash, error) {
	h := o.Hash()
	if s.dir.HasLooseObject(h) {
		return h, nil
	}

	tmp, finish, err := s.dir.NewLooseObjectWriter()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	ow := objfile.NewWriter(tmp)
	if err := ow.WriteHeader(o.Type(), o.Size()); err != nil {
		tmp.Close()
		return plumbing.ZeroHash, err
	}

	r, err := o.Reader()
	if err != nil {
		tmp.Close()
		return plumbing.ZeroHash, err
	}
	defer r.Close()

	if _, err := io.Copy(ow, r); err != nil {
		tmp.Close()
		return plumbing.ZeroHash, err
	}
	if err := ow.Close(); err != nil {
		return plumbing.ZeroHash, err
	}

	if err := finish(h); err != nil {
		return plumbing.ZeroHash, err
	}
	return h, nil
}

func (s *ObjectStorage) requirePackIndex() error {
	s.mu.RLock()
	loaded := len(s.packIdx)
	s.mu.RUnlock()
	_ = loaded

	ids, err := s.dir.PackIDs()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.packIdx[id]; ok {
			continue
		}
		f, err := s.dir.Reader("objects/pack/pack-" + id + ".idx")
		if err != nil {
			continue
		}
		idx, err := idxfile.Decode(f)
		f.Close()
		if err != nil {
			return err
		}
		s.packIdx[id] = idx
	}
	return nil
}

func (s *ObjectStorage) readFromPack(id string, h plumbing.Hash) (plumbing.ObjectType, []byte, bool, error) {
	s.mu.RLock()
	objs, ok := s.packCache[id]
	s.mu.RUnlock()

	if !ok {
		f, err := s.dir.Reader("objects/pack/pack-" + id + ".pack")
		if err != nil {
			return 0, nil, false, err
		}
		defer f.Close()

		decoded, _, err := packfile.Decode(f, s.externalResolver(id))
		if err != nil {
			return 0, nil, false, err
		}

		s.mu.Lock()
		s.packCache[id] = decoded
		objs = decoded
		s.mu.Unlock()
	}

	for _, o := range objs {
		if o.Hash == h {
			return o.Type, o.Content, true, nil
		}
	}
	return 0, nil, false, nil
}

// externalResolver lets a pack being decoded resolve a thin REF_DELTA base
// either from a loose object or from an already-loaded sibling pack.
func (s *ObjectStorage) externalResolver(skipID string) packfile.ExternalResolver {
	return func(h plumbing.Hash) (plumbing.ObjectType, []byte, bool) {
		if s.dir.HasLooseObject(h) {
			f, err := s.dir.OpenLooseObject(h)
			if err != nil {
				return 0, nil, false
			}
			defer f.Close()
			r, err := objfile.NewReader(f)
			if err != nil {
				return 0, nil, false
			}
			defer r.Close()
			b, err := io.ReadAll(r)
			if err != nil {
				return 0, nil, false
			}
			return r.Type(), b, true
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		for id, objs := range s.packCache {
			if id == skipID {
				continue
			}
			for _, o := range objs {
				if o.Hash == h {
					return o.Type, o.Content, true
				}
			}
		}
		return 0, nil, false
	}
}

// EncodedObject resolves h by trying loose storage then every pack, per
// spec §4.1's back-end ordering.
func (s *ObjectStorage) EncodedObject(t plumbing.ObjectType, h plumbing.Hash) (plumbing.EncodedObject, error) {
	if s.dir.HasLooseObject(h) {
		f, err := s.dir.OpenLooseObject(h)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r, err := objfile.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if t != plumbing.AnyObject && r.Type() != t {
			return nil, plumbing.ErrObjectNotFound
		}
		return memObjFrom(r.Type(), b), nil
	}

	if err := s.requirePackIndex(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.packIdx))
	for id, idx := range s.packIdx {
		if _, ok := idx.FindOffset(h); ok {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range ids {
		typ, content, found, err := s.readFromPack(id, h)
		if err != nil {
			return nil, err
		}
		if found {
			if t != plumbing.AnyObject && typ != t {
				return nil, plumbing.ErrObjectNotFound
			}
			return memObjFrom(typ, content), nil
		}
	}

	return nil, plumbing.ErrObjectNotFound
}

func memObjFrom(t plumbing.ObjectType, content []byte) plumbing.EncodedObject {
	m := plumbing.NewMemoryObject()
	m.SetType(t)
	m.SetContent(content)
	return m
}

func (s *ObjectStorage) HasEncodedObject(h plumbing.Hash) error {
	if s.dir.HasLooseObject(h) {
		return nil
	}
	if err := s.requirePackIndex(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, idx := range s.packIdx {
		if _, ok := idx.FindOffset(h); ok {
			return nil
		}
	}
	return plumbing.ErrObjectNotFound
}

func (s *ObjectStorage) EncodedObjectSize(h plumbing.Hash) (int64, error) {
	o, err := s.EncodedObject(plumbing.AnyObject, h)
	if err != nil {
		return 0, err
	}
	return o.Size(), nil
}

type looseIter struct {
	s      *ObjectStorage
	typ    plumbing.ObjectType
	hashes []plumbing.Hash
	pos    int
}

func (it *looseIter) Next() (plumbing.EncodedObject, error) {
	for it.pos < len(it.hashes) {
		h := it.hashes[it.pos]
		it.pos++
		o, err := it.s.EncodedObject(it.typ, h)
		if err == plumbing.ErrObjectNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	return nil, io.EOF
}

func (it *looseIter) ForEach(cb func(plumbing.EncodedObject) error) error {
	for {
		o, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(o); err != nil {
			return err
		}
	}
}

func (it *looseIter) Close() {}

// ResolvePrefix resolves a hex hash prefix against both loose objects and
// every known packfile index, scanning each linearly (spec §4.2, short-hash
// resolution). Ties between a
// loose object and a packed one favor the loose copy; among packs the
// first match wins. Returns plumbing.ErrInvalidRevision if nothing matches.
func (s *ObjectStorage) ResolvePrefix(prefix string) (plumbing.Hash, error) {
	var found plumbing.Hash
	err := s.dir.IterLooseObjects(func(h plumbing.Hash) error {
		if strings.HasPrefix(h.String(), prefix) {
			found = h
		}
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !found.IsZero() {
		return found, nil
	}

	if err := s.requirePackIndex(); err != nil {
		return plumbing.ZeroHash, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, idx := range s.packIdx {
		if h, ok := idx.FindHashByPrefix(prefix); ok {
			return h, nil
		}
	}
	return plumbing.ZeroHash, plumbing.ErrInvalidRevision
}

// IterEncodedObjects walks every loose object hash on disk; pack contents
// are not enumerated here since this is used mainly for local maintenance
// and reachability-bounded copy (spec §9, Open Question 1), which starts
// from refs rather than a full object scan.
func (s *ObjectStorage) IterEncodedObjects(t plumbing.ObjectType) (storage.EncodedObjectIter, error) {
	var hashes []plumbing.Hash
	err := s.dir.IterLooseObjects(func(h plumbing.Hash) error {
		hashes = append(hashes, h)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &looseIter{s: s, typ: t, hashes: hashes}, nil
}

// --- index & shallow -----------------------------------------------------

func (s *ObjectStorage) SetIndex(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return s.dir.WriteFile("index", b)
}

func (s *ObjectStorage) Index() (io.ReadCloser, error) {
	return s.dir.Reader("index")
}

func (s *ObjectStorage) SetShallow(hashes []plumbing.Hash) error {
	var buf bytes.Buffer
	for _, h := range hashes {
		buf.WriteString(h.String())
		buf.WriteByte('\n')
	}
	return s.dir.WriteFile("shallow", buf.Bytes())
}

func (s *ObjectStorage) Shallow() ([]plumbing.Hash, error) {
	b, err := s.dir.ReadFile("shallow")
	if err != nil {
		return nil, nil
	}
	var out []plumbing.Hash
	for _, line := range splitLines(b) {
		if h, err := plumbing.FromHex(line); err == nil {
			out = append(out, h)
		}
	}
	return out, nil
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				lines = append(lines, string(b[start:i]))
			}
			start = i + 1
		}
	}
	return lines
}

// AddPack encodes entries into a new packfile and its accompanying .idx,
// writing both atomically (spec §4.8). The pack id is the hex of the
// resulting pack checksum, matching git's own pack-<sha1>.pack naming.
func (s *ObjectStorage) AddPack(entries []packfile.ObjectEntry) (plumbing.Hash, error) {
	var buf bytes.Buffer
	packHash, idx, err := packfile.Encode(&buf, entries)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	id := packHash.String()
	pf, idxf, finish, err := s.dir.NewPackFiles(id)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if _, err := pf.Write(buf.Bytes()); err != nil {
		pf.Close()
		idxf.Close()
		return plumbing.ZeroHash, err
	}
	if err := pf.Close(); err != nil {
		return plumbing.ZeroHash, err
	}

	if err := idxfile.Encode(idxf, idx); err != nil {
		idxf.Close()
		return plumbing.ZeroHash, err
	}
	if err := idxf.Close(); err != nil {
		return plumbing.ZeroHash, err
	}

	if err := finish(); err != nil {
		return plumbing.ZeroHash, err
	}

	s.mu.Lock()
	s.packIdx[id] = idx
	s.mu.Unlock()
	return packHash, nil
}

// Package memory implements an in-memory storage.Storer, used for scratch
// repositories and tests.
package memory

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/storage"
)

// Storage is a storage.Storer backed entirely by in-process maps.
type Storage struct {
	mu      sync.RWMutex
	objects map[plumbing.Hash]plumbing.EncodedObject
	refs    map[plumbing.ReferenceName]*plumbing.Reference
	index   []byte
	shallow []plumbing.Hash
	files   map[string][]byte
}

func NewStorage() *Storage {
	return &Storage{
		objects: make(map[plumbing.Hash]plumbing.EncodedObject),
		refs:    make(map[plumbing.ReferenceName]*plumbing.Reference),
	}
}

func (s *Storage) NewEncodedObject() plumbing.EncodedObject { return plumbing.NewMemoryObject() }

func (s *Storage) SetEncodedObject(o plumbing.EncodedObject) (plumbing.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := o.Hash()
	// write is idempotent: content-addressed, so a duplicate write is a no-op.
	if _, ok := s.objects[h]; !ok {
		s.objects[h] = o
	}
	return h, nil
}

func (s *Storage) EncodedObject(t plumbing.ObjectType, h plumbing.Hash) (plumbing.EncodedObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[h]
	if !ok || (t != plumbing.AnyObject && o.Type() != t) {
		return nil, plumbing.ErrObjectNotFound
	}
	return o, nil
}

func (s *Storage) HasEncodedObject(h plumbing.Hash) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[h]; !ok {
		return plumbing.ErrObjectNotFound
	}
	return nil
}

func (s *Storage) EncodedObjectSize(h plumbing.Hash) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[h]
	if !ok {
		return 0, plumbing.ErrObjectNotFound
	}
	return o.Size(), nil
}

type objectIter struct {
	objs []plumbing.EncodedObject
	pos  int
}

func (it *objectIter) Next() (plumbing.EncodedObject, error) {
	if it.pos >= len(it.objs) {
		return nil, io.EOF
	}
	o := it.objs[it.pos]
	it.pos++
	return o, nil
}

func (it *objectIter) ForEach(cb func(plumbing.EncodedObject) error) error {
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

func (it *objectIter) Close() {}

func (s *Storage) IterEncodedObjects(t plumbing.ObjectType) (storage.EncodedObjectIter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var objs []plumbing.EncodedObject
	for _, o := range s.objects {
		if t == plumbing.AnyObject || o.Type() == t {
			objs = append(objs, o)
		}
	}
	return &objectIter{objs: objs}, nil
}

// ResolvePrefix scans every stored object for a hash starting with prefix,
// giving memory.Storage the same short-hash lookup surface as
// storage/filesystem (spec §4.2, short-hash resolution).
func (s *Storage) ResolvePrefix(prefix string) (plumbing.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for h := range s.objects {
		if strings.HasPrefix(h.String(), prefix) {
			return h, nil
		}
	}
	return plumbing.ZeroHash, plumbing.ErrInvalidRevision
}

func (s *Storage) SetReference(r *plumbing.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[r.Name()] = r
	return nil
}

func (s *Storage) CheckAndSetReference(new, old *plumbing.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.refs[new.Name()]
	if old != nil {
		if !exists || cur.Hash() != old.Hash() || cur.Target() != old.Target() {
			return plumbing.ErrRefStale
		}
	} else if exists {
		return plumbing.ErrRefStale
	}
	s.refs[new.Name()] = new
	return nil
}

func (s *Storage) Reference(n plumbing.ReferenceName) (*plumbing.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.refs[n]
	if !ok {
		return nil, plumbing.ErrRefNotFound
	}
	return r, nil
}

func (s *Storage) RemoveReference(n plumbing.ReferenceName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refs, n)
	return nil
}

func (s *Storage) CountLooseRefs() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs), nil
}

type refIter struct {
	refs []*plumbing.Reference
	pos  int
}

func (it *refIter) Next() (*plumbing.Reference, error) {
	if it.pos >= len(it.refs) {
		return nil, io.EOF
	}
	r := it.refs[it.pos]
	it.pos++
	return r, nil
}

func (it *refIter) ForEach(cb func(*plumbing.Reference) error) error {
	for {
		r, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(r); err != nil {
			return err
		}
	}
}

func (it *refIter) Close() {}

func (s *Storage) IterReferences() (storage.ReferenceIter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]*plumbing.Reference, 0, len(s.refs))
	for _, r := range s.refs {
		refs = append(refs, r)
	}
	return &refIter{refs: refs}, nil
}

func (s *Storage) SetIndex(r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.index = b
	return nil
}

func (s *Storage) Index() (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, io.EOF
	}
	return io.NopCloser(bytes.NewReader(s.index)), nil
}

func (s *Storage) SetShallow(h []plumbing.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shallow = h
	return nil
}

func (s *Storage) Shallow() ([]plumbing.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shallow, nil
}

// ReadFile, WriteFile, RemoveFile and HasFile give scratch/test repositories
// the same flat-file bookkeeping surface filesystem.Storage exposes, so
// vcsops and merge can run against either back-end.
func (s *Storage) ReadFile(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.files == nil {
		return nil, os.ErrNotExist
	}
	b, ok := s.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), b...), nil
}

func (s *Storage) WriteFile(name string, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[name] = append([]byte(nil), b...)
	return nil
}

func (s *Storage) RemoveFile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, name)
	return nil
}

func (s *Storage) HasFile(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[name]
	return ok
}

var _ storage.Storer = (*Storage)(nil)

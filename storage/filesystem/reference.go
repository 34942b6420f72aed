package filesystem

import (
	"io"
	"sync"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/storage"
	"github.com/kirdyuk/govcs/storage/filesystem/dotgit"
)

// ReferenceStorage is the refs half of Storage. Resolution tries the loose
// ref file first and falls back to packed-refs (spec §4.2, "Packed-refs"),
// mirroring git's own precedence: a loose file always shadows a packed
// entry for the same name. Updates take a process-local lock; this is not a
// substitute for OS-level file locking against other processes, but it does
// make CheckAndSetReference atomic with respect to this process's own
// concurrent callers.
type ReferenceStorage struct {
	dir *dotgit.DotGit
	mu  sync.Mutex
}

func NewReferenceStorage(dir *dotgit.DotGit) *ReferenceStorage {
	return &ReferenceStorage{dir: dir}
}

func (s *ReferenceStorage) SetReference(r *plumbing.Reference) error {
	return s.CheckAndSetReference(r, nil)
}

// CheckAndSetReference performs a compare-and-swap against the reference's
// current value (spec §4.2, "Atomic ref update"). old == nil requires the
// ref to not currently exist (in either loose or packed-refs form).
func (s *ReferenceStorage) CheckAndSetReference(new, old *plumbing.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old != nil {
		cur, err := s.resolveOneLocked(new.Name())
		if err != nil {
			return err
		}
		if cur.Hash() != old.Hash() || cur.Target() != old.Target() {
			return plumbing.ErrRefStale
		}
	} else if _, err := s.resolveOneLocked(new.Name()); err == nil {
		return plumbing.ErrRefStale
	}

	if err := s.dir.WriteLooseRef(new); err != nil {
		return err
	}

	// The ref may have existed only in packed-refs; now that it has its
	// own loose file the packed entry would be a stale shadow copy.
	packed, err := s.dir.ReadPackedRefs()
	if err != nil {
		return err
	}
	if _, ok := packed[new.Name()]; ok {
		delete(packed, new.Name())
		if err := s.dir.WritePackedRefs(packed); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReferenceStorage) resolveOneLocked(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	r, err := s.dir.ReadLooseRef(name)
	if err == nil {
		return r, nil
	}
	if err != plumbing.ErrRefNotFound {
		return nil, err
	}

	packed, perr := s.dir.ReadPackedRefs()
	if perr != nil {
		return nil, perr
	}
	if h, ok := packed[name]; ok {
		return plumbing.NewHashReference(name, h), nil
	}
	return nil, plumbing.ErrRefNotFound
}

func (s *ReferenceStorage) Reference(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveOneLocked(name)
}

func (s *ReferenceStorage) RemoveReference(name plumbing.ReferenceName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dir.RemoveLooseRef(name); err != nil {
		return err
	}

	packed, err := s.dir.ReadPackedRefs()
	if err != nil {
		return err
	}
	if _, ok := packed[name]; ok {
		delete(packed, name)
		return s.dir.WritePackedRefs(packed)
	}
	return nil
}

func (s *ReferenceStorage) CountLooseRefs() (int, error) {
	n := 0
	err := s.dir.IterLooseRefs(func(*plumbing.Reference) error {
		n++
		return nil
	})
	return n, err
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

// IterReferences enumerates loose refs first, then any packed-refs entries
// not shadowed by a loose file, matching Reference's own precedence.
func (s *ReferenceStorage) IterReferences() (storage.ReferenceIter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[plumbing.ReferenceName]bool)
	var refs []*plumbing.Reference

	err := s.dir.IterLooseRefs(func(r *plumbing.Reference) error {
		seen[r.Name()] = true
		refs = append(refs, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	packed, err := s.dir.ReadPackedRefs()
	if err != nil {
		return nil, err
	}
	for name, h := range packed {
		if seen[name] {
			continue
		}
		refs = append(refs, plumbing.NewHashReference(name, h))
	}

	return &refIter{refs: refs}, nil
}

var _ storage.ReferenceStorer = (*ReferenceStorage)(nil)

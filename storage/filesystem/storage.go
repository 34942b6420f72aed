package filesystem

import (
	"os"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/storage"
	"github.com/kirdyuk/govcs/storage/filesystem/dotgit"
)

// DefaultBranch is the branch HEAD points to in a freshly initialized
// repository.
const DefaultBranch = "main"

func newSymbolicHEAD() *plumbing.Reference {
	return plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(DefaultBranch))
}

// Storage composes the filesystem back-ends into the full storage.Storer a
// Repository needs, rooted at a single on-disk metadata directory (spec
// §4.1–§4.3, §6).
type Storage struct {
	dir *dotgit.DotGit

	*ObjectStorage
	*ReferenceStorage
	*ConfigStorage
}

// NewStorage wraps an existing metadata directory at path without touching
// disk; use Init to create a fresh one.
func NewStorage(path string) *Storage {
	dir := dotgit.New(path)
	return &Storage{
		dir:              dir,
		ObjectStorage:    NewObjectStorage(dir),
		ReferenceStorage: NewReferenceStorage(dir),
		ConfigStorage:    NewConfigStorage(dir),
	}
}

// Init creates the directory skeleton for a fresh repository at path and
// returns its Storage.
func Init(path string) (*Storage, error) {
	if _, err := os.Stat(path); err == nil {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return nil, storage.ErrRepositoryAlreadyExists
		}
	}

	s := NewStorage(path)
	if err := s.dir.Init(); err != nil {
		return nil, err
	}
	head := newSymbolicHEAD()
	if err := s.dir.WriteHead(head); err != nil {
		return nil, err
	}
	return s, nil
}

// Open returns the Storage for an existing metadata directory at path,
// erroring if it does not look initialized.
func Open(path string) (*Storage, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, storage.ErrRepositoryNotExists
	}
	return NewStorage(path), nil
}

func (s *Storage) Path() string { return s.dir.Path }

// ReadFile, WriteFile, RemoveFile and HasFile expose the dotgit layer's
// flat-file helpers for the bookkeeping state vcsops and merge need
// (MERGE_HEAD, rebase-merge/state.json, bisect/session.json, journal.json).
func (s *Storage) ReadFile(name string) ([]byte, error)  { return s.dir.ReadFile(name) }
func (s *Storage) WriteFile(name string, b []byte) error { return s.dir.WriteFile(name, b) }
func (s *Storage) RemoveFile(name string) error          { return s.dir.RemoveFile(name) }
func (s *Storage) HasFile(name string) bool              { return s.dir.HasFile(name) }

var _ storage.Storer = (*Storage)(nil)

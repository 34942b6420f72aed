// Package repository is the facade composing every subsystem (object
// store, refs, index, worktree, ancestry, merge, vcsops, journal) into the
// single handle application code drives: Open/Init/Discover, revision
// parsing and identity resolution (spec §6, "Library API exit contract").
package repository

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kirdyuk/govcs/config"
	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/journal"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage"
	"github.com/kirdyuk/govcs/storage/filesystem"
	"github.com/kirdyuk/govcs/worktree"
)

// DefaultDotDir is the on-disk metadata directory name git itself uses.
// Init/Open/Discover accept any name (spec §6, "byte-exact with Git except
// the directory name").
const DefaultDotDir = ".git"

// fileStorer is satisfied by both storage/filesystem.Storage and
// storage/memory.Storage; it is the flat-file surface vcsops and journal
// need for their resumable-state bookkeeping.
type fileStorer interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, content []byte) error
	RemoveFile(name string) error
	HasFile(name string) bool
}

// Repository is the open handle to a working copy and its metadata
// directory.
type Repository struct {
	root   string // working tree root
	dotDir string // metadata directory path (".git" by default)

	Storage storage.Storer
	Config  *config.RepositoryConfig
	Index   *index.Index
	Worktree *worktree.Worktree
	Journal *journal.Journal
}

// Init creates a fresh repository at root, with metadata under
// filepath.Join(root, dotDir).
func Init(root, dotDir string) (*Repository, error) {
	if dotDir == "" {
		dotDir = DefaultDotDir
	}
	metaPath := filepath.Join(root, dotDir)
	store, err := filesystem.Init(metaPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return open(root, dotDir, store)
}

// Open opens an existing repository at root.
func Open(root, dotDir string) (*Repository, error) {
	if dotDir == "" {
		dotDir = DefaultDotDir
	}
	metaPath := filepath.Join(root, dotDir)
	store, err := filesystem.Open(metaPath)
	if err != nil {
		return nil, err
	}
	return open(root, dotDir, store)
}

// Discover walks upward from startDir looking for a dotDir metadata
// directory, the way git climbs parent directories to find the repo root
// (spec §7, NotARepository).
func Discover(startDir, dotDir string) (*Repository, error) {
	if dotDir == "" {
		dotDir = DefaultDotDir
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		candidate := filepath.Join(dir, dotDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return Open(dir, dotDir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, plumbing.NewError(plumbing.KindNotARepository,
				fmt.Errorf("repository: no %s found above %s", dotDir, startDir))
		}
		dir = parent
	}
}

func open(root, dotDir string, store *filesystem.Storage) (*Repository, error) {
	cfg, err := store.Config()
	if err != nil {
		return nil, err
	}

	idx := index.New()
	if r, err := store.Index(); err == nil {
		defer r.Close()
		if loaded, err := index.Load(r); err == nil {
			idx = loaded
		}
	}

	return &Repository{
		root:     root,
		dotDir:   dotDir,
		Storage:  store,
		Config:   cfg,
		Index:    idx,
		Worktree: worktree.New(root, store, idx),
		Journal:  journal.Open(store),
	}, nil
}

// Root returns the working tree root directory.
func (r *Repository) Root() string { return r.root }

// DotDir returns the metadata directory's absolute path.
func (r *Repository) DotDir() string { return filepath.Join(r.root, r.dotDir) }

// SaveIndex persists the in-memory index back to the store (spec §4.3,
// "Save is atomic").
func (r *Repository) SaveIndex() error {
	var buf bytes.Buffer
	if err := index.Save(&buf, r.Index); err != nil {
		return err
	}
	return r.Storage.SetIndex(&buf)
}

// identity resolves the author or committer signature from GIT_*_NAME /
// GIT_*_EMAIL environment variables, falling back to user.name/user.email
// in config (spec §6, "Environment variables").
func (r *Repository) identity(envPrefix string) object.Signature {
	name := os.Getenv(envPrefix + "_NAME")
	email := os.Getenv(envPrefix + "_EMAIL")
	if name == "" {
		name = r.Config.UserName()
	}
	if email == "" {
		email = r.Config.UserEmail()
	}
	return object.Signature{Name: name, Email: email, When: time.Now()}
}

// Author resolves the commit author identity (GIT_AUTHOR_NAME/EMAIL).
func (r *Repository) Author() object.Signature { return r.identity("GIT_AUTHOR") }

// Committer resolves the commit committer identity (GIT_COMMITTER_NAME/EMAIL).
func (r *Repository) Committer() object.Signature { return r.identity("GIT_COMMITTER") }

// HeadReference returns HEAD exactly as stored: symbolic while attached to
// a branch, a direct hash reference when detached.
func (r *Repository) HeadReference() (*plumbing.Reference, error) {
	return r.Storage.Reference(plumbing.HEAD)
}

// ResolveHead follows HEAD's symbolic chain (bounded depth, spec §4.2) and
// returns the commit it points to.
func (r *Repository) ResolveHead() (*object.Commit, error) {
	h, err := r.resolveSymbolic(plumbing.HEAD, 0)
	if err != nil {
		return nil, err
	}
	return object.GetCommit(r.Storage, h)
}

// HeadBranch returns the branch HEAD points to, and whether HEAD is
// attached to one at all (false means HEAD is detached).
func (r *Repository) HeadBranch() (plumbing.ReferenceName, bool, error) {
	ref, err := r.HeadReference()
	if err != nil {
		return "", false, err
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", false, nil
	}
	return ref.Target(), true, nil
}

func (r *Repository) resolveSymbolic(name plumbing.ReferenceName, depth int) (plumbing.Hash, error) {
	const maxDepth = 5
	if depth > maxDepth {
		return plumbing.ZeroHash, fmt.Errorf("repository: symbolic reference cycle resolving %s", name)
	}
	ref, err := r.Storage.Reference(name)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if ref.Type() == plumbing.HashReference {
		return ref.Hash(), nil
	}
	return r.resolveSymbolic(ref.Target(), depth+1)
}

// fileStore exposes the Repository's flat-file bookkeeping surface for
// vcsops operations (rebase/bisect state, MERGE_HEAD).
func (r *Repository) fileStore() fileStorer {
	return r.Storage.(fileStorer)
}

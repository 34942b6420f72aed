// Package worktree synchronizes the on-disk files with the index and a
// tree, and reports what has changed (spec §4.4, "Working tree").
package worktree

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/filemode"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage"
)

// ignoredDirs is the built-in blacklist status/checkout consult; ignore
// matching beyond this is out of scope (spec §4.4).
var ignoredDirs = map[string]bool{".git": true, "node_modules": true}

// CheckoutMode selects whether the would-lose-changes guard applies.
type CheckoutMode int

const (
	Safe CheckoutMode = iota
	Force
)

// ErrWouldLoseChanges is returned by Checkout in Safe mode when a file's
// worktree content differs from both the current HEAD tree and the target.
var ErrWouldLoseChanges = fmt.Errorf("checkout would lose uncommitted changes")

// Worktree binds a repository's root directory to its object store and
// staging index.
type Worktree struct {
	Root    string
	Storer  storage.EncodedObjectStorer
	Index   *index.Index
}

func New(root string, s storage.EncodedObjectStorer, idx *index.Index) *Worktree {
	return &Worktree{Root: root, Storer: s, Index: idx}
}

// Checkout materializes targetTree on disk and rewrites the index to
// match it (spec §4.4, "Checkout algorithm").
func (w *Worktree) Checkout(targetTree plumbing.Hash, headTree plumbing.Hash, mode CheckoutMode) error {
	target, err := flatten(w.Storer, targetTree)
	if err != nil {
		return err
	}

	current := make(map[string]*index.Entry)
	for _, e := range w.Index.Entries {
		if e.Stage == index.Resolved {
			current[e.Name] = e
		}
	}

	// Safe mode refuses to discard a worktree edit: a tracked file whose
	// on-disk content matches neither its HEAD version nor its target
	// version stops the checkout. A path the target drops is compared
	// against HEAD alone; a file missing from disk never stops it.
	if mode == Safe {
		head, err := flatten(w.Storer, headTree)
		if err != nil {
			return err
		}
		for p := range current {
			he, inHead := head[p]
			te, inTarget := target[p]
			if (inHead && !onDiskDiffers(w.Root, p, he.Hash, w.Storer)) ||
				(inTarget && !onDiskDiffers(w.Root, p, te.Hash, w.Storer)) {
				continue
			}
			if onDiskDiffers(w.Root, p, plumbing.ZeroHash, w.Storer) {
				return fmt.Errorf("%w: %s", ErrWouldLoseChanges, p)
			}
		}
	}

	for p := range current {
		if _, ok := target[p]; !ok {
			os.Remove(filepath.Join(w.Root, filepath.FromSlash(p)))
			w.Index.Remove(p)
		}
	}

	paths := make([]string, 0, len(target))
	for p := range target {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		te := target[p]
		if err := w.writeFile(p, te); err != nil {
			return err
		}
		stat, _ := statFile(filepath.Join(w.Root, filepath.FromSlash(p)))
		w.Index.Add(p, te.Hash, te.Mode, stat)
	}

	return w.CleanEmptyDirs()
}

func (w *Worktree) writeFile(p string, te object.TreeEntry) error {
	full := filepath.Join(w.Root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	b, err := object.GetBlob(w.Storer, te.Hash)
	if err != nil {
		return err
	}
	r, err := b.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	perm := os.FileMode(0o644)
	if te.Mode == filemode.Executable {
		perm = 0o755
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

func flatten(s storage.EncodedObjectStorer, h plumbing.Hash) (map[string]object.TreeEntry, error) {
	if h.IsZero() {
		return map[string]object.TreeEntry{}, nil
	}
	t, err := object.GetTree(s, h)
	if err != nil {
		return nil, err
	}
	return t.Files()
}

func onDiskDiffers(root, p string, want plumbing.Hash, s storage.EncodedObjectStorer) bool {
	full := filepath.Join(root, filepath.FromSlash(p))
	b, err := os.ReadFile(full)
	if err != nil {
		return false
	}
	h := plumbing.NewHasher(plumbing.BlobObject, int64(len(b)))
	h.Write(b)
	return h.Sum() != want
}

// CleanEmptyDirs removes directories left empty by Checkout, stopping at
// the worktree root (spec §4.4: "remove any directories left empty").
func (w *Worktree) CleanEmptyDirs() error {
	var walk func(dir string) (bool, error)
	walk = func(dir string) (bool, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return false, nil
		}
		empty := true
		for _, e := range entries {
			name := e.Name()
			if ignoredDirs[name] {
				empty = false
				continue
			}
			full := filepath.Join(dir, name)
			if e.IsDir() {
				sub, err := walk(full)
				if err != nil {
					return false, err
				}
				if sub {
					os.Remove(full)
				} else {
					empty = false
				}
			} else {
				empty = false
			}
		}
		return empty, nil
	}

	entries, err := os.ReadDir(w.Root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || ignoredDirs[e.Name()] {
			continue
		}
		full := filepath.Join(w.Root, e.Name())
		if empty, err := walk(full); err == nil && empty {
			os.Remove(full)
		}
	}
	return nil
}

// Status is the four-set result described in spec §4.4.
type Status struct {
	Staged    []string
	Modified  []string
	Deleted   []string
	Untracked []string
}

// Status compares HEAD tree, the index, and the working directory.
func (w *Worktree) Status(headTree plumbing.Hash) (*Status, error) {
	diff, err := w.Index.DiffTree(w.Storer, headTree)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Staged: append(append([]string{}, diff.Added...), diff.Modified...),
	}
	sort.Strings(st.Staged)

	onDisk := make(map[string]bool)
	if err := w.walkWorkdir(w.Root, "", onDisk); err != nil {
		return nil, err
	}

	for _, e := range w.Index.Entries {
		if e.Stage != index.Resolved {
			continue
		}
		full := filepath.Join(w.Root, filepath.FromSlash(e.Name))
		info, err := os.Stat(full)
		if os.IsNotExist(err) {
			st.Deleted = append(st.Deleted, e.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		if unchangedByStat(e, info) {
			continue
		}
		if onDiskDiffers(w.Root, e.Name, e.Hash, w.Storer) {
			st.Modified = append(st.Modified, e.Name)
		}
	}

	indexPaths := make(map[string]bool)
	for _, e := range w.Index.Entries {
		indexPaths[e.Name] = true
	}
	for p := range onDisk {
		if !indexPaths[p] {
			st.Untracked = append(st.Untracked, p)
		}
	}

	sort.Strings(st.Modified)
	sort.Strings(st.Deleted)
	sort.Strings(st.Untracked)
	return st, nil
}

func unchangedByStat(e *index.Entry, info os.FileInfo) bool {
	return e.Stat.Size == info.Size() && e.Stat.MTime == info.ModTime().Unix()
}

func (w *Worktree) walkWorkdir(dir, prefix string, out map[string]bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if ignoredDirs[name] {
			continue
		}
		rel := name
		if prefix != "" {
			rel = prefix + "/" + name
		}
		if e.IsDir() {
			if err := w.walkWorkdir(filepath.Join(dir, name), rel, out); err != nil {
				return err
			}
			continue
		}
		out[rel] = true
	}
	return nil
}

func statFile(path string) (index.StatCache, error) {
	info, err := os.Stat(path)
	if err != nil {
		return index.StatCache{}, err
	}
	return index.StatCache{MTime: info.ModTime().Unix(), Size: info.Size()}, nil
}

// Restore overwrites the given worktree paths from the tree source (for
// instance HEAD's tree, to discard worktree edits), per spec §4.4. A path
// absent from source is removed from disk. The index is neither read nor
// changed, so there is no restore-from-index source.
func (w *Worktree) Restore(paths []string, source plumbing.Hash) error {
	files, err := flatten(w.Storer, source)
	if err != nil {
		return err
	}
	for _, p := range paths {
		te, ok := files[p]
		if !ok {
			os.Remove(filepath.Join(w.Root, filepath.FromSlash(p)))
			continue
		}
		if err := w.writeFile(p, te); err != nil {
			return err
		}
	}
	return nil
}

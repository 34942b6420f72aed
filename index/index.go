// Package index implements the staging area (spec §3 "Index", §4.3): an
// ordered path -> (mode, hash, stat-cache) table that becomes the next
// commit's tree via build_tree, and that diffs against both a tree and the
// live working directory.
package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/filemode"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage"
)

// Stage distinguishes a resolved entry from the three sides of an
// in-progress merge (spec §3, "Index" invariant ii).
type Stage uint8

const (
	Resolved Stage = 0
	Base     Stage = 1
	Ours     Stage = 2
	Theirs   Stage = 3
)

// StatCache mirrors enough inode metadata to decide "unchanged" without
// re-hashing file content (spec §3, "Stat-cache").
type StatCache struct {
	CTime int64
	MTime int64
	Dev   uint32
	Ino   uint32
	Size  int64
}

// Entry is one staged path at one stage.
type Entry struct {
	Name  string
	Mode  filemode.FileMode
	Hash  plumbing.Hash
	Stage Stage
	Stat  StatCache
}

// Index is the in-memory staging area. Entries is kept sorted by (Name,
// Stage) at all times; callers should not mutate it directly.
type Index struct {
	Entries []*Entry
}

// New returns an empty Index.
func New() *Index { return &Index{} }

func sortKey(e *Entry) string { return e.Name + "\x00" + string(rune(e.Stage)) }

func (idx *Index) sort() {
	sort.Slice(idx.Entries, func(i, j int) bool { return sortKey(idx.Entries[i]) < sortKey(idx.Entries[j]) })
}

// Add stages path at the resolved stage, replacing any existing resolved
// entry for the same path and clearing any leftover conflict stages.
func (idx *Index) Add(path string, h plumbing.Hash, mode filemode.FileMode, stat StatCache) {
	idx.removeAllStages(path)
	idx.Entries = append(idx.Entries, &Entry{Name: path, Mode: mode, Hash: h, Stage: Resolved, Stat: stat})
	idx.sort()
}

// AddStage stages one side of an unresolved merge (spec §4.6, "Content
// merge"). stage must be Base, Ours or Theirs.
func (idx *Index) AddStage(path string, h plumbing.Hash, mode filemode.FileMode, stage Stage) {
	for _, e := range idx.Entries {
		if e.Name == path && e.Stage == stage {
			e.Hash, e.Mode = h, mode
			return
		}
	}
	idx.Entries = append(idx.Entries, &Entry{Name: path, Mode: mode, Hash: h, Stage: stage})
	idx.sort()
}

// Remove deletes the resolved-stage entry for path, if any.
func (idx *Index) Remove(path string) {
	out := idx.Entries[:0]
	for _, e := range idx.Entries {
		if e.Name == path && e.Stage == Resolved {
			continue
		}
		out = append(out, e)
	}
	idx.Entries = out
}

func (idx *Index) removeAllStages(path string) {
	out := idx.Entries[:0]
	for _, e := range idx.Entries {
		if e.Name == path {
			continue
		}
		out = append(out, e)
	}
	idx.Entries = out
}

// Entry returns the resolved-stage entry for path, if present.
func (idx *Index) Entry(p string) (*Entry, bool) {
	for _, e := range idx.Entries {
		if e.Name == p && e.Stage == Resolved {
			return e, true
		}
	}
	return nil, false
}

// Unresolved returns, sorted, every path that currently carries stage
// 1/2/3 entries (an unfinished merge); it is empty when none do.
func (idx *Index) Unresolved() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range idx.Entries {
		if e.Stage != Resolved && !seen[e.Name] {
			seen[e.Name] = true
			out = append(out, e.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Clear empties the index.
func (idx *Index) Clear() { idx.Entries = nil }

// --- build_tree -----------------------------------------------------------

type treeNode struct {
	files map[string]*Entry
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode { return &treeNode{files: map[string]*Entry{}, dirs: map[string]*treeNode{}} }

// BuildTree groups the resolved-stage entries by directory and recursively
// writes tree objects deepest-first, returning the root tree hash (spec
// §4.3, "build_tree is the critical algorithm").
func (idx *Index) BuildTree(s storage.EncodedObjectStorer) (plumbing.Hash, error) {
	root := newTreeNode()
	for _, e := range idx.Entries {
		if e.Stage != Resolved {
			continue
		}
		insertEntry(root, strings.Split(e.Name, "/"), e)
	}
	return writeTreeNode(s, root)
}

func insertEntry(n *treeNode, parts []string, e *Entry) {
	if len(parts) == 1 {
		n.files[parts[0]] = e
		return
	}
	sub, ok := n.dirs[parts[0]]
	if !ok {
		sub = newTreeNode()
		n.dirs[parts[0]] = sub
	}
	insertEntry(sub, parts[1:], e)
}

func writeTreeNode(s storage.EncodedObjectStorer, n *treeNode) (plumbing.Hash, error) {
	var entries []object.TreeEntry
	for name, e := range n.files {
		entries = append(entries, object.TreeEntry{Name: name, Mode: e.Mode, Hash: e.Hash})
	}
	for name, sub := range n.dirs {
		h, err := writeTreeNode(s, sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h})
	}

	t := object.NewTree(entries)
	eo := s.NewEncodedObject()
	eo.SetType(plumbing.TreeObject)
	if err := t.Encode(eo); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.SetEncodedObject(eo)
}

// LoadTree replaces the index's resolved-stage entries with the flattened
// contents of tree, used to rebuild an index after checkout or reset (spec
// §8 property 3, "Index <-> tree").
func (idx *Index) LoadTree(s storage.EncodedObjectStorer, treeHash plumbing.Hash) error {
	t, err := object.GetTree(s, treeHash)
	if err != nil {
		return err
	}
	files, err := t.Files()
	if err != nil {
		return err
	}

	var resolved []*Entry
	for p, te := range files {
		resolved = append(resolved, &Entry{Name: p, Mode: te.Mode, Hash: te.Hash, Stage: Resolved})
	}

	var kept []*Entry
	for _, e := range idx.Entries {
		if e.Stage != Resolved {
			kept = append(kept, e)
		}
	}
	idx.Entries = append(kept, resolved...)
	idx.sort()
	return nil
}

// --- diff -------------------------------------------------------------------

// TreeDiff is the result of comparing the index against a tree (spec §4.3,
// "diff_tree").
type TreeDiff struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// DiffTree compares the index's resolved entries against treeHash.
func (idx *Index) DiffTree(s storage.EncodedObjectStorer, treeHash plumbing.Hash) (*TreeDiff, error) {
	var files map[string]object.TreeEntry
	if !treeHash.IsZero() {
		t, err := object.GetTree(s, treeHash)
		if err != nil {
			return nil, err
		}
		files, err = t.Files()
		if err != nil {
			return nil, err
		}
	}

	d := &TreeDiff{}
	indexPaths := make(map[string]*Entry)
	for _, e := range idx.Entries {
		if e.Stage == Resolved {
			indexPaths[e.Name] = e
		}
	}

	for p, e := range indexPaths {
		if te, ok := files[p]; ok {
			if te.Hash != e.Hash || te.Mode != e.Mode {
				d.Modified = append(d.Modified, p)
			}
		} else {
			d.Added = append(d.Added, p)
		}
	}
	for p := range files {
		if _, ok := indexPaths[p]; !ok {
			d.Deleted = append(d.Deleted, p)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Deleted)
	return d, nil
}

// --- binary load/save -------------------------------------------------------
//
// A simplified, stable, on-disk encoding: a small fixed header followed by
// one variable-length record per entry. This core does not implement the
// extension blocks (cache-tree, resolve-undo, split-index, ...) a full git
// index may carry; those are a maintenance/performance concern out of this
// system's scope, not part of its correctness contract.

var indexMagic = [4]byte{'D', 'I', 'R', 'C'}

const indexVersion = 2

// Save serializes idx to w (caller is responsible for the atomic
// temp-file-then-rename described in spec §4.3).
func Save(w io.Writer, idx *Index) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(indexMagic[:]); err != nil {
		return err
	}
	if err := writeU32(bw, indexVersion); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(len(idx.Entries))); err != nil {
		return err
	}
	for _, e := range idx.Entries {
		if err := writeEntry(bw, e); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeEntry(w *bufio.Writer, e *Entry) error {
	if err := writeU64(w, uint64(e.Stat.CTime)); err != nil {
		return err
	}
	if err := writeU64(w, uint64(e.Stat.MTime)); err != nil {
		return err
	}
	if err := writeU32(w, e.Stat.Dev); err != nil {
		return err
	}
	if err := writeU32(w, e.Stat.Ino); err != nil {
		return err
	}
	if err := writeU64(w, uint64(e.Stat.Size)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(e.Mode)); err != nil {
		return err
	}
	if _, err := w.Write(e.Hash[:]); err != nil {
		return err
	}
	if err := w.WriteByte(byte(e.Stage)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(e.Name))); err != nil {
		return err
	}
	_, err := w.WriteString(e.Name)
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// Load parses the encoding written by Save.
func Load(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, err
	}
	if magic != indexMagic {
		return nil, fmt.Errorf("index: bad signature")
	}
	version, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if version != indexVersion {
		return nil, fmt.Errorf("index: unsupported version %d", version)
	}
	count, err := readU32(br)
	if err != nil {
		return nil, err
	}

	idx := &Index{}
	for i := uint32(0); i < count; i++ {
		e, err := readEntry(br)
		if err != nil {
			return nil, err
		}
		idx.Entries = append(idx.Entries, e)
	}
	return idx, nil
}

func readEntry(r io.Reader) (*Entry, error) {
	ctime, err := readU64(r)
	if err != nil {
		return nil, err
	}
	mtime, err := readU64(r)
	if err != nil {
		return nil, err
	}
	dev, err := readU32(r)
	if err != nil {
		return nil, err
	}
	ino, err := readU32(r)
	if err != nil {
		return nil, err
	}
	size, err := readU64(r)
	if err != nil {
		return nil, err
	}
	mode, err := readU32(r)
	if err != nil {
		return nil, err
	}
	var h plumbing.Hash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return nil, err
	}
	var stageByte [1]byte
	if _, err := io.ReadFull(r, stageByte[:]); err != nil {
		return nil, err
	}
	nameLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}

	return &Entry{
		Name:  string(name),
		Mode:  filemode.FileMode(mode),
		Hash:  h,
		Stage: Stage(stageByte[0]),
		Stat:  StatCache{CTime: int64(ctime), MTime: int64(mtime), Dev: dev, Ino: ino, Size: int64(size)},
	}, nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

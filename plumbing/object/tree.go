package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/filemode"
	"github.com/kirdyuk/govcs/storage"
)

// TreeEntry is one (mode, name, hash) triple of a Tree (spec §3, "Tree").
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	Hash plumbing.Hash
}

// Tree is an ordered, sorted listing of TreeEntry (spec §3, "Tree").
// Entries are always kept sorted per treeEntrySortName, the same "as if
// directory names had a trailing slash" rule git uses so that, e.g., "lib"
// (a file) sorts before "lib-old" but a directory "lib/" sorts after it.
type Tree struct {
	s       storage.EncodedObjectStorer
	hash    plumbing.Hash
	Entries []TreeEntry
}

// NewTree builds a Tree value from already-sorted-or-not entries; Encode
// will sort them before writing.
func NewTree(entries []TreeEntry) *Tree {
	t := &Tree{Entries: append([]TreeEntry(nil), entries...)}
	sortTreeEntries(t.Entries)
	return t
}

func (t *Tree) ID() plumbing.Hash         { return t.hash }
func (t *Tree) Type() plumbing.ObjectType { return plumbing.TreeObject }

// treeEntrySortName returns the name used for ordering: directory entries
// get a trailing "/" appended so "foo" (blob) < "foo.txt" < "foo/" (tree).
func treeEntrySortName(e TreeEntry) string {
	if e.Mode.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

func sortTreeEntries(entries []TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return treeEntrySortName(entries[i]) < treeEntrySortName(entries[j])
	})
}

// Decode parses the binary tree format: a sequence of
// "<mode-octal-ascii> <name>\0<20-raw-hash-bytes>" records.
func (t *Tree) Decode(o plumbing.EncodedObject) error {
	if o.Type() != plumbing.TreeObject {
		return plumbing.ErrInvalidType
	}
	r, err := o.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	t.hash = o.Hash()
	t.Entries = nil

	br := bufio.NewReader(r)
	for {
		modeAndName, err := br.ReadString(0)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", plumbing.ErrMalformedObject, err)
		}
		modeAndName = strings.TrimSuffix(modeAndName, "\x00")
		sp := strings.IndexByte(modeAndName, ' ')
		if sp == -1 {
			return fmt.Errorf("%w: tree entry missing space", plumbing.ErrMalformedObject)
		}
		mode, err := filemode.New(modeAndName[:sp])
		if err != nil {
			return fmt.Errorf("%w: %v", plumbing.ErrMalformedObject, err)
		}
		name := modeAndName[sp+1:]

		var rawHash [20]byte
		if _, err := io.ReadFull(br, rawHash[:]); err != nil {
			return fmt.Errorf("%w: truncated entry hash", plumbing.ErrMalformedObject)
		}

		var h plumbing.Hash
		copy(h[:], rawHash[:])
		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: mode, Hash: h})
	}

	return nil
}

// Encode serializes the tree's entries, sorted, into o.
func (t *Tree) Encode(o plumbing.EncodedObject) error {
	sortTreeEntries(t.Entries)

	var buf bytes.Buffer
	for _, e := range t.Entries {
		buf.WriteString(e.Mode.String())
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash[:])
	}

	o.SetSize(int64(buf.Len()))
	w, err := o.Writer()
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = w.Write(buf.Bytes())
	if err == nil {
		t.hash = o.Hash()
	}
	return err
}

// Entry returns the entry named name, or false if absent.
func (t *Tree) Entry(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// FindEntry resolves a "/"-separated path through nested trees, returning
// the leaf TreeEntry.
func (t *Tree) FindEntry(path string) (TreeEntry, error) {
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")

	cur := t
	for i, p := range parts {
		e, ok := cur.Entry(p)
		if !ok {
			return TreeEntry{}, plumbing.ErrObjectNotFound
		}
		if i == len(parts)-1 {
			return e, nil
		}
		if !e.Mode.IsDir() {
			return TreeEntry{}, plumbing.ErrObjectNotFound
		}
		sub, err := GetTree(cur.s, e.Hash)
		if err != nil {
			return TreeEntry{}, err
		}
		cur = sub
	}
	return TreeEntry{}, plumbing.ErrObjectNotFound
}

// Files flattens the tree recursively into path -> (mode, blobHash) pairs.
// This is the representation §4.4's checkout algorithm consumes.
func (t *Tree) Files() (map[string]TreeEntry, error) {
	out := make(map[string]TreeEntry)
	if err := t.walk("", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) walk(prefix string, out map[string]TreeEntry) error {
	for _, e := range t.Entries {
		p := e.Name
		if prefix != "" {
			p = prefix + "/" + e.Name
		}
		if e.Mode.IsDir() {
			sub, err := GetTree(t.s, e.Hash)
			if err != nil {
				return err
			}
			if err := sub.walk(p, out); err != nil {
				return err
			}
			continue
		}
		out[p] = TreeEntry{Name: p, Mode: e.Mode, Hash: e.Hash}
	}
	return nil
}

// modeOctal formats m as unpadded octal. Nothing in this module calls it.
func modeOctal(m filemode.FileMode) string { return strconv.FormatUint(uint64(m), 8) }

// Package merge implements three-way tree merge and its textual conflict
// fallback (spec §4.6).
package merge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirdyuk/govcs/ancestry"
	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/filemode"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage"
)

// Status is the outcome variant of a Merge call.
type Status int

const (
	UpToDate Status = iota
	FastForward
	Merged
	Conflict
)

func (s Status) String() string {
	switch s {
	case UpToDate:
		return "up-to-date"
	case FastForward:
		return "fast-forward"
	case Merged:
		return "merged"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Result is returned by Merge.
type Result struct {
	Status    Status
	NewCommit plumbing.Hash
	Conflicts []string
}

// Merge merges theirs into ours (spec §4.6). worktreeRoot receives any
// conflicted files; idx accumulates stage 1/2/3 entries for unresolved
// paths. A successful non-conflicting, non-fast-forward merge leaves the
// new merge commit unwritten to any ref — the caller updates HEAD.
func Merge(s storage.EncodedObjectStorer, idx *index.Index, worktreeRoot string, ours, theirs *object.Commit, oursRef, theirsRef string, author, committer object.Signature, message string) (*Result, error) {
	if ours.Hash == theirs.Hash {
		return &Result{Status: UpToDate}, nil
	}

	isAncestorOursTheirs, err := ancestry.IsAncestor(s, ours, theirs)
	if err != nil {
		return nil, err
	}
	if isAncestorOursTheirs {
		return &Result{Status: FastForward, NewCommit: theirs.Hash}, nil
	}

	isAncestorTheirsOurs, err := ancestry.IsAncestor(s, theirs, ours)
	if err != nil {
		return nil, err
	}
	if isAncestorTheirsOurs {
		return &Result{Status: UpToDate}, nil
	}

	base, err := ancestry.MergeBase(s, ours, theirs)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("merge: no common ancestor between %s and %s", ours.Hash, theirs.Hash)
	}

	parents := []plumbing.Hash{ours.Hash, theirs.Hash}
	return MergeTrees(s, idx, worktreeRoot, base, ours, theirs, parents, oursRef, theirsRef, author, committer, message)
}

// MergeTrees runs the three-way tree merge directly against an explicit
// base and parent list, skipping the fast-forward checks and merge-base
// search Merge does. Rebase uses this with base = parent(step) rather than
// the graph-computed merge-base, and a single-element parents list rather
// than a two-parent merge commit (spec §4.7, "apply to HEAD via three-way
// merge using parent(step) as base").
func MergeTrees(s storage.EncodedObjectStorer, idx *index.Index, worktreeRoot string, base, ours, theirs *object.Commit, parents []plumbing.Hash, oursRef, theirsRef string, author, committer object.Signature, message string) (*Result, error) {
	baseFiles, err := filesOf(s, base.TreeHash)
	if err != nil {
		return nil, err
	}
	oursFiles, err := filesOf(s, ours.TreeHash)
	if err != nil {
		return nil, err
	}
	theirsFiles, err := filesOf(s, theirs.TreeHash)
	if err != nil {
		return nil, err
	}

	paths := unionPaths(baseFiles, oursFiles, theirsFiles)

	var conflicts []string
	merged := make(map[string]object.TreeEntry)

	for _, p := range paths {
		bE, bOK := baseFiles[p]
		oE, oOK := oursFiles[p]
		tE, tOK := theirsFiles[p]

		switch {
		case oOK && tOK && oE.Hash == tE.Hash && oE.Mode == tE.Mode:
			merged[p] = oE
		case bOK && oOK && !tOK && bE.Hash == oE.Hash:
			// deleted in theirs, unchanged in ours: take theirs (delete)
			idx.Remove(p)
		case bOK && tOK && !oOK && bE.Hash == tE.Hash:
			// deleted in ours, unchanged in theirs: keep ours (delete)
			idx.Remove(p)
		case !bOK && oOK && !tOK:
			merged[p] = oE
		case !bOK && !oOK && tOK:
			merged[p] = tE
		case !bOK && oOK && tOK:
			if oE.Hash == tE.Hash {
				merged[p] = oE
				continue
			}
			entry, conflicted, err := contentMerge(s, idx, worktreeRoot, p, nil, oE, tE, oursRef, theirsRef)
			if err != nil {
				return nil, err
			}
			if conflicted {
				conflicts = append(conflicts, p)
				continue
			}
			merged[p] = entry
		case bOK && !oOK && tOK && bE.Hash != tE.Hash:
			conflicts = append(conflicts, p)
			idx.Remove(p)
			idx.AddStage(p, bE.Hash, bE.Mode, index.Base)
			idx.AddStage(p, tE.Hash, tE.Mode, index.Theirs)
		case bOK && oOK && !tOK && bE.Hash != oE.Hash:
			conflicts = append(conflicts, p)
			idx.Remove(p)
			idx.AddStage(p, bE.Hash, bE.Mode, index.Base)
			idx.AddStage(p, oE.Hash, oE.Mode, index.Ours)
		case bOK && oOK && tOK && oE.Hash != bE.Hash && tE.Hash != bE.Hash:
			entry, conflicted, err := contentMerge(s, idx, worktreeRoot, p, &bE, oE, tE, oursRef, theirsRef)
			if err != nil {
				return nil, err
			}
			if conflicted {
				conflicts = append(conflicts, p)
				continue
			}
			merged[p] = entry
		case bOK && oOK && tOK && oE.Hash == bE.Hash:
			merged[p] = tE
		case bOK && oOK && tOK && tE.Hash == bE.Hash:
			merged[p] = oE
		}
	}

	if len(conflicts) > 0 {
		return &Result{Status: Conflict, Conflicts: conflicts}, nil
	}

	for p, e := range merged {
		idx.Add(p, e.Hash, e.Mode, index.StatCache{})
	}

	treeHash, err := idx.BuildTree(s)
	if err != nil {
		return nil, err
	}

	c := object.NewCommit(s, treeHash, parents, author, committer, message)
	eo := s.NewEncodedObject()
	eo.SetType(plumbing.CommitObject)
	if err := c.Encode(eo); err != nil {
		return nil, err
	}
	h, err := s.SetEncodedObject(eo)
	if err != nil {
		return nil, err
	}

	return &Result{Status: Merged, NewCommit: h}, nil
}

func contentMerge(s storage.EncodedObjectStorer, idx *index.Index, root, p string, base *object.TreeEntry, ours, theirs object.TreeEntry, oursRef, theirsRef string) (object.TreeEntry, bool, error) {
	var baseLines []string
	if base != nil {
		b, err := readLines(s, base.Hash)
		if err != nil {
			return object.TreeEntry{}, false, err
		}
		baseLines = b
	}
	oursLines, err := readLines(s, ours.Hash)
	if err != nil {
		return object.TreeEntry{}, false, err
	}
	theirsLines, err := readLines(s, theirs.Hash)
	if err != nil {
		return object.TreeEntry{}, false, err
	}

	result := MergeLines(baseLines, oursLines, theirsLines, "HEAD", theirsRef)
	if !result.Conflicts {
		content := strings.Join(result.Lines, "\n")
		if len(result.Lines) > 0 {
			content += "\n"
		}
		h, err := writeBlob(s, []byte(content))
		if err != nil {
			return object.TreeEntry{}, false, err
		}
		return object.TreeEntry{Name: p, Mode: ours.Mode, Hash: h}, false, nil
	}

	content := strings.Join(result.Lines, "\n") + "\n"
	full := filepath.Join(root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return object.TreeEntry{}, true, err
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return object.TreeEntry{}, true, err
	}

	idx.Remove(p)
	if base != nil {
		idx.AddStage(p, base.Hash, base.Mode, index.Base)
	}
	idx.AddStage(p, ours.Hash, ours.Mode, index.Ours)
	idx.AddStage(p, theirs.Hash, theirs.Mode, index.Theirs)

	return object.TreeEntry{}, true, nil
}

func readLines(s storage.EncodedObjectStorer, h plumbing.Hash) ([]string, error) {
	b, err := object.GetBlob(s, h)
	if err != nil {
		return nil, err
	}
	r, err := b.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(buf), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func writeBlob(s storage.EncodedObjectStorer, content []byte) (plumbing.Hash, error) {
	eo := s.NewEncodedObject()
	eo.SetType(plumbing.BlobObject)
	eo.SetSize(int64(len(content)))
	w, err := eo.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.SetEncodedObject(eo)
}

func filesOf(s storage.EncodedObjectStorer, h plumbing.Hash) (map[string]object.TreeEntry, error) {
	if h.IsZero() {
		return map[string]object.TreeEntry{}, nil
	}
	t, err := object.GetTree(s, h)
	if err != nil {
		return nil, err
	}
	return t.Files()
}

func unionPaths(maps ...map[string]object.TreeEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range maps {
		for p := range m {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// IsFilemodeContentEligible reports whether mode carries file content that
// content-merge can operate on (regular or executable, never a subtree).
func IsFilemodeContentEligible(m filemode.FileMode) bool { return m.IsRegular() }

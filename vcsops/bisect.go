package vcsops

import (
	"encoding/json"
	"fmt"

	"github.com/kirdyuk/govcs/ancestry"
	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage"
	"github.com/kirdyuk/govcs/worktree"
)

// bisectStateFile is the on-disk marker whose presence means a bisect is in
// progress (spec §4.7, §6 "bisect/session.json").
const bisectStateFile = "bisect/session.json"

// Verdict is the outcome a caller reports for the commit currently checked
// out, or that an auto-run test command's exit code is translated into.
type Verdict int

const (
	Good Verdict = iota
	Bad
	Skip
	AbortVerdict
)

// VerdictFromExitCode implements spec §4.7's auto-run exit-code mapping:
// "exit 0 -> good, 1-124 -> bad, 125 -> skip, >=126 -> abort".
func VerdictFromExitCode(code int) Verdict {
	switch {
	case code == 0:
		return Good
	case code >= 1 && code <= 124:
		return Bad
	case code == 125:
		return Skip
	default:
		return AbortVerdict
	}
}

// BisectState is the JSON document persisted under bisectStateFile (spec
// §4.7): the good, bad and skipped sets, the commit under test, the
// original head and branch, the optional focus paths and test command, and
// whether the search has finished. No per-probe step history is kept.
type BisectState struct {
	Good           []plumbing.Hash
	Bad            plumbing.Hash
	Skipped        []plumbing.Hash
	Current        plumbing.Hash
	OriginalHead   plumbing.Hash
	OriginalBranch plumbing.ReferenceName
	FocusPaths     []string
	TestCommand    string
	Completed      bool
}

// Bisect drives the binary-search state machine of spec §4.7.
type Bisect struct {
	s     storage.EncodedObjectStorer
	refs  storage.ReferenceStorer
	store StateStore
	idx   *index.Index
	wt    *worktree.Worktree

	state BisectState
}

// StartBisect begins a bisect between a known-bad commit and a known-good
// ancestor of it, checking out the first candidate (spec §4.7, "Start
// requires one bad and one good ancestor").
func StartBisect(s storage.EncodedObjectStorer, refs storage.ReferenceStorer, store StateStore, idx *index.Index, wt *worktree.Worktree, headName plumbing.ReferenceName, bad, good *object.Commit, focusPaths []string, testCommand string) (*Bisect, error) {
	if store.HasFile(bisectStateFile) {
		return nil, ErrOperationInProgress
	}

	isAncestor, err := ancestry.IsAncestor(s, good, bad)
	if err != nil {
		return nil, err
	}
	if !isAncestor {
		return nil, fmt.Errorf("vcsops: bisect: good commit %s is not an ancestor of bad commit %s", good.Hash, bad.Hash)
	}

	cur, err := refs.Reference(headName)
	if err != nil {
		return nil, err
	}

	b := &Bisect{
		s: s, refs: refs, store: store, idx: idx, wt: wt,
		state: BisectState{
			Good:           []plumbing.Hash{good.Hash},
			Bad:            bad.Hash,
			OriginalHead:   cur.Hash(),
			OriginalBranch: headName,
			FocusPaths:     focusPaths,
			TestCommand:    testCommand,
		},
	}

	if err := b.selectNext(); err != nil {
		return nil, err
	}
	if err := b.save(); err != nil {
		return nil, err
	}
	if !b.state.Current.IsZero() {
		if err := b.checkoutCurrent(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// LoadBisect resumes an in-progress bisect from its persisted state.
func LoadBisect(s storage.EncodedObjectStorer, refs storage.ReferenceStorer, store StateStore, idx *index.Index, wt *worktree.Worktree) (*Bisect, error) {
	if !store.HasFile(bisectStateFile) {
		return nil, ErrNoOperationInProgress
	}
	b, err := store.ReadFile(bisectStateFile)
	if err != nil {
		return nil, err
	}
	var st BisectState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return &Bisect{s: s, refs: refs, store: store, idx: idx, wt: wt, state: st}, nil
}

// Status reports the persisted state of an in-progress bisect.
func (b *Bisect) Status() BisectState { return b.state }

func (b *Bisect) save() error {
	data, err := json.MarshalIndent(b.state, "", "  ")
	if err != nil {
		return err
	}
	return b.store.WriteFile(bisectStateFile, data)
}

// candidates computes commits reachable from bad but not reachable from any
// good commit, optionally filtered to those whose changed-file set
// intersects focus_paths (spec §4.7, "Selection").
func (b *Bisect) candidates() ([]plumbing.Hash, error) {
	bad, err := object.GetCommit(b.s, b.state.Bad)
	if err != nil {
		return nil, err
	}

	excluded := make(map[plumbing.Hash]bool)
	for _, gh := range append(append([]plumbing.Hash{}, b.state.Good...), b.state.Skipped...) {
		good, err := object.GetCommit(b.s, gh)
		if err != nil {
			return nil, err
		}
		if err := markAncestors(b.s, good, excluded); err != nil {
			return nil, err
		}
	}

	var out []plumbing.Hash
	seen := make(map[plumbing.Hash]bool)
	queue := []*object.Commit{bad}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if seen[c.Hash] {
			continue
		}
		seen[c.Hash] = true

		// bad itself is already confirmed bad; testing it again yields no
		// information, so it never re-enters the candidate set even though
		// it's the BFS root.
		if !excluded[c.Hash] && c.Hash != b.state.Bad {
			ok := true
			if len(b.state.FocusPaths) > 0 {
				ok, err = touchesFocusPaths(b.s, c, b.state.FocusPaths)
				if err != nil {
					return nil, err
				}
			}
			if ok {
				out = append(out, c.Hash)
			}
		}

		for _, ph := range c.ParentHashes {
			if seen[ph] || excluded[ph] {
				continue
			}
			p, err := object.GetCommit(b.s, ph)
			if err != nil {
				return nil, err
			}
			queue = append(queue, p)
		}
	}

	// out is already in BFS order from bad, i.e. ascending topological
	// distance, so selectNext's middle element is a true median by count
	// (spec §4.7) rather than an arbitrary hash-ordered pick.
	return out, nil
}

func markAncestors(s storage.EncodedObjectStorer, start *object.Commit, out map[plumbing.Hash]bool) error {
	queue := []*object.Commit{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if out[c.Hash] {
			continue
		}
		out[c.Hash] = true
		for _, ph := range c.ParentHashes {
			p, err := object.GetCommit(s, ph)
			if err != nil {
				return err
			}
			queue = append(queue, p)
		}
	}
	return nil
}

func touchesFocusPaths(s storage.EncodedObjectStorer, c *object.Commit, focus []string) (bool, error) {
	parent := index.New()
	if len(c.ParentHashes) > 0 {
		p, err := object.GetCommit(s, c.ParentHashes[0])
		if err != nil {
			return false, err
		}
		if err := parent.LoadTree(s, p.TreeHash); err != nil {
			return false, err
		}
	}
	d, err := parent.DiffTree(s, c.TreeHash)
	if err != nil {
		return false, err
	}
	for _, p := range append(append(d.Added, d.Modified...), d.Deleted...) {
		for _, f := range focus {
			if p == f || (len(p) > len(f) && p[:len(f)] == f && p[len(f)] == '/') {
				return true, nil
			}
		}
	}
	return false, nil
}

// selectNext re-runs candidate selection and checks out the median, or
// marks the bisect complete when the candidate set is exhausted (spec
// §4.7, "Termination: when the candidate set is empty, current is the
// first-bad-commit").
func (b *Bisect) selectNext() error {
	cands, err := b.candidates()
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		b.state.Current = b.state.Bad
		b.state.Completed = true
		return nil
	}
	b.state.Current = cands[len(cands)/2]
	return nil
}

func (b *Bisect) checkoutCurrent() error {
	c, err := object.GetCommit(b.s, b.state.Current)
	if err != nil {
		return err
	}
	b.idx.Clear()
	if err := b.idx.LoadTree(b.s, c.TreeHash); err != nil {
		return err
	}
	return b.wt.Checkout(c.TreeHash, c.TreeHash, worktree.Force)
}

// Mark records a verdict for the currently checked-out commit and advances
// the bisect (spec §4.7, "mark_good/bad/skip append to the corresponding
// set and re-select").
func (b *Bisect) Mark(v Verdict) error {
	if b.state.Completed {
		return ErrNoOperationInProgress
	}

	switch v {
	case Good:
		b.state.Good = append(b.state.Good, b.state.Current)
	case Bad:
		b.state.Bad = b.state.Current
	case Skip:
		b.state.Skipped = append(b.state.Skipped, b.state.Current)
	case AbortVerdict:
		return b.Abort()
	default:
		return fmt.Errorf("vcsops: unknown bisect verdict %d", v)
	}

	if err := b.selectNext(); err != nil {
		return err
	}
	if b.state.Completed {
		return b.store.RemoveFile(bisectStateFile)
	}
	if err := b.checkoutCurrent(); err != nil {
		return err
	}
	return b.save()
}

// RunAutoStep translates an auto-run test command's exit code into a
// verdict and applies it (spec §4.7, "Auto-run mode").
func (b *Bisect) RunAutoStep(exitCode int) error {
	return b.Mark(VerdictFromExitCode(exitCode))
}

// Abort restores the original HEAD and worktree, then tears down bisect
// state (spec §4.7, "Failure semantics").
func (b *Bisect) Abort() error {
	cur, err := b.refs.Reference(b.state.OriginalBranch)
	if err != nil {
		return err
	}
	restored := plumbing.NewHashReference(b.state.OriginalBranch, b.state.OriginalHead)
	if err := b.refs.CheckAndSetReference(restored, cur); err != nil {
		return err
	}

	orig, err := object.GetCommit(b.s, b.state.OriginalHead)
	if err != nil {
		return err
	}
	b.idx.Clear()
	if err := b.idx.LoadTree(b.s, orig.TreeHash); err != nil {
		return err
	}
	if err := b.wt.Checkout(orig.TreeHash, orig.TreeHash, worktree.Force); err != nil {
		return err
	}

	return b.store.RemoveFile(bisectStateFile)
}

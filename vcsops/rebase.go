package vcsops

import (
	"encoding/json"
	"fmt"

	"github.com/kirdyuk/govcs/ancestry"
	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/merge"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage"
	"github.com/kirdyuk/govcs/worktree"
)

// rebaseStateFile is the on-disk marker whose presence means a rebase is in
// progress (spec §4.7, §6 "rebase-merge/state.json").
const rebaseStateFile = "rebase-merge/state.json"

// RebaseAction is the per-step verb of an (interactive) rebase todo list.
type RebaseAction string

const (
	Pick   RebaseAction = "pick"
	Reword RebaseAction = "reword"
	Edit   RebaseAction = "edit"
	Squash RebaseAction = "squash"
	Fixup  RebaseAction = "fixup"
	Drop   RebaseAction = "drop"
)

// RebaseStep is one entry of the todo list.
type RebaseStep struct {
	Action  RebaseAction
	Commit  plumbing.Hash
	Message string
}

// RebaseState is the JSON document persisted under rebaseStateFile (spec
// §4.7, "State: {onto, original_branch, original_head, steps, cursor,
// interactive}").
type RebaseState struct {
	Onto           plumbing.Hash
	OriginalBranch plumbing.ReferenceName
	OriginalHead   plumbing.Hash
	Head           plumbing.Hash // current tip of the commits rebased so far
	Steps          []RebaseStep
	Cursor         int
	Interactive    bool
}

// Rebase drives the state machine described in spec §4.7. One value is
// constructed per in-progress rebase via StartRebase or LoadRebase.
type Rebase struct {
	s     storage.EncodedObjectStorer
	refs  storage.ReferenceStorer
	store StateStore
	idx   *index.Index
	wt    *worktree.Worktree

	committer object.Signature
	state     RebaseState
}

// StartRebase begins rebasing headName onto upstream: it computes
// merge_base(HEAD, upstream), collects the first-parent commits between the
// base and HEAD as pick steps, moves HEAD to upstream, and persists the
// resulting state (spec §4.7, "Rebase" algorithm).
func StartRebase(s storage.EncodedObjectStorer, refs storage.ReferenceStorer, store StateStore, idx *index.Index, wt *worktree.Worktree, headName plumbing.ReferenceName, upstream *object.Commit, committer object.Signature, interactive bool) (*Rebase, error) {
	if store.HasFile(rebaseStateFile) {
		return nil, ErrOperationInProgress
	}

	cur, err := refs.Reference(headName)
	if err != nil {
		return nil, err
	}
	if cur.Type() != plumbing.HashReference {
		return nil, fmt.Errorf("vcsops: rebase requires a direct reference, got symbolic %s", cur.Name())
	}
	head, err := object.GetCommit(s, cur.Hash())
	if err != nil {
		return nil, err
	}

	base, err := ancestry.MergeBase(s, head, upstream)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("vcsops: rebase: no common ancestor between %s and %s", head.Hash, upstream.Hash)
	}

	steps, err := collectSteps(s, base, head)
	if err != nil {
		return nil, err
	}

	newRef := plumbing.NewHashReference(headName, upstream.Hash)
	if err := refs.CheckAndSetReference(newRef, cur); err != nil {
		return nil, err
	}
	idx.Clear()
	if err := idx.LoadTree(s, upstream.TreeHash); err != nil {
		return nil, err
	}
	if err := wt.Checkout(upstream.TreeHash, upstream.TreeHash, worktree.Force); err != nil {
		return nil, err
	}

	r := &Rebase{
		s: s, refs: refs, store: store, idx: idx, wt: wt,
		committer: committer,
		state: RebaseState{
			Onto:           upstream.Hash,
			OriginalBranch: headName,
			OriginalHead:   head.Hash,
			Head:           upstream.Hash,
			Steps:          steps,
			Cursor:         0,
			Interactive:    interactive,
		},
	}
	if err := r.save(); err != nil {
		return nil, err
	}
	if err := r.Run(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadRebase resumes an in-progress rebase from its persisted state.
func LoadRebase(s storage.EncodedObjectStorer, refs storage.ReferenceStorer, store StateStore, idx *index.Index, wt *worktree.Worktree, committer object.Signature) (*Rebase, error) {
	if !store.HasFile(rebaseStateFile) {
		return nil, ErrNoOperationInProgress
	}
	b, err := store.ReadFile(rebaseStateFile)
	if err != nil {
		return nil, err
	}
	var st RebaseState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return &Rebase{s: s, refs: refs, store: store, idx: idx, wt: wt, committer: committer, state: st}, nil
}

// collectSteps walks first-parent commits from head (inclusive) back to
// base (exclusive), returning them oldest-first as pick steps.
func collectSteps(s storage.EncodedObjectStorer, base, head *object.Commit) ([]RebaseStep, error) {
	var rev []RebaseStep
	cur := head
	for cur != nil && cur.Hash != base.Hash {
		rev = append(rev, RebaseStep{Action: Pick, Commit: cur.Hash, Message: cur.Message})
		if cur.NumParents() == 0 {
			break
		}
		p, err := cur.Parent(0)
		if err != nil {
			return nil, err
		}
		cur = p
	}
	steps := make([]RebaseStep, len(rev))
	for i, step := range rev {
		steps[len(rev)-1-i] = step
	}
	return steps, nil
}

func (r *Rebase) save() error {
	b, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		return err
	}
	return r.store.WriteFile(rebaseStateFile, b)
}

// Status reports the persisted state of an in-progress rebase.
func (r *Rebase) Status() RebaseState { return r.state }

// Run applies steps starting at the cursor until one conflicts, one
// requires an explicit reword/edit handshake, or the list is exhausted. On
// a clean finish it restores the original branch name onto the new tip and
// removes the state file.
func (r *Rebase) Run() error {
	for r.state.Cursor < len(r.state.Steps) {
		step := r.state.Steps[r.state.Cursor]
		if step.Action == Drop {
			r.state.Cursor++
			continue
		}

		stepCommit, err := object.GetCommit(r.s, step.Commit)
		if err != nil {
			return err
		}
		parent, err := stepCommit.Parent(0)
		if err != nil {
			return err
		}
		onto, err := object.GetCommit(r.s, r.state.Head)
		if err != nil {
			return err
		}

		message := step.Message
		switch step.Action {
		case Fixup:
			message = onto.Message
		case Squash:
			message = onto.Message + "\n\n" + step.Message
		}

		res, err := merge.MergeTrees(r.s, r.idx, r.wt.Root, parent, onto, stepCommit,
			[]plumbing.Hash{onto.Hash}, "HEAD", step.Commit.String()[:7],
			stepCommit.Author, r.committer, message)
		if err != nil {
			return err
		}

		if res.Status == merge.Conflict {
			if err := r.save(); err != nil {
				return err
			}
			return nil
		}

		if step.Action == Reword || step.Action == Edit {
			// pause: caller must call Continue(message) to finalize, per
			// the explicit resolve_and_continue handshake (spec §4.7,
			// Open Question 3).
			if err := r.save(); err != nil {
				return err
			}
			return nil
		}

		newCommit, err := object.GetCommit(r.s, res.NewCommit)
		if err != nil {
			return err
		}
		if err := r.wt.Checkout(newCommit.TreeHash, onto.TreeHash, worktree.Force); err != nil {
			return err
		}

		r.state.Head = res.NewCommit
		r.state.Cursor++
		if err := r.save(); err != nil {
			return err
		}
	}

	return r.finish()
}

// Continue finalizes the step the rebase is currently paused on (after the
// caller has resolved conflicts and staged the result, or supplied a new
// message for reword/edit) and resumes Run. message may be empty to keep
// the paused step's existing message.
func (r *Rebase) Continue(message string) error {
	if len(r.idx.Unresolved()) > 0 {
		return ErrUnresolvedConflicts
	}
	if r.state.Cursor >= len(r.state.Steps) {
		return ErrNoOperationInProgress
	}

	step := r.state.Steps[r.state.Cursor]
	if message == "" {
		message = step.Message
	}

	treeHash, err := r.idx.BuildTree(r.s)
	if err != nil {
		return err
	}
	onto, err := object.GetCommit(r.s, r.state.Head)
	if err != nil {
		return err
	}
	stepCommit, err := object.GetCommit(r.s, step.Commit)
	if err != nil {
		return err
	}

	c := object.NewCommit(r.s, treeHash, []plumbing.Hash{onto.Hash}, stepCommit.Author, r.committer, message)
	eo := r.s.NewEncodedObject()
	eo.SetType(plumbing.CommitObject)
	if err := c.Encode(eo); err != nil {
		return err
	}
	h, err := r.s.SetEncodedObject(eo)
	if err != nil {
		return err
	}

	if err := r.wt.Checkout(treeHash, onto.TreeHash, worktree.Force); err != nil {
		return err
	}

	r.state.Head = h
	r.state.Cursor++
	if err := r.save(); err != nil {
		return err
	}
	return r.Run()
}

// Skip drops the currently paused step without creating a commit for it
// and resumes Run.
func (r *Rebase) Skip() error {
	if r.state.Cursor >= len(r.state.Steps) {
		return ErrNoOperationInProgress
	}
	r.state.Cursor++
	r.idx.Clear()
	onto, err := object.GetCommit(r.s, r.state.Head)
	if err != nil {
		return err
	}
	if err := r.idx.LoadTree(r.s, onto.TreeHash); err != nil {
		return err
	}
	if err := r.wt.Checkout(onto.TreeHash, onto.TreeHash, worktree.Force); err != nil {
		return err
	}
	return r.Run()
}

// Abort restores the original branch ref to its pre-rebase commit and
// tears down rebase state (spec §4.7, "Failure semantics").
func (r *Rebase) Abort() error {
	cur, err := r.refs.Reference(r.state.OriginalBranch)
	if err != nil {
		return err
	}
	restored := plumbing.NewHashReference(r.state.OriginalBranch, r.state.OriginalHead)
	if err := r.refs.CheckAndSetReference(restored, cur); err != nil {
		return err
	}

	orig, err := object.GetCommit(r.s, r.state.OriginalHead)
	if err != nil {
		return err
	}
	r.idx.Clear()
	if err := r.idx.LoadTree(r.s, orig.TreeHash); err != nil {
		return err
	}
	if err := r.wt.Checkout(orig.TreeHash, orig.TreeHash, worktree.Force); err != nil {
		return err
	}

	return r.store.RemoveFile(rebaseStateFile)
}

func (r *Rebase) finish() error {
	cur, err := r.refs.Reference(r.state.OriginalBranch)
	if err != nil {
		return err
	}
	final := plumbing.NewHashReference(r.state.OriginalBranch, r.state.Head)
	if err := r.refs.CheckAndSetReference(final, cur); err != nil {
		return err
	}
	return r.store.RemoveFile(rebaseStateFile)
}

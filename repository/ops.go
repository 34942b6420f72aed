package repository

import (
	"bytes"
	"fmt"

	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/internal/trace"
	"github.com/kirdyuk/govcs/journal"
	"github.com/kirdyuk/govcs/merge"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage/filesystem"
	"github.com/kirdyuk/govcs/vcsops"
	"github.com/kirdyuk/govcs/worktree"
)

// snapshot captures the repository position for a journal entry's
// before/after state (spec §3, "Journal entry").
func (r *Repository) snapshot() journal.State {
	var st journal.State
	if h, err := r.resolveSymbolic(plumbing.HEAD, 0); err == nil {
		st.Head = h
	}
	if branch, attached, err := r.HeadBranch(); err == nil && attached {
		st.Branch = branch
	}
	var buf bytes.Buffer
	if err := index.Save(&buf, r.Index); err == nil {
		st.IndexHash = plumbing.SumBytes(buf.Bytes())
	}
	return st
}

// record appends a completed operation to the journal; failures to
// journal are logged nowhere further up since the operation's on-disk
// effect is already durable by this point (spec §5, "Ordering guarantees").
func (r *Repository) record(operation string, args []string, description string, before journal.State, commit plumbing.Hash) error {
	trace.Ops.Printf("%s %v: %s", operation, args, description)
	entry := journal.NewEntry(operation, args, description, before)
	entry.After = r.snapshot()
	entry.CommitHash = commit
	return r.Journal.Append(entry)
}

// Commit builds a tree from the current index, creates a commit on top of
// HEAD (or a root commit if there is no HEAD yet) and advances the current
// branch via CAS (spec §4.1, §4.3).
func (r *Repository) Commit(message string) (plumbing.Hash, error) {
	before := r.snapshot()

	if len(r.Index.Unresolved()) > 0 {
		return plumbing.ZeroHash, vcsops.ErrUnresolvedConflicts
	}

	branch, attached, err := r.HeadBranch()
	if err != nil && !isRefNotFound(err) {
		return plumbing.ZeroHash, err
	}
	if err == nil && !attached {
		return plumbing.ZeroHash, fmt.Errorf("repository: commit requires a branch, HEAD is detached")
	}

	if isRefNotFound(err) {
		// No HEAD at all: fall back to the default branch name Init writes.
		branch = plumbing.NewBranchReferenceName(filesystem.DefaultBranch)
	}

	var parents []plumbing.Hash
	cur, err := r.Storage.Reference(branch)
	if err == nil && cur.Type() == plumbing.HashReference {
		parents = []plumbing.Hash{cur.Hash()}
	} else if !isRefNotFound(err) && err != nil {
		return plumbing.ZeroHash, err
	} else {
		cur = nil
	}

	treeHash, err := r.Index.BuildTree(r.Storage)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	c := object.NewCommit(r.Storage, treeHash, parents, r.Author(), r.Committer(), message)
	eo := r.Storage.NewEncodedObject()
	eo.SetType(plumbing.CommitObject)
	if err := c.Encode(eo); err != nil {
		return plumbing.ZeroHash, err
	}
	h, err := r.Storage.SetEncodedObject(eo)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	newRef := plumbing.NewHashReference(branch, h)
	if err := r.Storage.CheckAndSetReference(newRef, cur); err != nil {
		return plumbing.ZeroHash, err
	}

	if err := r.record("commit", nil, message, before, h); err != nil {
		return h, err
	}
	return h, nil
}

func isRefNotFound(err error) bool {
	return err == plumbing.ErrRefNotFound
}

// CreateBranch creates refs/heads/<name> pointing at at.
func (r *Repository) CreateBranch(name string, at plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), at)
	return r.Storage.CheckAndSetReference(ref, nil)
}

// Checkout switches HEAD to branch and updates the index/worktree to its
// tree (spec §4.4).
func (r *Repository) Checkout(branch plumbing.ReferenceName) error {
	target, err := r.Storage.Reference(branch)
	if err != nil {
		return err
	}
	if target.Type() != plumbing.HashReference {
		return fmt.Errorf("repository: checkout target %s is not a direct reference", branch)
	}
	commit, err := object.GetCommit(r.Storage, target.Hash())
	if err != nil {
		return err
	}

	cur, err := r.Storage.Reference(plumbing.HEAD)
	if err != nil && !isRefNotFound(err) {
		return err
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, branch)
	if err := r.Storage.CheckAndSetReference(head, cur); err != nil {
		return err
	}

	r.Index.Clear()
	if err := r.Index.LoadTree(r.Storage, commit.TreeHash); err != nil {
		return err
	}
	return r.Worktree.Checkout(commit.TreeHash, commit.TreeHash, worktree.Force)
}

// CheckoutDetached points HEAD directly at a commit hash, detaching it
// from any branch.
func (r *Repository) CheckoutDetached(h plumbing.Hash) error {
	commit, err := object.GetCommit(r.Storage, h)
	if err != nil {
		return err
	}
	cur, err := r.Storage.Reference(plumbing.HEAD)
	if err != nil && !isRefNotFound(err) {
		return err
	}
	head := plumbing.NewHashReference(plumbing.HEAD, h)
	if err := r.Storage.CheckAndSetReference(head, cur); err != nil {
		return err
	}
	r.Index.Clear()
	if err := r.Index.LoadTree(r.Storage, commit.TreeHash); err != nil {
		return err
	}
	return r.Worktree.Checkout(commit.TreeHash, commit.TreeHash, worktree.Force)
}

// Merge merges theirs into the current branch (spec §4.6).
func (r *Repository) Merge(theirsRef plumbing.ReferenceName) (*merge.Result, error) {
	before := r.snapshot()

	branch, attached, err := r.HeadBranch()
	if err != nil {
		return nil, err
	}
	if !attached {
		return nil, fmt.Errorf("repository: merge requires a branch, HEAD is detached")
	}

	ours, err := r.ResolveCommit(branch.String())
	if err != nil {
		return nil, err
	}
	theirs, err := r.ResolveCommit(theirsRef.String())
	if err != nil {
		return nil, err
	}

	res, err := merge.Merge(r.Storage, r.Index, r.root, ours, theirs, branch.String(), theirsRef.String(), r.Author(), r.Committer(), "Merge "+theirsRef.Short()+" into "+branch.Short())
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case merge.Conflict:
		// MERGE_HEAD is a flat file per spec §6's on-disk layout, not a ref.
		if err := r.fileStore().WriteFile("MERGE_HEAD", []byte(theirs.Hash.String()+"\n")); err != nil {
			return nil, err
		}
		return res, nil
	case merge.FastForward, merge.Merged:
		cur, err := r.Storage.Reference(branch)
		if err != nil {
			return nil, err
		}
		newRef := plumbing.NewHashReference(branch, res.NewCommit)
		if err := r.Storage.CheckAndSetReference(newRef, cur); err != nil {
			return nil, err
		}
		commit, err := object.GetCommit(r.Storage, res.NewCommit)
		if err != nil {
			return nil, err
		}
		if err := r.Worktree.Checkout(commit.TreeHash, ours.TreeHash, worktree.Force); err != nil {
			return nil, err
		}
	}

	if err := r.record("merge", []string{theirsRef.String()}, "merge "+theirsRef.String(), before, res.NewCommit); err != nil {
		return res, err
	}
	return res, nil
}

// Reset runs vcsops.Reset against the current branch and journals it.
func (r *Repository) Reset(target plumbing.Hash, mode vcsops.ResetMode) error {
	before := r.snapshot()

	branch, attached, err := r.HeadBranch()
	if err != nil {
		return err
	}
	if !attached {
		branch = plumbing.HEAD
	}

	commit, err := object.GetCommit(r.Storage, target)
	if err != nil {
		return err
	}
	if err := vcsops.Reset(r.Storage, r.Storage, r.Index, r.Worktree, branch, commit, mode); err != nil {
		return err
	}
	return r.record("reset", []string{target.String()}, "reset to "+target.String(), before, target)
}

// StartRebase begins replaying the current branch's commits onto upstream.
func (r *Repository) StartRebase(upstream plumbing.Hash, interactive bool) (*vcsops.Rebase, error) {
	branch, attached, err := r.HeadBranch()
	if err != nil {
		return nil, err
	}
	if !attached {
		return nil, fmt.Errorf("repository: rebase requires a branch, HEAD is detached")
	}
	upstreamCommit, err := object.GetCommit(r.Storage, upstream)
	if err != nil {
		return nil, err
	}
	return vcsops.StartRebase(r.Storage, r.Storage, r.fileStore(), r.Index, r.Worktree, branch, upstreamCommit, r.Committer(), interactive)
}

// LoadRebase resumes an in-progress rebase from its persisted state.
func (r *Repository) LoadRebase() (*vcsops.Rebase, error) {
	return vcsops.LoadRebase(r.Storage, r.Storage, r.fileStore(), r.Index, r.Worktree, r.Committer())
}

// StartBisect begins a bisection between bad and good.
func (r *Repository) StartBisect(bad, good plumbing.Hash, focusPaths []string, testCommand string) (*vcsops.Bisect, error) {
	branch, attached, err := r.HeadBranch()
	if err != nil {
		return nil, err
	}
	if !attached {
		branch = plumbing.HEAD
	}
	badCommit, err := object.GetCommit(r.Storage, bad)
	if err != nil {
		return nil, err
	}
	goodCommit, err := object.GetCommit(r.Storage, good)
	if err != nil {
		return nil, err
	}
	return vcsops.StartBisect(r.Storage, r.Storage, r.fileStore(), r.Index, r.Worktree, branch, badCommit, goodCommit, focusPaths, testCommand)
}

// LoadBisect resumes an in-progress bisection from its persisted state.
func (r *Repository) LoadBisect() (*vcsops.Bisect, error) {
	return vcsops.LoadBisect(r.Storage, r.Storage, r.fileStore(), r.Index, r.Worktree)
}

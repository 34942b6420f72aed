// Package vcsops implements the history-rewriting state machines: reset,
// rebase and bisect (spec §4.7). Rebase and bisect persist their state as
// a JSON file in a dedicated directory under the repository's metadata
// directory; presence of that state file is the "operation in progress"
// signal (spec §5). Finishing or aborting removes the file; the directory
// itself is left in place.
package vcsops

import (
	"fmt"

	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage"
	"github.com/kirdyuk/govcs/worktree"
)

// ResetMode selects how much of the repository state Reset touches.
type ResetMode int

const (
	// Soft moves only HEAD.
	Soft ResetMode = iota
	// Mixed moves HEAD and resets the index to the target tree.
	Mixed
	// Hard does Mixed, then also resets the worktree to the target tree.
	Hard
)

// Reset implements spec §4.7 "Reset": soft/mixed/hard, each an atomic
// sub-step sequence with no crash-recovery state of its own.
func Reset(s storage.EncodedObjectStorer, refs storage.ReferenceStorer, idx *index.Index, wt *worktree.Worktree, headName plumbing.ReferenceName, target *object.Commit, mode ResetMode) error {
	cur, err := refs.Reference(headName)
	if err != nil {
		return err
	}
	if cur.Type() != plumbing.HashReference {
		return fmt.Errorf("vcsops: reset requires a direct reference, got symbolic %s", cur.Name())
	}

	newRef := plumbing.NewHashReference(headName, target.Hash)
	if err := refs.CheckAndSetReference(newRef, cur); err != nil {
		return err
	}

	if mode == Soft {
		return nil
	}

	// Hard first checks out against the old index, so files tracked before
	// the reset but absent from the target are removed from disk.
	if mode == Hard {
		if err := wt.Checkout(target.TreeHash, target.TreeHash, worktree.Force); err != nil {
			return err
		}
	}

	idx.Clear()
	if err := idx.LoadTree(s, target.TreeHash); err != nil {
		return err
	}

	if mode == Mixed {
		return nil
	}

	return wt.Checkout(target.TreeHash, target.TreeHash, worktree.Force)
}

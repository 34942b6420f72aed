package vcsops

import "errors"

// StateStore is the flat-file bookkeeping surface both storage back-ends
// expose (filesystem.Storage and storage/memory.Storage), used to persist
// the resumable rebase/bisect state documents (spec §4.7, §5).
type StateStore interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, content []byte) error
	RemoveFile(name string) error
	HasFile(name string) bool
}

// ErrOperationInProgress is returned when starting a rebase/bisect while
// one is already active (spec §5, resumable state directories).
var ErrOperationInProgress = errors.New("vcsops: operation already in progress")

// ErrUnresolvedConflicts is returned by Continue when the index still
// carries stage 1/2/3 entries.
var ErrUnresolvedConflicts = errors.New("vcsops: unresolved conflicts remain")

// ErrNoOperationInProgress is returned by LoadRebase and LoadBisect when no
// matching state file exists, by Rebase.Continue and Rebase.Skip when no
// step is left, and by Bisect.Mark once the search has completed.
var ErrNoOperationInProgress = errors.New("vcsops: no operation in progress")

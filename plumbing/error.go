// Package plumbing implements the core value types shared by every other
// package in this module: object hashes, object type tags, file modes and
// references.
package plumbing

import "errors"

// Sentinel errors returned by the plumbing and storage layers. Higher level
// packages wrap these with fmt.Errorf("%w: ...") so callers can still match
// with errors.Is while getting a human-readable message.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidType    = errors.New("invalid object type")
	ErrMalformedObject = errors.New("malformed object")
	ErrMalformedPack  = errors.New("malformed packfile")
	ErrBadChecksum    = errors.New("checksum mismatch")
	ErrRefNotFound    = errors.New("reference not found")
	ErrRefStale       = errors.New("reference is stale")
	ErrInvalidRevision = errors.New("invalid revision")
	ErrDeltaCmd       = errors.New("wrong delta command")
)

// Kind classifies an error the way callers (CLIs, the web-app) need to pick
// an exit code or a recovery strategy, per the error taxonomy in the design.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotARepository
	KindObjectNotFound
	KindMalformed
	KindRefNotFound
	KindRefStale
	KindInvalidRevision
	KindUncommittedChanges
	KindNothingToCommit
	KindNoCommitsYet
	KindMergeConflict
	KindOperationInProgress
	KindDetachedHead
	KindIO
	KindNetwork
	KindAuth
	KindNotFastForward
)

// GitError is the concrete error value returned across package boundaries.
// It always wraps one of the sentinels above (or a plain error) so that
// errors.Is / errors.Unwrap keep working for callers that only care about
// the sentinel.
type GitError struct {
	kind Kind
	err  error
}

func NewError(kind Kind, err error) *GitError {
	return &GitError{kind: kind, err: err}
}

func (e *GitError) Error() string { return e.err.Error() }
func (e *GitError) Unwrap() error { return e.err }
func (e *GitError) Kind() Kind    { return e.kind }

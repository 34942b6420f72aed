package plumbing

import "strings"

// ReferenceName is the full path of a reference, e.g. "refs/heads/main".
type ReferenceName string

const (
	HEAD       ReferenceName = "HEAD"
	FETCH_HEAD ReferenceName = "FETCH_HEAD"
	MERGE_HEAD ReferenceName = "MERGE_HEAD"

	refHeadPrefix   = "refs/heads/"
	refTagPrefix    = "refs/tags/"
	refRemotePrefix = "refs/remotes/"
)

// NewBranchReferenceName builds the full ref name for a local branch.
func NewBranchReferenceName(name string) ReferenceName {
	return ReferenceName(refHeadPrefix + name)
}

// NewTagReferenceName builds the full ref name for a tag.
func NewTagReferenceName(name string) ReferenceName {
	return ReferenceName(refTagPrefix + name)
}

// NewRemoteReferenceName builds the full ref name for a remote-tracking
// branch under the given remote.
func NewRemoteReferenceName(remote, branch string) ReferenceName {
	return ReferenceName(refRemotePrefix + remote + "/" + branch)
}

// NewRemoteHEADReferenceName builds the symbolic HEAD ref name of a remote.
func NewRemoteHEADReferenceName(remote string) ReferenceName {
	return ReferenceName(refRemotePrefix + remote + "/HEAD")
}

// IsBranch reports whether n is under refs/heads/.
func (n ReferenceName) IsBranch() bool { return strings.HasPrefix(string(n), refHeadPrefix) }

// IsTag reports whether n is under refs/tags/.
func (n ReferenceName) IsTag() bool { return strings.HasPrefix(string(n), refTagPrefix) }

// IsRemote reports whether n is under refs/remotes/.
func (n ReferenceName) IsRemote() bool { return strings.HasPrefix(string(n), refRemotePrefix) }

// Short returns the name with any refs/heads|tags|remotes/ prefix removed.
func (n ReferenceName) Short() string {
	s := string(n)
	for _, prefix := range []string{refHeadPrefix, refTagPrefix, refRemotePrefix} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix)
		}
	}
	return s
}

func (n ReferenceName) String() string { return string(n) }

// ReferenceType distinguishes a direct (hash) reference from a symbolic one.
type ReferenceType int8

const (
	InvalidReference ReferenceType = iota
	HashReference
	SymbolicReference
)

// Reference is a named pointer: either directly to an object hash, or
// symbolically to another reference name (spec §3, "Reference").
type Reference struct {
	typ    ReferenceType
	name   ReferenceName
	hash   Hash
	target ReferenceName
}

// NewHashReference builds a direct reference n -> h.
func NewHashReference(n ReferenceName, h Hash) *Reference {
	return &Reference{typ: HashReference, name: n, hash: h}
}

// NewSymbolicReference builds a symbolic reference n -> target.
func NewSymbolicReference(n, target ReferenceName) *Reference {
	return &Reference{typ: SymbolicReference, name: n, target: target}
}

func (r *Reference) Type() ReferenceType { return r.typ }
func (r *Reference) Name() ReferenceName { return r.name }
func (r *Reference) Hash() Hash          { return r.hash }
func (r *Reference) Target() ReferenceName { return r.target }

func (r *Reference) String() string {
	switch r.typ {
	case HashReference:
		return r.hash.String()
	case SymbolicReference:
		return "ref: " + string(r.target)
	default:
		return ""
	}
}

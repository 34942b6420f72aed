// Package filemode defines the five tree entry modes git recognizes
// (spec §3, "Tree").
package filemode

import (
	"fmt"
	"strconv"
)

// FileMode represents the unix-style mode bits stored for a tree entry.
type FileMode uint32

const (
	Empty      FileMode = 0
	Dir        FileMode = 0040000
	Regular    FileMode = 0100644
	Deprecated FileMode = 0100664
	Executable FileMode = 0100755
	Symlink    FileMode = 0120000
	Submodule  FileMode = 0160000
)

// New parses the octal string representation of a mode as found in a tree
// object or index entry.
func New(s string) (FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return Empty, fmt.Errorf("malformed mode %q: %w", s, err)
	}
	return FileMode(v), nil
}

// String returns the canonical six-digit octal representation git uses in
// tree objects ("40000" is written without the leading zero, matching
// git's own tree encoding quirk).
func (m FileMode) String() string {
	if m == Dir {
		return "40000"
	}
	return fmt.Sprintf("%06o", uint32(m))
}

// IsRegular reports whether m is a file content mode: Regular, Executable
// or the legacy Deprecated (100664) mode.
func (m FileMode) IsRegular() bool { return m == Regular || m == Executable || m == Deprecated }

// IsDir reports whether m is a subtree entry.
func (m FileMode) IsDir() bool { return m == Dir }

// IsSymlink reports whether m denotes a symbolic link.
func (m FileMode) IsSymlink() bool { return m == Symlink }

// IsSubmodule reports whether m denotes a gitlink (submodule) entry.
func (m FileMode) IsSubmodule() bool { return m == Submodule }

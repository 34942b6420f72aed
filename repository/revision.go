package repository

import (
	"strconv"
	"strings"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/object"
)

// ResolveRevision parses and resolves a revision expression: a ref name
// (short or full), an object hash (full or ≥4-hex unambiguous prefix), or
// either suffixed with `~N` (first-parent N times) or `^`/`^N` (the first
// or Nth parent) (spec §4.2, "Revision syntax").
func (r *Repository) ResolveRevision(rev string) (plumbing.Hash, error) {
	base, ops, err := splitSuffixes(rev)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	h, err := r.resolveBase(base)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	for _, op := range ops {
		c, err := object.GetCommit(r.Storage, h)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if op.tilde {
			for i := 0; i < op.n; i++ {
				c, err = c.Parent(0)
				if err != nil {
					return plumbing.ZeroHash, err
				}
			}
		} else {
			idx := op.n - 1
			if op.n == 0 {
				idx = 0 // "^0" is treated like "^": the first parent
			}
			c, err = c.Parent(idx)
			if err != nil {
				return plumbing.ZeroHash, err
			}
		}
		h = c.Hash
	}

	return h, nil
}

// ResolveCommit is ResolveRevision followed by decoding the commit object.
func (r *Repository) ResolveCommit(rev string) (*object.Commit, error) {
	h, err := r.ResolveRevision(rev)
	if err != nil {
		return nil, err
	}
	return object.GetCommit(r.Storage, h)
}

type suffixOp struct {
	tilde bool // true: ~N, false: ^ or ^N
	n     int
}

// splitSuffixes peels `~N` and `^`/`^N` suffixes off the end of rev,
// returning them in written (left-to-right) order, the order they apply in.
func splitSuffixes(rev string) (base string, ops []suffixOp, err error) {
	var reversed []suffixOp
	for {
		switch {
		case strings.HasSuffix(rev, "^"):
			reversed = append(reversed, suffixOp{tilde: false, n: 1})
			rev = rev[:len(rev)-1]
		case hasCaretDigitSuffix(rev):
			i := strings.LastIndexByte(rev, '^')
			n, convErr := strconv.Atoi(rev[i+1:])
			if convErr != nil {
				return "", nil, plumbing.ErrInvalidRevision
			}
			reversed = append(reversed, suffixOp{tilde: false, n: n})
			rev = rev[:i]
		case hasTildeDigitSuffix(rev):
			i := strings.LastIndexByte(rev, '~')
			n, convErr := strconv.Atoi(rev[i+1:])
			if convErr != nil {
				return "", nil, plumbing.ErrInvalidRevision
			}
			reversed = append(reversed, suffixOp{tilde: true, n: n})
			rev = rev[:i]
		default:
			for i := len(reversed) - 1; i >= 0; i-- {
				ops = append(ops, reversed[i])
			}
			return rev, ops, nil
		}
	}
}

func hasCaretDigitSuffix(s string) bool {
	i := strings.LastIndexByte(s, '^')
	return i != -1 && i < len(s)-1 && isAllDigits(s[i+1:])
}

func hasTildeDigitSuffix(s string) bool {
	i := strings.LastIndexByte(s, '~')
	return i != -1 && i < len(s)-1 && isAllDigits(s[i+1:])
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// resolveBase resolves a bare ref name or hash/prefix, with no ~/^ suffix.
func (r *Repository) resolveBase(name string) (plumbing.Hash, error) {
	if name == "HEAD" || name == "FETCH_HEAD" {
		return r.resolveSymbolic(plumbing.ReferenceName(name), 0)
	}

	for _, candidate := range refNameCandidates(name) {
		if h, err := r.resolveSymbolic(candidate, 0); err == nil {
			return h, nil
		}
	}

	if plumbing.IsHash(name) {
		return plumbing.FromHex(name)
	}
	if len(name) >= 4 && isHexPrefix(name) {
		if resolver, ok := r.Storage.(interface {
			ResolvePrefix(string) (plumbing.Hash, error)
		}); ok {
			return resolver.ResolvePrefix(name)
		}
	}

	return plumbing.ZeroHash, plumbing.ErrInvalidRevision
}

// refNameCandidates expands a short name into the lookup order spec §4.2
// defines: exact (if already under refs/), then heads, tags, remote HEAD,
// remote branch.
func refNameCandidates(name string) []plumbing.ReferenceName {
	if strings.HasPrefix(name, "refs/") {
		return []plumbing.ReferenceName{plumbing.ReferenceName(name)}
	}
	return []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(name),
		plumbing.NewTagReferenceName(name),
		plumbing.NewRemoteHEADReferenceName(name),
		plumbing.ReferenceName("refs/remotes/" + name),
	}
}

func isHexPrefix(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

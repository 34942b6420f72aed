// Package ancestry implements reachability queries over the commit DAG:
// topological walks, merge-base, is-ancestor and counting (spec §4.5).
package ancestry

import (
	"io"

	gods "github.com/emirpasic/gods/lists/arraylist"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage"
)

// Walk returns an iterator over commits reachable from start, in
// first-parent order, stopping after limit commits if limit > 0.
func Walk(s storage.EncodedObjectStorer, start *object.Commit, limit int) object.CommitIter {
	return &firstParentIter{s: s, cur: start, remaining: limit}
}

type firstParentIter struct {
	s         storage.EncodedObjectStorer
	cur       *object.Commit
	remaining int
	done      bool
}

func (w *firstParentIter) Next() (*object.Commit, error) {
	if w.done || w.cur == nil {
		return nil, io.EOF
	}
	if w.remaining > 0 {
		w.remaining--
		if w.remaining == 0 {
			defer func() { w.done = true }()
		}
	}
	c := w.cur
	if c.NumParents() > 0 {
		p, err := c.Parent(0)
		if err != nil {
			return nil, err
		}
		w.cur = p
	} else {
		w.cur = nil
	}
	return c, nil
}

func (w *firstParentIter) ForEach(cb func(*object.Commit) error) error {
	for {
		c, err := w.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(c); err != nil {
			return err
		}
	}
}

func (w *firstParentIter) Close() {}

// ancestorSet walks every parent edge of start (bounded reachability, not
// just first-parent) and returns the set of visited commit hashes.
func ancestorSet(s storage.EncodedObjectStorer, start *object.Commit) (map[plumbing.Hash]bool, error) {
	seen := make(map[plumbing.Hash]bool)
	queue := gods.New()
	queue.Add(start)
	seen[start.Hash] = true

	for queue.Size() > 0 {
		v, _ := queue.Get(0)
		queue.Remove(0)
		c := v.(*object.Commit)

		for _, ph := range c.ParentHashes {
			if seen[ph] {
				continue
			}
			seen[ph] = true
			p, err := object.GetCommit(s, ph)
			if err != nil {
				return nil, err
			}
			queue.Add(p)
		}
	}
	return seen, nil
}

// MergeBase finds a lowest common ancestor of a and b via two-colored BFS:
// first color every ancestor of a, then BFS from b and return the first
// commit already colored. Criss-cross histories have multiple minimal
// bases; this returns the first one discovered, deterministically, per
// spec §4.5 and Open Question 2 — it is the caller's job to layer a
// recursive merge if canonical resolution is required.
func MergeBase(s storage.EncodedObjectStorer, a, b *object.Commit) (*object.Commit, error) {
	aSet, err := ancestorSet(s, a)
	if err != nil {
		return nil, err
	}

	if aSet[b.Hash] {
		return b, nil
	}

	seen := make(map[plumbing.Hash]bool)
	queue := gods.New()
	queue.Add(b)
	seen[b.Hash] = true

	for queue.Size() > 0 {
		v, _ := queue.Get(0)
		queue.Remove(0)
		c := v.(*object.Commit)

		if aSet[c.Hash] {
			return c, nil
		}

		for _, ph := range c.ParentHashes {
			if seen[ph] {
				continue
			}
			seen[ph] = true
			p, err := object.GetCommit(s, ph)
			if err != nil {
				return nil, err
			}
			queue.Add(p)
		}
	}
	return nil, nil
}

// IsAncestor reports whether a is reachable from b by walking parent edges.
func IsAncestor(s storage.EncodedObjectStorer, a, b *object.Commit) (bool, error) {
	if a.Hash == b.Hash {
		return true, nil
	}
	seen, err := ancestorSet(s, b)
	if err != nil {
		return false, err
	}
	return seen[a.Hash], nil
}

// CountBetween counts commits reachable from to (first-parent) down to but
// excluding from, stopping at from.
func CountBetween(s storage.EncodedObjectStorer, from, to *object.Commit) (int, error) {
	count := 0
	cur := to
	for cur != nil && cur.Hash != from.Hash {
		count++
		if cur.NumParents() == 0 {
			break
		}
		p, err := cur.Parent(0)
		if err != nil {
			return 0, err
		}
		cur = p
	}
	return count, nil
}

package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/storage"
)

// Commit is a single point in history: a tree snapshot, its parents,
// authorship and a message (spec §3, "Commit").
type Commit struct {
	s storage.EncodedObjectStorer

	Hash         plumbing.Hash
	Author       Signature
	Committer    Signature
	Message      string
	TreeHash     plumbing.Hash
	ParentHashes []plumbing.Hash
}

func (c *Commit) ID() plumbing.Hash         { return c.Hash }
func (c *Commit) Type() plumbing.ObjectType { return plumbing.CommitObject }

// NumParents returns len(ParentHashes): 0 for a root commit, 1 for a
// linear commit, >=2 for a merge commit.
func (c *Commit) NumParents() int { return len(c.ParentHashes) }

// Tree decodes and returns the commit's tree.
func (c *Commit) Tree() (*Tree, error) { return GetTree(c.s, c.TreeHash) }

// Parent decodes and returns the i'th parent commit.
func (c *Commit) Parent(i int) (*Commit, error) {
	if i < 0 || i >= len(c.ParentHashes) {
		return nil, plumbing.ErrObjectNotFound
	}
	return GetCommit(c.s, c.ParentHashes[i])
}

// Parents returns a CommitIter over all parents in order.
func (c *Commit) Parents() CommitIter {
	return NewCommitIter(c.s, NewObjectLookupIter(c.s, plumbing.CommitObject, c.ParentHashes))
}

// Decode parses the commit wire format:
//
//	tree <hash>\n(parent <hash>\n)*author ...\ncommitter ...\n\n<message>
func (c *Commit) Decode(o plumbing.EncodedObject) error {
	if o.Type() != plumbing.CommitObject {
		return plumbing.ErrInvalidType
	}
	r, err := o.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	c.Hash = o.Hash()
	c.ParentHashes = nil

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("%w: %v", plumbing.ErrMalformedObject, err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			break
		}

		sp := strings.IndexByte(line, ' ')
		if sp == -1 {
			return fmt.Errorf("%w: malformed header line %q", plumbing.ErrMalformedObject, line)
		}
		key, value := line[:sp], line[sp+1:]

		switch key {
		case "tree":
			h, err := plumbing.FromHex(value)
			if err != nil {
				return fmt.Errorf("%w: bad tree hash", plumbing.ErrMalformedObject)
			}
			c.TreeHash = h
		case "parent":
			h, err := plumbing.FromHex(value)
			if err != nil {
				return fmt.Errorf("%w: bad parent hash", plumbing.ErrMalformedObject)
			}
			c.ParentHashes = append(c.ParentHashes, h)
		case "author":
			c.Author.Decode([]byte(value))
		case "committer":
			c.Committer.Decode([]byte(value))
		}

		if err == io.EOF {
			break
		}
	}

	msg, err := io.ReadAll(br)
	if err != nil {
		return err
	}
	c.Message = string(msg)
	return nil
}

// Encode serializes the commit in the canonical order: tree, parents (in
// order), author, committer, a blank line, then the message.
func (c *Commit) Encode(o plumbing.EncodedObject) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash.String())
	for _, p := range c.ParentHashes {
		fmt.Fprintf(&buf, "parent %s\n", p.String())
	}
	buf.WriteString("author ")
	c.Author.Encode(&buf)
	buf.WriteByte('\n')
	buf.WriteString("committer ")
	c.Committer.Encode(&buf)
	buf.WriteByte('\n')
	buf.WriteByte('\n')
	buf.WriteString(c.Message)

	o.SetSize(int64(buf.Len()))
	w, err := o.Writer()
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = w.Write(buf.Bytes())
	if err == nil {
		c.Hash = o.Hash()
	}
	return err
}

// CommitIter iterates over commits.
type CommitIter interface {
	Next() (*Commit, error)
	ForEach(func(*Commit) error) error
	Close()
}

type objectLookupIter struct {
	s      storage.EncodedObjectStorer
	typ    plumbing.ObjectType
	hashes []plumbing.Hash
	pos    int
}

// NewObjectLookupIter returns an iterator that decodes each hash on demand,
// mirroring go-git's storer.NewEncodedObjectLookupIter.
func NewObjectLookupIter(s storage.EncodedObjectStorer, t plumbing.ObjectType, hashes []plumbing.Hash) *objectLookupIter {
	return &objectLookupIter{s: s, typ: t, hashes: hashes}
}

func (it *objectLookupIter) Next() (plumbing.EncodedObject, error) {
	if it.pos >= len(it.hashes) {
		return nil, io.EOF
	}
	h := it.hashes[it.pos]
	it.pos++
	return it.s.EncodedObject(it.typ, h)
}

type commitIter struct {
	s    storage.EncodedObjectStorer
	iter *objectLookupIter
}

// NewCommitIter wraps an EncodedObject lookup iterator as a CommitIter.
func NewCommitIter(s storage.EncodedObjectStorer, iter *objectLookupIter) CommitIter {
	return &commitIter{s: s, iter: iter}
}

func (it *commitIter) Next() (*Commit, error) {
	eo, err := it.iter.Next()
	if err != nil {
		return nil, err
	}
	c := &Commit{s: it.s}
	if err := c.Decode(eo); err != nil {
		return nil, err
	}
	return c, nil
}

func (it *commitIter) ForEach(cb func(*Commit) error) error {
	for {
		c, err := it.Next()
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

func (it *commitIter) Close() {}

// NewCommit builds a Commit value ready to be encoded; s is the store used
// to resolve Tree()/Parent() afterwards.
func NewCommit(s storage.EncodedObjectStorer, tree plumbing.Hash, parents []plumbing.Hash, author, committer Signature, message string) *Commit {
	return &Commit{
		s:            s,
		TreeHash:     tree,
		ParentHashes: parents,
		Author:       author,
		Committer:    committer,
		Message:      message,
	}
}

package object

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/filemode"
	"github.com/kirdyuk/govcs/storage/memory"
)

type ObjectSuite struct {
	suite.Suite
	store *memory.Storage
}

func TestObjectSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ObjectSuite))
}

func (s *ObjectSuite) SetupTest() {
	s.store = memory.NewStorage()
}

func (s *ObjectSuite) writeBlob(content []byte) plumbing.Hash {
	h, err := WriteObject(s.store, NewBlob(content))
	s.Require().NoError(err)
	return h
}

func (s *ObjectSuite) sig() Signature {
	return Signature{Name: "Ada Lovelace", Email: "ada@example.com", When: time.Unix(1700000000, 0).UTC()}
}

func (s *ObjectSuite) TestBlobRoundTrip() {
	h := s.writeBlob([]byte("hello, world"))

	b, err := GetBlob(s.store, h)
	s.Require().NoError(err)
	s.Equal(h, b.ID())
	s.Equal(plumbing.BlobObject, b.Type())
	s.Equal(int64(12), b.Size())

	r, err := b.Reader()
	s.Require().NoError(err)
	defer r.Close()
	got, err := io.ReadAll(r)
	s.Require().NoError(err)
	s.Equal("hello, world", string(got))
}

func (s *ObjectSuite) TestTreeRoundTrip() {
	blobHash := s.writeBlob([]byte("content"))
	tree := NewTree([]TreeEntry{
		{Name: "b.txt", Mode: filemode.Regular, Hash: blobHash},
		{Name: "a.txt", Mode: filemode.Regular, Hash: blobHash},
	})
	h, err := WriteObject(s.store, tree)
	s.Require().NoError(err)

	got, err := GetTree(s.store, h)
	s.Require().NoError(err)
	s.Require().Len(got.Entries, 2)
	// Encode sorts entries, so decoding back must preserve that order.
	s.Equal("a.txt", got.Entries[0].Name)
	s.Equal("b.txt", got.Entries[1].Name)

	e, ok := got.Entry("a.txt")
	s.Require().True(ok)
	s.Equal(blobHash, e.Hash)
}

func (s *ObjectSuite) TestTreeSortsDirectoryAfterFileWithSameNamePrefix() {
	blobHash := s.writeBlob([]byte("x"))
	tree := NewTree([]TreeEntry{
		{Name: "lib", Mode: filemode.Dir, Hash: blobHash},
		{Name: "lib-old", Mode: filemode.Regular, Hash: blobHash},
	})
	h, err := WriteObject(s.store, tree)
	s.Require().NoError(err)

	got, err := GetTree(s.store, h)
	s.Require().NoError(err)
	s.Equal("lib-old", got.Entries[0].Name)
	s.Equal("lib", got.Entries[1].Name)
}

func (s *ObjectSuite) TestTreeFilesFlattensNestedDirectories() {
	fileHash := s.writeBlob([]byte("x"))
	subTree := NewTree([]TreeEntry{{Name: "nested.txt", Mode: filemode.Regular, Hash: fileHash}})
	subHash, err := WriteObject(s.store, subTree)
	s.Require().NoError(err)

	root := NewTree([]TreeEntry{
		{Name: "top.txt", Mode: filemode.Regular, Hash: fileHash},
		{Name: "dir", Mode: filemode.Dir, Hash: subHash},
	})
	rootHash, err := WriteObject(s.store, root)
	s.Require().NoError(err)

	got, err := GetTree(s.store, rootHash)
	s.Require().NoError(err)
	files, err := got.Files()
	s.Require().NoError(err)
	s.Contains(files, "top.txt")
	s.Contains(files, "dir/nested.txt")
}

func (s *ObjectSuite) TestCommitRoundTrip() {
	blobHash := s.writeBlob([]byte("x"))
	tree := NewTree([]TreeEntry{{Name: "a.txt", Mode: filemode.Regular, Hash: blobHash}})
	treeHash, err := WriteObject(s.store, tree)
	s.Require().NoError(err)

	parent := NewCommit(s.store, treeHash, nil, s.sig(), s.sig(), "root commit\n")
	parentHash, err := WriteObject(s.store, parent)
	s.Require().NoError(err)

	c := NewCommit(s.store, treeHash, []plumbing.Hash{parentHash}, s.sig(), s.sig(), "second commit\n")
	h, err := WriteObject(s.store, c)
	s.Require().NoError(err)

	got, err := GetCommit(s.store, h)
	s.Require().NoError(err)
	s.Equal(treeHash, got.TreeHash)
	s.Equal([]plumbing.Hash{parentHash}, got.ParentHashes)
	s.Equal(1, got.NumParents())
	s.Equal("second commit\n", got.Message)
	s.Equal("Ada Lovelace", got.Author.Name)
	s.Equal("ada@example.com", got.Author.Email)
	s.True(got.Author.When.Equal(s.sig().When))

	p, err := got.Parent(0)
	s.Require().NoError(err)
	s.Equal(parentHash, p.Hash)
}

func (s *ObjectSuite) TestCommitParentsIteratesInOrder() {
	treeHash, err := WriteObject(s.store, NewTree(nil))
	s.Require().NoError(err)

	p1 := NewCommit(s.store, treeHash, nil, s.sig(), s.sig(), "p1")
	p1Hash, err := WriteObject(s.store, p1)
	s.Require().NoError(err)
	p2 := NewCommit(s.store, treeHash, nil, s.sig(), s.sig(), "p2")
	p2Hash, err := WriteObject(s.store, p2)
	s.Require().NoError(err)

	merge := NewCommit(s.store, treeHash, []plumbing.Hash{p1Hash, p2Hash}, s.sig(), s.sig(), "merge")
	h, err := WriteObject(s.store, merge)
	s.Require().NoError(err)

	got, err := GetCommit(s.store, h)
	s.Require().NoError(err)

	var seen []plumbing.Hash
	s.Require().NoError(got.Parents().ForEach(func(c *Commit) error {
		seen = append(seen, c.Hash)
		return nil
	}))
	s.Equal([]plumbing.Hash{p1Hash, p2Hash}, seen)
}

func (s *ObjectSuite) TestTagRoundTrip() {
	blobHash := s.writeBlob([]byte("x"))

	tag := &Tag{
		s:          s.store,
		Name:       "v1.0.0",
		TargetHash: blobHash,
		TargetType: plumbing.BlobObject,
		Tagger:     s.sig(),
		Message:    "release\n",
	}
	h, err := WriteObject(s.store, tag)
	s.Require().NoError(err)

	got, err := GetTag(s.store, h)
	s.Require().NoError(err)
	s.Equal("v1.0.0", got.Name)
	s.Equal(blobHash, got.TargetHash)
	s.Equal(plumbing.BlobObject, got.TargetType)
	s.Equal("release\n", got.Message)

	target, err := got.Target()
	s.Require().NoError(err)
	s.Equal(plumbing.BlobObject, target.Type())
}

func (s *ObjectSuite) TestSignatureRoundTripsTimezoneOffset() {
	sig := Signature{Name: "Grace Hopper", Email: "grace@example.com", When: time.Unix(1700000000, 0).In(time.FixedZone("", -5*3600))}
	var buf bytes.Buffer
	sig.Encode(&buf)

	var decoded Signature
	decoded.Decode(buf.Bytes())
	s.Equal("Grace Hopper", decoded.Name)
	s.Equal("grace@example.com", decoded.Email)
	s.Equal(sig.When.Unix(), decoded.When.Unix())
	_, offset := decoded.When.Zone()
	s.Equal(-5*3600, offset)
}

func (s *ObjectSuite) TestDecodeObjectDispatchesOnType() {
	h := s.writeBlob([]byte("dispatch-me"))
	eo, err := s.store.EncodedObject(plumbing.BlobObject, h)
	s.Require().NoError(err)

	o, err := DecodeObject(s.store, eo)
	s.Require().NoError(err)
	_, ok := o.(*Blob)
	s.True(ok)
}

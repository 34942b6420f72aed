package vcsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/filemode"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage/memory"
	"github.com/kirdyuk/govcs/worktree"
)

type ResetSuite struct {
	suite.Suite
	store *memory.Storage
	idx   *index.Index
	wt    *worktree.Worktree
	sig   object.Signature
	root  string
}

func TestResetSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ResetSuite))
}

func (s *ResetSuite) SetupTest() {
	s.store = memory.NewStorage()
	s.idx = index.New()
	s.root = s.T().TempDir()
	s.wt = worktree.New(s.root, s.store, s.idx)
	s.sig = object.Signature{Name: "tester", Email: "tester@example.com"}
}

func (s *ResetSuite) blob(content string) plumbing.Hash {
	eo := s.store.NewEncodedObject()
	eo.SetType(plumbing.BlobObject)
	eo.SetSize(int64(len(content)))
	w, err := eo.Writer()
	s.Require().NoError(err)
	_, err = w.Write([]byte(content))
	s.Require().NoError(err)
	s.Require().NoError(w.Close())
	h, err := s.store.SetEncodedObject(eo)
	s.Require().NoError(err)
	return h
}

func (s *ResetSuite) tree(files map[string]string) plumbing.Hash {
	idx := index.New()
	for p, content := range files {
		idx.Add(p, s.blob(content), filemode.Regular, index.StatCache{})
	}
	h, err := idx.BuildTree(s.store)
	s.Require().NoError(err)
	return h
}

func (s *ResetSuite) commit(treeHash plumbing.Hash, parents []plumbing.Hash, msg string) *object.Commit {
	c := object.NewCommit(s.store, treeHash, parents, s.sig, s.sig, msg)
	eo := s.store.NewEncodedObject()
	eo.SetType(plumbing.CommitObject)
	s.Require().NoError(c.Encode(eo))
	h, err := s.store.SetEncodedObject(eo)
	s.Require().NoError(err)
	got, err := object.GetCommit(s.store, h)
	s.Require().NoError(err)
	return got
}

func (s *ResetSuite) branch(name string, h plumbing.Hash) plumbing.ReferenceName {
	ref := plumbing.NewBranchReferenceName(name)
	s.Require().NoError(s.store.CheckAndSetReference(plumbing.NewHashReference(ref, h), nil))
	return ref
}

func (s *ResetSuite) TestSoftResetMovesOnlyHead() {
	first := s.commit(s.tree(map[string]string{"a.txt": "one"}), nil, "first")
	second := s.commit(s.tree(map[string]string{"a.txt": "two"}), []plumbing.Hash{first.Hash}, "second")
	ref := s.branch("main", second.Hash)

	s.idx.Add("a.txt", s.blob("two"), filemode.Regular, index.StatCache{})

	s.Require().NoError(Reset(s.store, s.store, s.idx, s.wt, ref, first, Soft))

	cur, err := s.store.Reference(ref)
	s.Require().NoError(err)
	s.Equal(first.Hash, cur.Hash())

	// Soft reset must not touch the index: still staged at "two".
	e, ok := s.idx.Entry("a.txt")
	s.Require().True(ok)
	s.Equal(s.blob("two"), e.Hash)
}

func (s *ResetSuite) TestMixedResetUpdatesIndexNotWorktree() {
	first := s.commit(s.tree(map[string]string{"a.txt": "one"}), nil, "first")
	second := s.commit(s.tree(map[string]string{"a.txt": "two"}), []plumbing.Hash{first.Hash}, "second")
	ref := s.branch("main", second.Hash)

	s.idx.Add("a.txt", s.blob("two"), filemode.Regular, index.StatCache{})

	s.Require().NoError(Reset(s.store, s.store, s.idx, s.wt, ref, first, Mixed))

	e, ok := s.idx.Entry("a.txt")
	s.Require().True(ok)
	s.Equal(s.blob("one"), e.Hash)

	_, err := os.Stat(filepath.Join(s.root, "a.txt"))
	s.True(os.IsNotExist(err))
}

func (s *ResetSuite) TestHardResetUpdatesWorktree() {
	first := s.commit(s.tree(map[string]string{"a.txt": "one"}), nil, "first")
	second := s.commit(s.tree(map[string]string{"a.txt": "two"}), []plumbing.Hash{first.Hash}, "second")
	ref := s.branch("main", second.Hash)

	s.Require().NoError(s.wt.Checkout(second.TreeHash, second.TreeHash, worktree.Force))
	s.Require().NoError(Reset(s.store, s.store, s.idx, s.wt, ref, first, Hard))

	content, err := os.ReadFile(filepath.Join(s.root, "a.txt"))
	s.Require().NoError(err)
	s.Equal("one", string(content))
}

func (s *ResetSuite) TestResetRejectsSymbolicHead() {
	first := s.commit(s.tree(map[string]string{"a.txt": "one"}), nil, "first")
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))
	s.Require().NoError(s.store.CheckAndSetReference(head, nil))

	err := Reset(s.store, s.store, s.idx, s.wt, plumbing.HEAD, first, Soft)
	s.Error(err)
}

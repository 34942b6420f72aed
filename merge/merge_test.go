package merge

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/filemode"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage/memory"
)

type MergeSuite struct {
	suite.Suite
	store *memory.Storage
	sig   object.Signature
}

func TestMergeSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(MergeSuite))
}

func (s *MergeSuite) SetupTest() {
	s.store = memory.NewStorage()
	s.sig = object.Signature{Name: "tester", Email: "tester@example.com"}
}

func (s *MergeSuite) blob(content string) plumbing.Hash {
	h, err := writeBlob(s.store, []byte(content))
	s.Require().NoError(err)
	return h
}

// tree builds a flat single-level tree from path -> content.
func (s *MergeSuite) tree(files map[string]string) plumbing.Hash {
	idx := index.New()
	for p, content := range files {
		idx.Add(p, s.blob(content), filemode.Regular, index.StatCache{})
	}
	h, err := idx.BuildTree(s.store)
	s.Require().NoError(err)
	return h
}

func (s *MergeSuite) commit(treeHash plumbing.Hash, parents []plumbing.Hash, msg string) *object.Commit {
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

func (s *MergeSuite) TestFastForward() {
	base := s.commit(s.tree(map[string]string{"a.txt": "one"}), nil, "base")
	ahead := s.commit(s.tree(map[string]string{"a.txt": "one", "b.txt": "two"}), []plumbing.Hash{base.Hash}, "ahead")

	idx := index.New()
	res, err := Merge(s.store, idx, s.T().TempDir(), base, ahead, "main", "feature", s.sig, s.sig, "merge")
	s.Require().NoError(err)
	s.Equal(FastForward, res.Status)
	s.Equal(ahead.Hash, res.NewCommit)
}

func (s *MergeSuite) TestUpToDate() {
	base := s.commit(s.tree(map[string]string{"a.txt": "one"}), nil, "base")

	idx := index.New()
	res, err := Merge(s.store, idx, s.T().TempDir(), base, base, "main", "feature", s.sig, s.sig, "merge")
	s.Require().NoError(err)
	s.Equal(UpToDate, res.Status)
}

func (s *MergeSuite) TestNonConflictingThreeWayMerge() {
	base := s.commit(s.tree(map[string]string{"a.txt": "one", "b.txt": "two"}), nil, "base")
	ours := s.commit(s.tree(map[string]string{"a.txt": "one-changed", "b.txt": "two"}), []plumbing.Hash{base.Hash}, "ours")
	theirs := s.commit(s.tree(map[string]string{"a.txt": "one", "b.txt": "two-changed"}), []plumbing.Hash{base.Hash}, "theirs")

	idx := index.New()
	res, err := Merge(s.store, idx, s.T().TempDir(), ours, theirs, "main", "feature", s.sig, s.sig, "merge a and b")
	s.Require().NoError(err)
	s.Equal(Merged, res.Status)
	s.False(res.NewCommit.IsZero())

	merged, err := object.GetCommit(s.store, res.NewCommit)
	s.Require().NoError(err)
	s.Len(merged.ParentHashes, 2)

	files, err := filesOf(s.store, merged.TreeHash)
	s.Require().NoError(err)
	aBlob, err := object.GetBlob(s.store, files["a.txt"].Hash)
	s.Require().NoError(err)
	r, err := aBlob.Reader()
	s.Require().NoError(err)
	defer r.Close()
}

func (s *MergeSuite) TestConflictingEdit() {
	base := s.commit(s.tree(map[string]string{"a.txt": "one"}), nil, "base")
	ours := s.commit(s.tree(map[string]string{"a.txt": "ours-version"}), []plumbing.Hash{base.Hash}, "ours")
	theirs := s.commit(s.tree(map[string]string{"a.txt": "theirs-version"}), []plumbing.Hash{base.Hash}, "theirs")

	idx := index.New()
	res, err := Merge(s.store, idx, s.T().TempDir(), ours, theirs, "main", "feature", s.sig, s.sig, "merge")
	s.Require().NoError(err)
	s.Equal(Conflict, res.Status)
	s.Contains(res.Conflicts, "a.txt")
	s.Len(idx.Unresolved(), 1)
}

package ancestry

import (
	"io"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage/memory"
)

type AncestrySuite struct {
	suite.Suite
	store *memory.Storage
}

func TestAncestrySuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(AncestrySuite))
}

func (s *AncestrySuite) SetupTest() {
	s.store = memory.NewStorage()
}

func (s *AncestrySuite) commit(parents []plumbing.Hash, msg string) *object.Commit {
	sig := object.Signature{Name: "tester", Email: "tester@example.com"}
	c := object.NewCommit(s.store, plumbing.ZeroHash, parents, sig, sig, msg)
	eo := s.store.NewEncodedObject()
	eo.SetType(plumbing.CommitObject)
	s.Require().NoError(c.Encode(eo))
	h, err := s.store.SetEncodedObject(eo)
	s.Require().NoError(err)
	got, err := object.GetCommit(s.store, h)
	s.Require().NoError(err)
	return got
}

// linear builds root -> a -> b -> c (first-parent chain).
func (s *AncestrySuite) linear() (root, a, b, c *object.Commit) {
	root = s.commit(nil, "root")
	a = s.commit([]plumbing.Hash{root.Hash}, "a")
	b = s.commit([]plumbing.Hash{a.Hash}, "b")
	c = s.commit([]plumbing.Hash{b.Hash}, "c")
	return
}

func (s *AncestrySuite) TestWalkFirstParent() {
	root, a, b, c := s.linear()

	it := Walk(s.store, c, 0)
	var hashes []plumbing.Hash
	for {
		commit, err := it.Next()
		if err == io.EOF {
			break
		}
		s.Require().NoError(err)
		hashes = append(hashes, commit.Hash)
	}
	s.Equal([]plumbing.Hash{c.Hash, b.Hash, a.Hash, root.Hash}, hashes)
}

func (s *AncestrySuite) TestWalkLimit() {
	_, _, b, c := s.linear()

	it := Walk(s.store, c, 2)
	var hashes []plumbing.Hash
	it.ForEach(func(commit *object.Commit) error {
		hashes = append(hashes, commit.Hash)
		return nil
	})
	s.Equal([]plumbing.Hash{c.Hash, b.Hash}, hashes)
}

func (s *AncestrySuite) TestIsAncestorTrue() {
	root, _, _, c := s.linear()

	ok, err := IsAncestor(s.store, root, c)
	s.NoError(err)
	s.True(ok)
}

func (s *AncestrySuite) TestIsAncestorFalse() {
	root, _, _, c := s.linear()
	unrelated := s.commit(nil, "unrelated")

	ok, err := IsAncestor(s.store, unrelated, c)
	s.NoError(err)
	s.False(ok)
	_ = root
}

func (s *AncestrySuite) TestMergeBaseLinear() {
	root, a, b, c := s.linear()
	base, err := MergeBase(s.store, b, c)
	s.NoError(err)
	s.Equal(b.Hash, base.Hash)
	_ = root
	_ = a
}

func (s *AncestrySuite) TestMergeBaseDiverging() {
	root := s.commit(nil, "root")
	left := s.commit([]plumbing.Hash{root.Hash}, "left")
	right := s.commit([]plumbing.Hash{root.Hash}, "right")

	base, err := MergeBase(s.store, left, right)
	s.NoError(err)
	s.Equal(root.Hash, base.Hash)
}

func (s *AncestrySuite) TestCountBetween() {
	root, a, b, c := s.linear()
	n, err := CountBetween(s.store, root, c)
	s.NoError(err)
	s.Equal(3, n)
	_ = a
	_ = b
}

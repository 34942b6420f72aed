package filesystem

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/storage/filesystem/dotgit"
)

type ReferenceSuite struct {
	suite.Suite
}

func TestReferenceSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ReferenceSuite))
}

func (s *ReferenceSuite) newRefStorage() *ReferenceStorage {
	return NewReferenceStorage(dotgit.New(s.T().TempDir()))
}

func (s *ReferenceSuite) hash(b byte) plumbing.Hash {
	var h plumbing.Hash
	h[0] = b
	return h
}

func (s *ReferenceSuite) TestCreateAndResolveLooseRef() {
	rs := s.newRefStorage()
	branch := plumbing.NewBranchReferenceName("main")

	s.Require().NoError(rs.CheckAndSetReference(plumbing.NewHashReference(branch, s.hash(1)), nil))

	got, err := rs.Reference(branch)
	s.Require().NoError(err)
	s.Equal(s.hash(1), got.Hash())
}

func (s *ReferenceSuite) TestCreateFailsIfAlreadyExists() {
	rs := s.newRefStorage()
	branch := plumbing.NewBranchReferenceName("main")

	s.Require().NoError(rs.CheckAndSetReference(plumbing.NewHashReference(branch, s.hash(1)), nil))
	err := rs.CheckAndSetReference(plumbing.NewHashReference(branch, s.hash(2)), nil)
	s.ErrorIs(err, plumbing.ErrRefStale)
}

func (s *ReferenceSuite) TestCASRejectsStaleOldValue() {
	rs := s.newRefStorage()
	branch := plumbing.NewBranchReferenceName("main")
	s.Require().NoError(rs.CheckAndSetReference(plumbing.NewHashReference(branch, s.hash(1)), nil))

	stale := plumbing.NewHashReference(branch, s.hash(2))
	err := rs.CheckAndSetReference(plumbing.NewHashReference(branch, s.hash(3)), stale)
	s.ErrorIs(err, plumbing.ErrRefStale)
}

func (s *ReferenceSuite) TestLooseRefShadowsPackedEntry() {
	dir := dotgit.New(s.T().TempDir())
	rs := NewReferenceStorage(dir)
	branch := plumbing.NewBranchReferenceName("main")

	s.Require().NoError(dir.WritePackedRefs(map[plumbing.ReferenceName]plumbing.Hash{branch: s.hash(9)}))

	got, err := rs.Reference(branch)
	s.Require().NoError(err)
	s.Equal(s.hash(9), got.Hash())

	s.Require().NoError(rs.CheckAndSetReference(plumbing.NewHashReference(branch, s.hash(1)), got))

	got, err = rs.Reference(branch)
	s.Require().NoError(err)
	s.Equal(s.hash(1), got.Hash())
}

func (s *ReferenceSuite) TestRemoveReferenceDeletesLooseRef() {
	dir := dotgit.New(s.T().TempDir())
	rs := NewReferenceStorage(dir)
	branch := plumbing.NewBranchReferenceName("main")

	s.Require().NoError(rs.CheckAndSetReference(plumbing.NewHashReference(branch, s.hash(1)), nil))
	s.Require().NoError(rs.RemoveReference(branch))

	_, err := rs.Reference(branch)
	s.ErrorIs(err, plumbing.ErrRefNotFound)
}

func (s *ReferenceSuite) TestIterReferencesMergesLooseAndPackedWithoutDuplicates() {
	dir := dotgit.New(s.T().TempDir())
	rs := NewReferenceStorage(dir)

	main := plumbing.NewBranchReferenceName("main")
	feature := plumbing.NewBranchReferenceName("feature")

	s.Require().NoError(dir.WritePackedRefs(map[plumbing.ReferenceName]plumbing.Hash{
		main:    s.hash(1),
		feature: s.hash(2),
	}))
	s.Require().NoError(rs.CheckAndSetReference(plumbing.NewHashReference(main, s.hash(3)), plumbing.NewHashReference(main, s.hash(1))))

	it, err := rs.IterReferences()
	s.Require().NoError(err)

	seen := make(map[plumbing.ReferenceName]plumbing.Hash)
	s.Require().NoError(it.ForEach(func(r *plumbing.Reference) error {
		seen[r.Name()] = r.Hash()
		return nil
	}))

	s.Len(seen, 2)
	s.Equal(s.hash(3), seen[main])
	s.Equal(s.hash(2), seen[feature])
}

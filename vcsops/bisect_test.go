package vcsops

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/filemode"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/storage/memory"
	"github.com/kirdyuk/govcs/worktree"
)

type BisectSuite struct {
	suite.Suite
	store *memory.Storage
	idx   *index.Index
	wt    *worktree.Worktree
	sig   object.Signature
}

func TestBisectSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(BisectSuite))
}

func (s *BisectSuite) SetupTest() {
	s.store = memory.NewStorage()
	s.idx = index.New()
	s.wt = worktree.New(s.T().TempDir(), s.store, s.idx)
	s.sig = object.Signature{Name: "tester", Email: "tester@example.com"}
}

func (s *BisectSuite) blob(content string) plumbing.Hash {
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

func (s *BisectSuite) tree(files map[string]string) plumbing.Hash {
	idx := index.New()
	for p, content := range files {
		idx.Add(p, s.blob(content), filemode.Regular, index.StatCache{})
	}
	h, err := idx.BuildTree(s.store)
	s.Require().NoError(err)
	return h
}

func (s *BisectSuite) commit(treeHash plumbing.Hash, parents []plumbing.Hash, msg string) *object.Commit {
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

func (s *BisectSuite) branch(name string, h plumbing.Hash) plumbing.ReferenceName {
	ref := plumbing.NewBranchReferenceName(name)
	s.Require().NoError(s.store.CheckAndSetReference(plumbing.NewHashReference(ref, h), nil))
	return ref
}

// chain builds a linear history of n commits. Every commit has the same
// tree (a single always.txt); the commits differ only in their parent, so
// each still has its own hash.
func (s *BisectSuite) chain(n int) []*object.Commit {
	commits := make([]*object.Commit, n)
	var parents []plumbing.Hash
	files := map[string]string{}
	for i := 0; i < n; i++ {
		files["always.txt"] = "v"
		commits[i] = s.commit(s.tree(files), parents, "commit")
		parents = []plumbing.Hash{commits[i].Hash}
	}
	return commits
}

func (s *BisectSuite) TestBisectConvergesToFirstBadCommit() {
	const n = 9
	const firstBad = 5
	chain := s.chain(n)
	headName := s.branch("main", chain[n-1].Hash)

	posOf := make(map[plumbing.Hash]int, n)
	for i, c := range chain {
		posOf[c.Hash] = i
	}

	b, err := StartBisect(s.store, s.store, s.store, s.idx, s.wt, headName, chain[n-1], chain[0], nil, "")
	s.Require().NoError(err)

	for !b.Status().Completed {
		cur := b.Status().Current
		pos, ok := posOf[cur]
		s.Require().True(ok)
		if pos < firstBad {
			s.Require().NoError(b.Mark(Good))
		} else {
			s.Require().NoError(b.Mark(Bad))
		}
	}

	s.Equal(chain[firstBad].Hash, b.Status().Current)
	s.Equal(chain[firstBad].Hash, b.Status().Bad)
	s.False(s.store.HasFile(bisectStateFile))
}

// TestBisectProbeCountMatchesLogN pins the deterministic probe count spec
// §8 scenario S5 names (4 probes to find the first bad commit among 10).
// A hash-ordered (or otherwise non-topological) candidate selection would
// not hit this bound reliably.
func (s *BisectSuite) TestBisectProbeCountMatchesLogN() {
	const n = 10
	const firstBad = 8
	chain := s.chain(n)
	headName := s.branch("main", chain[n-1].Hash)

	posOf := make(map[plumbing.Hash]int, n)
	for i, c := range chain {
		posOf[c.Hash] = i
	}

	b, err := StartBisect(s.store, s.store, s.store, s.idx, s.wt, headName, chain[n-1], chain[0], nil, "")
	s.Require().NoError(err)

	probes := 0
	for !b.Status().Completed {
		cur := b.Status().Current
		pos, ok := posOf[cur]
		s.Require().True(ok)
		if pos < firstBad {
			s.Require().NoError(b.Mark(Good))
		} else {
			s.Require().NoError(b.Mark(Bad))
		}
		probes++
	}

	s.Equal(chain[firstBad].Hash, b.Status().Current)
	s.Equal(4, probes)
}

func (s *BisectSuite) TestStartBisectRejectsNonAncestorGood() {
	base := s.commit(s.tree(map[string]string{"a.txt": "1"}), nil, "base")
	unrelated := s.commit(s.tree(map[string]string{"b.txt": "1"}), nil, "unrelated")
	headName := s.branch("main", base.Hash)

	_, err := StartBisect(s.store, s.store, s.store, s.idx, s.wt, headName, base, unrelated, nil, "")
	s.Error(err)
}

func (s *BisectSuite) TestStartBisectRejectsWhenAlreadyInProgress() {
	chain := s.chain(3)
	headName := s.branch("main", chain[2].Hash)

	_, err := StartBisect(s.store, s.store, s.store, s.idx, s.wt, headName, chain[2], chain[0], nil, "")
	s.Require().NoError(err)

	_, err = StartBisect(s.store, s.store, s.store, s.idx, s.wt, headName, chain[2], chain[0], nil, "")
	s.ErrorIs(err, ErrOperationInProgress)
}

func (s *BisectSuite) TestVerdictFromExitCode() {
	s.Equal(Good, VerdictFromExitCode(0))
	s.Equal(Bad, VerdictFromExitCode(1))
	s.Equal(Bad, VerdictFromExitCode(124))
	s.Equal(Skip, VerdictFromExitCode(125))
	s.Equal(AbortVerdict, VerdictFromExitCode(126))
}

func (s *BisectSuite) TestAbortRestoresOriginalHead() {
	chain := s.chain(5)
	headName := s.branch("main", chain[4].Hash)

	b, err := StartBisect(s.store, s.store, s.store, s.idx, s.wt, headName, chain[4], chain[0], nil, "")
	s.Require().NoError(err)

	s.Require().NoError(b.Abort())

	ref, err := s.store.Reference(headName)
	s.Require().NoError(err)
	s.Equal(chain[4].Hash, ref.Hash())
	s.False(s.store.HasFile(bisectStateFile))
}

func (s *BisectSuite) TestCandidatesFiltersByFocusPaths() {
	base := s.commit(s.tree(map[string]string{"a.txt": "1"}), nil, "base")
	touches := s.commit(s.tree(map[string]string{"a.txt": "1", "docs/readme.txt": "x"}), []plumbing.Hash{base.Hash}, "touches docs")
	untouched := s.commit(s.tree(map[string]string{"a.txt": "2", "docs/readme.txt": "x"}), []plumbing.Hash{touches.Hash}, "untouched")

	b := &Bisect{
		s: s.store,
		state: BisectState{
			Good:       []plumbing.Hash{base.Hash},
			Bad:        untouched.Hash,
			FocusPaths: []string{"docs"},
		},
	}
	cands, err := b.candidates()
	s.Require().NoError(err)
	s.Contains(cands, touches.Hash)
	s.NotContains(cands, untouched.Hash)
}

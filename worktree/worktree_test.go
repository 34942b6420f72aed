package worktree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/index"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/filemode"
	"github.com/kirdyuk/govcs/storage/memory"
)

type WorktreeSuite struct {
	suite.Suite
	store *memory.Storage
	idx   *index.Index
	root  string
	wt    *Worktree
}

func TestWorktreeSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(WorktreeSuite))
}

func (s *WorktreeSuite) SetupTest() {
	s.store = memory.NewStorage()
	s.idx = index.New()
	s.root = s.T().TempDir()
	s.wt = New(s.root, s.store, s.idx)
}

func (s *WorktreeSuite) blob(content string) plumbing.Hash {
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

func (s *WorktreeSuite) tree(files map[string]string) plumbing.Hash {
	idx := index.New()
	for p, content := range files {
		idx.Add(p, s.blob(content), filemode.Regular, index.StatCache{})
	}
	h, err := idx.BuildTree(s.store)
	s.Require().NoError(err)
	return h
}

func (s *WorktreeSuite) TestCheckoutWritesFilesAndUpdatesIndex() {
	treeHash := s.tree(map[string]string{"a.txt": "one", "dir/b.txt": "two"})

	s.Require().NoError(s.wt.Checkout(treeHash, plumbing.ZeroHash, Force))

	content, err := os.ReadFile(filepath.Join(s.root, "a.txt"))
	s.Require().NoError(err)
	s.Equal("one", string(content))

	content, err = os.ReadFile(filepath.Join(s.root, "dir", "b.txt"))
	s.Require().NoError(err)
	s.Equal("two", string(content))

	_, ok := s.idx.Entry("a.txt")
	s.True(ok)
}

func (s *WorktreeSuite) TestCheckoutRemovesFilesNotInTarget() {
	first := s.tree(map[string]string{"a.txt": "one", "b.txt": "two"})
	s.Require().NoError(s.wt.Checkout(first, plumbing.ZeroHash, Force))

	second := s.tree(map[string]string{"a.txt": "one"})
	s.Require().NoError(s.wt.Checkout(second, first, Force))

	_, err := os.Stat(filepath.Join(s.root, "b.txt"))
	s.True(os.IsNotExist(err))
	_, ok := s.idx.Entry("b.txt")
	s.False(ok)
}

func (s *WorktreeSuite) TestSafeCheckoutRejectsUncommittedChanges() {
	headTree := s.tree(map[string]string{"a.txt": "one"})
	s.Require().NoError(s.wt.Checkout(headTree, plumbing.ZeroHash, Force))

	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "a.txt"), []byte("locally-edited"), 0o644))

	targetTree := s.tree(map[string]string{"a.txt": "from-target"})
	err := s.wt.Checkout(targetTree, headTree, Safe)
	s.ErrorIs(err, ErrWouldLoseChanges)
}

func (s *WorktreeSuite) TestSafeCheckoutAllowsMatchingTargetContent() {
	headTree := s.tree(map[string]string{"a.txt": "one"})
	s.Require().NoError(s.wt.Checkout(headTree, plumbing.ZeroHash, Force))

	targetTree := s.tree(map[string]string{"a.txt": "one", "b.txt": "new"})
	s.Require().NoError(s.wt.Checkout(targetTree, headTree, Safe))

	content, err := os.ReadFile(filepath.Join(s.root, "b.txt"))
	s.Require().NoError(err)
	s.Equal("new", string(content))
}

func (s *WorktreeSuite) TestStatusReportsUntrackedAndModified() {
	headTree := s.tree(map[string]string{"a.txt": "one"})
	s.Require().NoError(s.wt.Checkout(headTree, plumbing.ZeroHash, Force))

	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "a.txt"), []byte("edited"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "new.txt"), []byte("new-content"), 0o644))

	st, err := s.wt.Status(headTree)
	s.Require().NoError(err)
	s.Contains(st.Modified, "a.txt")
	s.Contains(st.Untracked, "new.txt")
}

func (s *WorktreeSuite) TestStatusReportsDeleted() {
	headTree := s.tree(map[string]string{"a.txt": "one"})
	s.Require().NoError(s.wt.Checkout(headTree, plumbing.ZeroHash, Force))

	s.Require().NoError(os.Remove(filepath.Join(s.root, "a.txt")))

	st, err := s.wt.Status(headTree)
	s.Require().NoError(err)
	s.Contains(st.Deleted, "a.txt")
}

func (s *WorktreeSuite) TestRestoreFromHeadDiscardsWorktreeEdit() {
	headTree := s.tree(map[string]string{"a.txt": "one"})
	s.Require().NoError(s.wt.Checkout(headTree, plumbing.ZeroHash, Force))

	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "a.txt"), []byte("edited"), 0o644))
	s.Require().NoError(s.wt.Restore([]string{"a.txt"}, headTree))

	content, err := os.ReadFile(filepath.Join(s.root, "a.txt"))
	s.Require().NoError(err)
	s.Equal("one", string(content))
}

func (s *WorktreeSuite) TestCleanEmptyDirsRemovesVacatedDirectories() {
	first := s.tree(map[string]string{"dir/a.txt": "one"})
	s.Require().NoError(s.wt.Checkout(first, plumbing.ZeroHash, Force))

	second := s.tree(map[string]string{"b.txt": "two"})
	s.Require().NoError(s.wt.Checkout(second, first, Force))

	_, err := os.Stat(filepath.Join(s.root, "dir"))
	s.True(os.IsNotExist(err))
}

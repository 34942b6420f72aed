package memory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/plumbing"
)

type StorageSuite struct {
	suite.Suite
}

func TestStorageSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) setEncodedBlob(store *Storage, content string) plumbing.Hash {
	o := store.NewEncodedObject()
	o.SetType(plumbing.BlobObject)
	o.SetSize(int64(len(content)))
	w, err := o.Writer()
	s.Require().NoError(err)
	_, err = w.Write([]byte(content))
	s.Require().NoError(err)
	s.Require().NoError(w.Close())
	h, err := store.SetEncodedObject(o)
	s.Require().NoError(err)
	return h
}

func (s *StorageSuite) TestResolvePrefixMatches() {
	store := NewStorage()
	h := s.setEncodedBlob(store, "hello world")

	got, err := store.ResolvePrefix(h.String()[:8])
	s.NoError(err)
	s.Equal(h, got)
}

func (s *StorageSuite) TestResolvePrefixNoMatch() {
	store := NewStorage()
	s.setEncodedBlob(store, "hello world")

	_, err := store.ResolvePrefix("ffffffff")
	s.ErrorIs(err, plumbing.ErrInvalidRevision)
}

func (s *StorageSuite) TestReferenceCAS() {
	store := NewStorage()
	name := plumbing.NewBranchReferenceName("main")
	h := plumbing.NewHash("1111111111111111111111111111111111111111")

	s.NoError(store.CheckAndSetReference(plumbing.NewHashReference(name, h), nil))
	// A second create without the expected-old nil should fail: it already exists.
	s.ErrorIs(store.CheckAndSetReference(plumbing.NewHashReference(name, h), nil), plumbing.ErrRefStale)

	got, err := store.Reference(name)
	s.NoError(err)
	s.Equal(h, got.Hash())
}

func (s *StorageSuite) TestFlatFileBookkeeping() {
	store := NewStorage()
	s.False(store.HasFile("MERGE_HEAD"))

	s.NoError(store.WriteFile("MERGE_HEAD", []byte("deadbeef\n")))
	s.True(store.HasFile("MERGE_HEAD"))

	got, err := store.ReadFile("MERGE_HEAD")
	s.NoError(err)
	s.Equal("deadbeef\n", string(got))

	s.NoError(store.RemoveFile("MERGE_HEAD"))
	s.False(store.HasFile("MERGE_HEAD"))
}

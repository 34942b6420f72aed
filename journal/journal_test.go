package journal

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/plumbing"
)

// memStore is a minimal FileStore used only by these tests.
type memStore struct {
	files map[string][]byte
}

func newMemStore() *memStore { return &memStore{files: make(map[string][]byte)} }

func (m *memStore) ReadFile(name string) ([]byte, error) { return m.files[name], nil }
func (m *memStore) WriteFile(name string, content []byte) error {
	m.files[name] = append([]byte(nil), content...)
	return nil
}
func (m *memStore) HasFile(name string) bool {
	_, ok := m.files[name]
	return ok
}

type JournalSuite struct {
	suite.Suite
}

func TestJournalSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(JournalSuite))
}

func (s *JournalSuite) TestEmptyJournalIsNotAnError() {
	j := Open(newMemStore())
	entries, err := j.Entries()
	s.NoError(err)
	s.Empty(entries)

	_, ok, err := j.Last()
	s.NoError(err)
	s.False(ok)
}

func (s *JournalSuite) TestAppendAndLast() {
	j := Open(newMemStore())

	before := State{Head: plumbing.NewHash("1111111111111111111111111111111111111111")}
	e := NewEntry("commit", []string{"-m", "first"}, "commit first", before)
	e.After = State{Head: plumbing.NewHash("2222222222222222222222222222222222222222")}
	e.CommitHash = e.After.Head

	s.Require().NoError(j.Append(e))

	last, ok, err := j.Last()
	s.NoError(err)
	s.True(ok)
	s.Equal("commit", last.Operation)
	s.Equal(e.After.Head, last.CommitHash)
	s.NotEmpty(last.UUID)
	s.False(last.Timestamp.IsZero())
}

func (s *JournalSuite) TestFIFOEviction() {
	j := Open(newMemStore())
	j.Capacity = 3

	for i := 0; i < 5; i++ {
		s.Require().NoError(j.Append(NewEntry("op", nil, "", State{})))
	}

	entries, err := j.Entries()
	s.NoError(err)
	s.Len(entries, 3)
}

func (s *JournalSuite) TestDefaultCapacityAppliesWhenUnset() {
	j := Open(newMemStore())
	j.Capacity = 0

	for i := 0; i < DefaultCapacity+2; i++ {
		s.Require().NoError(j.Append(NewEntry("op", nil, "", State{})))
	}

	entries, err := j.Entries()
	s.NoError(err)
	s.Len(entries, DefaultCapacity)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type RepositoryConfigSuite struct {
	suite.Suite
}

func TestRepositoryConfigSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(RepositoryConfigSuite))
}

func (s *RepositoryConfigSuite) TestSetAndGetUser() {
	c := NewRepositoryConfig()
	c.SetUser("Ada Lovelace", "ada@example.com")
	s.Equal("Ada Lovelace", c.UserName())
	s.Equal("ada@example.com", c.UserEmail())
}

func (s *RepositoryConfigSuite) TestSetAndGetRemote() {
	c := NewRepositoryConfig()
	c.SetRemote(&RemoteConfig{
		Name:  "origin",
		URL:   "https://example.com/repo.git",
		Fetch: []string{"+refs/heads/*:refs/remotes/origin/*"},
	})

	rc, ok := c.Remote("origin")
	s.Require().True(ok)
	s.Equal("https://example.com/repo.git", rc.URL)
	s.Equal([]string{"+refs/heads/*:refs/remotes/origin/*"}, rc.Fetch)
	s.Empty(rc.PushURL)
}

func (s *RepositoryConfigSuite) TestRemoteNotFound() {
	c := NewRepositoryConfig()
	_, ok := c.Remote("missing")
	s.False(ok)
}

func (s *RepositoryConfigSuite) TestRemotesListsAllConfiguredRemotes() {
	c := NewRepositoryConfig()
	c.SetRemote(&RemoteConfig{Name: "origin", URL: "https://example.com/a.git"})
	c.SetRemote(&RemoteConfig{Name: "upstream", URL: "https://example.com/b.git"})

	remotes := c.Remotes()
	s.Len(remotes, 2)
	names := map[string]bool{}
	for _, r := range remotes {
		names[r.Name] = true
	}
	s.True(names["origin"])
	s.True(names["upstream"])
}

func (s *RepositoryConfigSuite) TestSetRemoteOverwritesPriorOptions() {
	c := NewRepositoryConfig()
	c.SetRemote(&RemoteConfig{Name: "origin", URL: "https://example.com/old.git", PushURL: "https://example.com/push.git"})
	c.SetRemote(&RemoteConfig{Name: "origin", URL: "https://example.com/new.git"})

	rc, ok := c.Remote("origin")
	s.Require().True(ok)
	s.Equal("https://example.com/new.git", rc.URL)
	s.Empty(rc.PushURL)
}

func (s *RepositoryConfigSuite) TestBranchUpstreamTracking() {
	c := NewRepositoryConfig()
	c.SetBranch(&BranchConfig{Name: "main", Remote: "origin", Merge: "refs/heads/main"})

	bc, ok := c.Branch("main")
	s.Require().True(ok)
	s.Equal("origin", bc.Remote)
	s.Equal("refs/heads/main", bc.Merge)
}

func (s *RepositoryConfigSuite) TestRepositoryFormatVersionDefaultsToZero() {
	c := NewRepositoryConfig()
	s.Equal(0, c.RepositoryFormatVersion())
}

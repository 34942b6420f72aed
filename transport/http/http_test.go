package http

import (
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
)

type HTTPSuite struct {
	suite.Suite
}

func TestHTTPSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(HTTPSuite))
}

func (s *HTTPSuite) TestNormalizeURLAppendsGitSuffix() {
	s.Equal("https://example.com/repo.git", NormalizeURL("https://example.com/repo"))
	s.Equal("https://example.com/repo.git", NormalizeURL("https://example.com/repo.git"))
}

func (s *HTTPSuite) TestNormalizeURLRewritesSSHStyle() {
	s.Equal("https://github.com/owner/repo.git", NormalizeURL("git@github.com:owner/repo"))
}

func (s *HTTPSuite) TestAuthFromEnvironmentPrefersToolSpecific() {
	s.T().Setenv("GITHUB_TOKEN", "generic-token")
	s.T().Setenv("MYREMOTE_TOKEN", "specific-token")

	auth := AuthFromEnvironment("myremote")
	tok, ok := auth.(*TokenAuth)
	s.Require().True(ok)
	s.Equal("specific-token", tok.Token)
}

func (s *HTTPSuite) TestAuthFromEnvironmentFallsBackToGithubToken() {
	os.Unsetenv("SOMEREMOTE_TOKEN")
	s.T().Setenv("GITHUB_TOKEN", "generic-token")

	auth := AuthFromEnvironment("someremote")
	tok, ok := auth.(*TokenAuth)
	s.Require().True(ok)
	s.Equal("generic-token", tok.Token)
}

func (s *HTTPSuite) TestAuthFromEnvironmentNilWhenUnset() {
	os.Unsetenv("GITHUB_TOKEN")
	os.Unsetenv("NOREMOTE_TOKEN")

	s.Nil(AuthFromEnvironment("noremote"))
}

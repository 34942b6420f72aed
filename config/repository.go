package config

// RepositoryConfig wraps the generic INI Config with typed accessors for
// exactly the options spec §6 requires a core implementation to honor.
type RepositoryConfig struct {
	raw *Config
}

// RemoteConfig is the remote.<name>.* family (spec §3, "Remote").
type RemoteConfig struct {
	Name          string
	URL           string
	PushURL       string
	Fetch         []string
	Push          []string
}

// BranchConfig is the branch.<name>.* upstream-tracking family.
type BranchConfig struct {
	Name   string
	Remote string
	Merge  string
}

func NewRepositoryConfig() *RepositoryConfig { return &RepositoryConfig{raw: New()} }

func LoadRepositoryConfig(raw *Config) *RepositoryConfig { return &RepositoryConfig{raw: raw} }

func (c *RepositoryConfig) Raw() *Config { return c.raw }

func (c *RepositoryConfig) RepositoryFormatVersion() int {
	core, ok := c.raw.FindSection("core", "")
	if !ok {
		return 0
	}
	return core.Int("repositoryformatversion", 0)
}

func (c *RepositoryConfig) UserName() string {
	s, ok := c.raw.FindSection("user", "")
	if !ok {
		return ""
	}
	v, _ := s.Get("name")
	return v
}

func (c *RepositoryConfig) UserEmail() string {
	s, ok := c.raw.FindSection("user", "")
	if !ok {
		return ""
	}
	v, _ := s.Get("email")
	return v
}

func (c *RepositoryConfig) SetUser(name, email string) {
	s := c.raw.Section("user", "")
	s.Set("name", name)
	s.Set("email", email)
}

func (c *RepositoryConfig) Remote(name string) (*RemoteConfig, bool) {
	s, ok := c.raw.FindSection("remote", name)
	if !ok {
		return nil, false
	}
	rc := &RemoteConfig{Name: name}
	rc.URL, _ = s.Get("url")
	rc.PushURL, _ = s.Get("pushurl")
	for _, o := range s.Options {
		switch o.Key {
		case "fetch":
			rc.Fetch = append(rc.Fetch, o.Value)
		case "push":
			rc.Push = append(rc.Push, o.Value)
		}
	}
	return rc, true
}

func (c *RepositoryConfig) SetRemote(rc *RemoteConfig) {
	s := c.raw.Section("remote", rc.Name)
	s.Options = nil
	s.Set("url", rc.URL)
	if rc.PushURL != "" {
		s.Set("pushurl", rc.PushURL)
	}
	for _, f := range rc.Fetch {
		s.Options = append(s.Options, Option{Key: "fetch", Value: f})
	}
	for _, p := range rc.Push {
		s.Options = append(s.Options, Option{Key: "push", Value: p})
	}
}

func (c *RepositoryConfig) Remotes() []*RemoteConfig {
	var out []*RemoteConfig
	for _, name := range c.raw.Subsections("remote") {
		if rc, ok := c.Remote(name); ok {
			out = append(out, rc)
		}
	}
	return out
}

func (c *RepositoryConfig) Branch(name string) (*BranchConfig, bool) {
	s, ok := c.raw.FindSection("branch", name)
	if !ok {
		return nil, false
	}
	bc := &BranchConfig{Name: name}
	bc.Remote, _ = s.Get("remote")
	bc.Merge, _ = s.Get("merge")
	return bc, true
}

func (c *RepositoryConfig) SetBranch(bc *BranchConfig) {
	s := c.raw.Section("branch", bc.Name)
	s.Set("remote", bc.Remote)
	s.Set("merge", bc.Merge)
}

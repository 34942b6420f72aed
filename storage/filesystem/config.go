package filesystem

import (
	"bytes"
	"os"

	"github.com/kirdyuk/govcs/config"
	"github.com/kirdyuk/govcs/storage/filesystem/dotgit"
)

// ConfigStorage reads and writes the repository's "config" INI file.
type ConfigStorage struct {
	dir *dotgit.DotGit
}

func NewConfigStorage(dir *dotgit.DotGit) *ConfigStorage {
	return &ConfigStorage{dir: dir}
}

// Config loads and parses the config file, returning an empty
// RepositoryConfig if none has been written yet.
func (s *ConfigStorage) Config() (*config.RepositoryConfig, error) {
	r, err := s.dir.Reader("config")
	if err != nil {
		if os.IsNotExist(err) {
			return config.NewRepositoryConfig(), nil
		}
		return nil, err
	}
	defer r.Close()

	raw, err := config.Decode(r)
	if err != nil {
		return nil, err
	}
	return config.LoadRepositoryConfig(raw), nil
}

// SetConfig serializes and atomically overwrites the config file.
func (s *ConfigStorage) SetConfig(c *config.RepositoryConfig) error {
	var buf bytes.Buffer
	if err := config.Encode(&buf, c.Raw()); err != nil {
		return err
	}
	return s.dir.WriteFile("config", buf.Bytes())
}

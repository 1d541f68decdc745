package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader reads provider profiles from a directory of YAML files.
type Loader struct {
	dir string
}

// NewLoader creates a profile loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadAll loads and validates every *.yaml / *.yml file under the directory,
// keyed by profile id.
func (l *Loader) LoadAll() (map[string]*Profile, error) {
	profiles := make(map[string]*Profile)

	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return profiles, nil
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("find profile files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(l.dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("find profile files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		p, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid profile %s: %w", file, err)
		}
		if _, dup := profiles[p.ID]; dup {
			return nil, fmt.Errorf("duplicate profile id %q in %s", p.ID, file)
		}
		profiles[p.ID] = p
	}

	return profiles, nil
}

func (l *Loader) loadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if p.Protocol == "" {
		p.Protocol = ProtocolOpenSearch
	}
	if p.Protocol == ProtocolFTP && p.FTP.DateLayout == "" {
		p.FTP.DateLayout = "2006-01-02"
	}
	return &p, nil
}

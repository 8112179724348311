package feed

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Manifest declares extra enrichment scans beyond the built-in feeds:
// any tabular file with recognizable columns can be folded into the
// pipeline by listing it here with its column aliases.
type Manifest struct {
	Scans []ScanConfig `yaml:"scans"`
}

// ScanConfig describes one custom scan source.
type ScanConfig struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	// Stage optionally names a stage each row attests (alias labels
	// accepted). Empty means enrichment only.
	Stage string `yaml:"stage,omitempty"`
	// Fields overrides identity/timestamp column aliases: keys are
	// email, first, last, full, timestamp.
	Fields map[string][]string `yaml:"fields,omitempty"`
	// Copy maps rider profile fields (phone, championship, bike, track,
	// notes, ...) to their column aliases in this source.
	Copy map[string][]string `yaml:"copy,omitempty"`
}

// LoadManifest reads a feeds.yaml manifest. A missing file is an empty
// manifest, not an error: the manifest is optional.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "feed: read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "feed: parse manifest %s", path)
	}

	for i, scan := range m.Scans {
		if scan.Name == "" {
			return nil, eris.Errorf("feed: manifest scan %d has no name", i)
		}
		if scan.Source == "" {
			return nil, eris.Errorf("feed: manifest scan %q has no source", scan.Name)
		}
	}

	return &m, nil
}

// RegisterManifest registers every manifest scan as a feed and binds its
// source location.
func RegisterManifest(reg *Registry, srcs *SourceSet, m *Manifest) error {
	for _, scan := range m.Scans {
		f, err := NewCustomScan(scan)
		if err != nil {
			return err
		}
		reg.Register(f)
		srcs.SetLocation(scan.Name, scan.Source)
	}
	return nil
}

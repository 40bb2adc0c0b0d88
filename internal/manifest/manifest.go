// Package manifest records the files written by a run of the annogen command,
// so that a later run can remove outputs that are no longer generated.
package manifest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spaolacci/murmur3"
	"gopkg.in/yaml.v3"

	"github.com/jhump/annogen/processor"
)

// FileName is the name of the manifest file in the work directory.
const FileName = ".annogen.yaml"

const version = 1

// Manifest lists generated files.
type Manifest struct {
	Version int     `yaml:"version"`
	Files   []Entry `yaml:"files"`
}

// Entry is one generated file.
type Entry struct {
	// Path is relative to the manifest's directory and uses forward slashes.
	Path    string   `yaml:"path"`
	Package string   `yaml:"package"`
	Origins []string `yaml:"origins,omitempty"`
	// Fingerprint is a hash of the contents as generated.
	Fingerprint string `yaml:"fingerprint"`
}

// Fingerprint returns the hex-encoded 128-bit murmur3 hash of the contents.
func Fingerprint(content []byte) string {
	h1, h2 := murmur3.Sum128(content)
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(h1 >> (56 - 8*i))
		b[8+i] = byte(h2 >> (56 - 8*i))
	}
	return hex.EncodeToString(b[:])
}

// New returns a manifest of the given files. Paths are made relative to root.
func New(root string, files []processor.GeneratedFile) (*Manifest, error) {
	m := &Manifest{Version: version}
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		if err != nil {
			return nil, fmt.Errorf("cannot record %s relative to %s: %w", f.Path, root, err)
		}
		m.Files = append(m.Files, Entry{
			Path:        filepath.ToSlash(rel),
			Package:     f.Package,
			Origins:     f.Origins,
			Fingerprint: Fingerprint(f.Content),
		})
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	return m, nil
}

// Load reads the manifest at the given path. A missing file is an empty
// manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{Version: version}, nil
	} else if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	if m.Version != version {
		return nil, fmt.Errorf("manifest %s has unsupported version %d", path, m.Version)
	}
	return &m, nil
}

// Save writes the manifest to the given path.
func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Stale returns the entries of m that are not in next. Only entries of the
// given packages are considered, since a run that did not load a package
// cannot know what it would generate.
func (m *Manifest) Stale(next *Manifest, packages []string) []Entry {
	current := map[string]struct{}{}
	for _, e := range next.Files {
		current[e.Path] = struct{}{}
	}
	loaded := map[string]struct{}{}
	for _, p := range packages {
		loaded[p] = struct{}{}
	}
	var stale []Entry
	for _, e := range m.Files {
		if _, ok := current[e.Path]; ok {
			continue
		}
		if _, ok := loaded[e.Package]; !ok {
			continue
		}
		stale = append(stale, e)
	}
	return stale
}

// Retain copies into m the entries of prev that belong to packages other than
// the given ones, so that outputs of packages not loaded in this run stay
// recorded.
func (m *Manifest) Retain(prev *Manifest, packages []string) {
	loaded := map[string]struct{}{}
	for _, p := range packages {
		loaded[p] = struct{}{}
	}
	have := map[string]struct{}{}
	for _, e := range m.Files {
		have[e.Path] = struct{}{}
	}
	for _, e := range prev.Files {
		if _, ok := loaded[e.Package]; ok {
			continue
		}
		if _, ok := have[e.Path]; ok {
			continue
		}
		m.Files = append(m.Files, e)
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
}

// Paths returns the paths of all entries.
func (m *Manifest) Paths() []string {
	paths := make([]string, len(m.Files))
	for i, e := range m.Files {
		paths[i] = e.Path
	}
	return paths
}

// RemoveStale deletes the files of the given entries, which are relative to
// root. Files that were changed since they were generated are kept and
// returned, as are files that no longer exist.
func RemoveStale(root string, stale []Entry) (removed, modified []string, err error) {
	for _, e := range stale {
		path := filepath.Join(root, filepath.FromSlash(e.Path))
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return removed, modified, err
		}
		if Fingerprint(data) != e.Fingerprint {
			modified = append(modified, path)
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, modified, err
		}
		removed = append(removed, path)
	}
	return removed, modified, nil
}

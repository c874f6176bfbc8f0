package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// IgnoreRules controls what the indexer skips. Loaded from a TOML file in
// the base directory; missing file means defaults.
type IgnoreRules struct {
	// Dirs are directory names skipped anywhere in the walk.
	Dirs []string `toml:"dirs"`
	// Exts are file extensions (with leading dot) that are skipped.
	Exts []string `toml:"exts"`
	// Hidden skips dot-files and dot-directories when true.
	Hidden bool `toml:"hidden"`
}

// DefaultIgnoreRules mirrors the ignore sets most indexers want out of
// the box: VCS metadata, virtualenvs, build caches, compiled artifacts.
func DefaultIgnoreRules() *IgnoreRules {
	return &IgnoreRules{
		Dirs:   []string{".git", ".venv", "__pycache__", "node_modules", ".idea", ".vscode"},
		Exts:   []string{".pyc", ".pyo", ".so", ".o", ".a", ".dll", ".exe"},
		Hidden: true,
	}
}

// LoadIgnoreRules reads rules from the given TOML file, falling back to
// defaults when the file does not exist.
func LoadIgnoreRules(path string) (*IgnoreRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultIgnoreRules(), nil
		}
		return nil, fmt.Errorf("read ignore rules %s: %w", path, err)
	}

	rules := DefaultIgnoreRules()
	if err := toml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("parse ignore rules %s: %w", path, err)
	}
	return rules, nil
}

// Match reports whether the file or directory at path (with base name
// name) should be skipped.
func (r *IgnoreRules) Match(path, name string) bool {
	if r.Hidden && strings.HasPrefix(name, ".") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		for _, d := range r.Dirs {
			if part == d {
				return true
			}
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range r.Exts {
		if ext == e {
			return true
		}
	}
	return false
}

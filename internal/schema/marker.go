package schema

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MarkerName is the filename of the sandbox marker record. Everything else
// inside a sandbox directory is working-copy content.
const MarkerName = ".clutter_sandbox"

// SandboxMarker is the small record kept at the root of every sandbox.
// Immediately after track the sandbox holds nothing but this marker; that
// is what makes tracking zero-copy.
type SandboxMarker struct {
	Alias        string     `yaml:"alias"`
	OriginalPath string     `yaml:"original_path"`
	CreatedAt    time.Time  `yaml:"created_at"`
	PulledAt     *time.Time `yaml:"pulled_at,omitempty"`
	Version      string     `yaml:"clutter_version"`
}

// ReadMarker loads a sandbox marker from the given file path.
func ReadMarker(path string) (*SandboxMarker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sandbox marker %s: %w", path, err)
	}
	var m SandboxMarker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse sandbox marker %s: %w", path, err)
	}
	if m.Alias == "" {
		return nil, fmt.Errorf("sandbox marker %s: alias is empty", path)
	}
	return &m, nil
}

// WriteMarker writes the marker to the given file path.
func (m *SandboxMarker) WriteMarker(path string) error {
	if m.Alias == "" {
		return fmt.Errorf("sandbox marker: alias is required")
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal sandbox marker: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write sandbox marker %s: %w", path, err)
	}
	return nil
}

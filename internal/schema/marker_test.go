package schema

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSandboxMarker_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), MarkerName)
	pulled := time.Now().Truncate(time.Second)

	m := &SandboxMarker{
		Alias:        "alpha",
		OriginalPath: "/home/me/projects/alpha",
		CreatedAt:    time.Now().Truncate(time.Second),
		PulledAt:     &pulled,
		Version:      "0.4.0",
	}
	if err := m.WriteMarker(path); err != nil {
		t.Fatalf("WriteMarker() failed: %v", err)
	}

	got, err := ReadMarker(path)
	if err != nil {
		t.Fatalf("ReadMarker() failed: %v", err)
	}
	if got.Alias != m.Alias {
		t.Errorf("alias = %q, want %q", got.Alias, m.Alias)
	}
	if got.OriginalPath != m.OriginalPath {
		t.Errorf("original_path = %q, want %q", got.OriginalPath, m.OriginalPath)
	}
	if got.PulledAt == nil || !got.PulledAt.Equal(pulled) {
		t.Errorf("pulled_at = %v, want %v", got.PulledAt, pulled)
	}
}

func TestReadMarker_MissingFile(t *testing.T) {
	if _, err := ReadMarker(filepath.Join(t.TempDir(), MarkerName)); err == nil {
		t.Fatal("ReadMarker() succeeded on missing file, want error")
	}
}

func TestWriteMarker_RequiresAlias(t *testing.T) {
	m := &SandboxMarker{OriginalPath: "/tmp/x"}
	if err := m.WriteMarker(filepath.Join(t.TempDir(), MarkerName)); err == nil {
		t.Fatal("WriteMarker() succeeded without alias, want error")
	}
}

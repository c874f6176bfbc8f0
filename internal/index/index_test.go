package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/clutter-sh/clutter/internal/config"
	"github.com/clutter-sh/clutter/internal/schema"
	"github.com/clutter-sh/clutter/internal/store"
)

func newIndexer(t *testing.T) (*Indexer, string) {
	t.Helper()
	base := t.TempDir()
	st, err := store.Open(filepath.Join(base, "clutter.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatal(err)
	}
	return New(st, config.DefaultIgnoreRules()), base
}

func seed(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanAndFind(t *testing.T) {
	ix, base := newIndexer(t)
	root := filepath.Join(base, "data")
	seed(t, root, map[string]string{
		"docs/report.md":     "q1 numbers",
		"docs/notes.txt":     "misc",
		"src/main.go":        "package main",
		".git/objects/x":     "binary",
		"cache/file.pyc":     "compiled",
		"node_modules/a/b.js": "dep",
	})

	res, err := ix.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	// .git, node_modules, and *.pyc are ignored.
	if res.Indexed != 3 {
		t.Errorf("Indexed = %d, want 3", res.Indexed)
	}

	got, err := ix.Find(context.Background(), "report", 10)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "report.md" {
		t.Errorf("Find(report) = %v", got)
	}
}

func TestClearWipesIndex(t *testing.T) {
	ix, base := newIndexer(t)
	root := filepath.Join(base, "data")
	seed(t, root, map[string]string{
		"a.txt": "x",
		"b.txt": "y",
	})

	if _, err := ix.Scan(context.Background(), root); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	cleared, err := ix.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cleared != 2 {
		t.Errorf("Clear = %d entries, want 2", cleared)
	}

	stats, err := ix.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalFiles != 0 {
		t.Errorf("TotalFiles = %d after clear, want 0", stats.TotalFiles)
	}

	// Search finds nothing, including through the FTS table.
	got, err := ix.Find(context.Background(), "a", 10)
	if err != nil {
		t.Fatalf("Find after clear failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Find after clear = %v, want none", got)
	}

	// A fresh scan repopulates the cleared index.
	res, err := ix.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("rescan failed: %v", err)
	}
	if res.Indexed != 2 {
		t.Errorf("rescan Indexed = %d, want 2", res.Indexed)
	}
}

func TestRescanPrunesDeleted(t *testing.T) {
	ix, base := newIndexer(t)
	root := filepath.Join(base, "data")
	seed(t, root, map[string]string{
		"a.txt": "x",
		"b.txt": "y",
	})

	if _, err := ix.Scan(context.Background(), root); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if err := os.Remove(filepath.Join(root, "b.txt")); err != nil {
		t.Fatal(err)
	}

	res, err := ix.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("rescan failed: %v", err)
	}
	if res.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", res.Pruned)
	}

	got, err := ix.Find(context.Background(), "b.txt", 10)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("deleted file still indexed: %v", got)
	}
}

func TestScanMissingRoot(t *testing.T) {
	ix, base := newIndexer(t)
	if _, err := ix.Scan(context.Background(), filepath.Join(base, "absent")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestFindEmptyQuery(t *testing.T) {
	ix, _ := newIndexer(t)
	if _, err := ix.Find(context.Background(), "   ", 10); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestStats(t *testing.T) {
	ix, base := newIndexer(t)
	root := filepath.Join(base, "data")
	seed(t, root, map[string]string{
		"a.go": "x",
		"b.go": "y",
		"c.md": "z",
	})
	if _, err := ix.Scan(context.Background(), root); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	stats, err := ix.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", stats.TotalFiles)
	}
	if stats.ByExt[".go"] != 2 {
		t.Errorf("ByExt[.go] = %d, want 2", stats.ByExt[".go"])
	}
}

func TestPickByNumbers(t *testing.T) {
	candidates := []*schema.FileRecord{
		{Path: "/a"}, {Path: "/b"}, {Path: "/c"},
	}

	got := pickByNumbers("2, 1", candidates)
	if len(got) != 2 || got[0].Path != "/b" || got[1].Path != "/a" {
		t.Errorf("pickByNumbers(2,1) = %v", paths(got))
	}

	if got := pickByNumbers("NONE", candidates); got != nil {
		t.Errorf("NONE should select nothing, got %v", paths(got))
	}

	// Out-of-range and duplicates ignored.
	got = pickByNumbers("3, 3, 9, 0", candidates)
	if len(got) != 1 || got[0].Path != "/c" {
		t.Errorf("pickByNumbers with junk = %v", paths(got))
	}
}

func paths(records []*schema.FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Path
	}
	return out
}

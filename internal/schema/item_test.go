package schema

import (
	"path/filepath"
	"testing"
	"time"
)

func validItem() *TrackedItem {
	return &TrackedItem{
		Alias:        "alpha",
		OriginalPath: filepath.Join(string(filepath.Separator), "home", "me", "projects", "alpha"),
		Status:       StatusActive,
		CreatedAt:    time.Now(),
	}
}

func TestTrackedItem_Validate_Success(t *testing.T) {
	if err := validItem().Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
}

func TestTrackedItem_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TrackedItem)
	}{
		{"empty alias", func(i *TrackedItem) { i.Alias = "" }},
		{"empty path", func(i *TrackedItem) { i.OriginalPath = "" }},
		{"relative path", func(i *TrackedItem) { i.OriginalPath = "relative/path" }},
		{"bad status", func(i *TrackedItem) { i.Status = "sideways" }},
		{"zero created_at", func(i *TrackedItem) { i.CreatedAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(item)
			if err := item.Validate(); err == nil {
				t.Errorf("Validate() succeeded, want error")
			}
		})
	}
}

func TestItemStatus_Valid(t *testing.T) {
	for _, s := range []ItemStatus{StatusActive, StatusGhostDeleted, StatusGhostMoved, StatusGhost} {
		if !s.Valid() {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}
	if ItemStatus("deleted").Valid() {
		t.Error("Valid(\"deleted\") = true, want false")
	}
}

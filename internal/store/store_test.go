package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clutter-sh/clutter/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "clutter.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	return s
}

func testItem(alias string) *schema.TrackedItem {
	return &schema.TrackedItem{
		Alias:        alias,
		OriginalPath: "/home/user/projects/" + alias,
		Status:       schema.StatusActive,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.InitSchema(); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestCreateAndGetItem(t *testing.T) {
	s := openTestStore(t)
	item := testItem("proj")
	if err := s.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	got, err := s.GetItem("proj")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.OriginalPath != item.OriginalPath {
		t.Errorf("OriginalPath = %q, want %q", got.OriginalPath, item.OriginalPath)
	}
	if got.Status != schema.StatusActive {
		t.Errorf("Status = %q, want %q", got.Status, schema.StatusActive)
	}
	if got.EverPulled {
		t.Error("new item should not be marked as pulled")
	}
	if got.LastPulledAt != nil {
		t.Error("new item should have no pull timestamp")
	}
}

func TestCreateItemDuplicate(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateItem(testItem("proj")); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	err := s.CreateItem(testItem("proj"))
	if !errors.Is(err, schema.ErrDuplicateAlias) {
		t.Errorf("duplicate create error = %v, want ErrDuplicateAlias", err)
	}
}

func TestGetItemUnknown(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetItem("missing")
	if !errors.Is(err, schema.ErrUnknownAlias) {
		t.Errorf("GetItem error = %v, want ErrUnknownAlias", err)
	}
}

func TestGetItemByPath(t *testing.T) {
	s := openTestStore(t)
	item := testItem("proj")
	if err := s.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	got, err := s.GetItemByPath(context.Background(), item.OriginalPath)
	if err != nil {
		t.Fatalf("GetItemByPath failed: %v", err)
	}
	if got.Alias != "proj" {
		t.Errorf("Alias = %q, want %q", got.Alias, "proj")
	}

	if _, err := s.GetItemByPath(context.Background(), "/nowhere"); !errors.Is(err, schema.ErrUnknownAlias) {
		t.Errorf("lookup of untracked path = %v, want ErrUnknownAlias", err)
	}
}

func TestUpdateItem(t *testing.T) {
	s := openTestStore(t)
	item := testItem("proj")
	if err := s.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	item.EverPulled = true
	item.LastPulledAt = &now
	if err := s.UpdateItem(item); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	got, err := s.GetItem("proj")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !got.EverPulled {
		t.Error("EverPulled not persisted")
	}
	if got.LastPulledAt == nil || !got.LastPulledAt.Equal(now) {
		t.Errorf("LastPulledAt = %v, want %v", got.LastPulledAt, now)
	}
}

func TestUpdateItemUnknown(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateItem(testItem("ghost"))
	if !errors.Is(err, schema.ErrUnknownAlias) {
		t.Errorf("UpdateItem error = %v, want ErrUnknownAlias", err)
	}
}

func TestRemoveItem(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateItem(testItem("proj")); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if err := s.RemoveItem("proj"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if _, err := s.GetItem("proj"); !errors.Is(err, schema.ErrUnknownAlias) {
		t.Errorf("GetItem after remove = %v, want ErrUnknownAlias", err)
	}
	if err := s.RemoveItem("proj"); !errors.Is(err, schema.ErrUnknownAlias) {
		t.Errorf("second RemoveItem = %v, want ErrUnknownAlias", err)
	}
}

func TestListItemsOrdered(t *testing.T) {
	s := openTestStore(t)
	for _, alias := range []string{"zeta", "alpha", "mid"} {
		if err := s.CreateItem(testItem(alias)); err != nil {
			t.Fatalf("CreateItem(%s) failed: %v", alias, err)
		}
	}
	items, err := s.ListItems(context.Background())
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, w := range want {
		if items[i].Alias != w {
			t.Errorf("items[%d].Alias = %q, want %q", i, items[i].Alias, w)
		}
	}
}

func TestMutate(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateItem(testItem("proj")); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	err := s.Mutate(context.Background(), "proj", func(it *schema.TrackedItem) (*schema.TrackedItem, error) {
		it.Status = schema.StatusGhostDeleted
		return it, nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	got, err := s.GetItem("proj")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Status != schema.StatusGhostDeleted {
		t.Errorf("Status = %q, want %q", got.Status, schema.StatusGhostDeleted)
	}
}

func TestMutateDelete(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateItem(testItem("proj")); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	err := s.Mutate(context.Background(), "proj", func(it *schema.TrackedItem) (*schema.TrackedItem, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if _, err := s.GetItem("proj"); !errors.Is(err, schema.ErrUnknownAlias) {
		t.Errorf("GetItem after delete = %v, want ErrUnknownAlias", err)
	}
}

func TestMutateCallbackError(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateItem(testItem("proj")); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	boom := errors.New("boom")
	err := s.Mutate(context.Background(), "proj", func(it *schema.TrackedItem) (*schema.TrackedItem, error) {
		it.Status = schema.StatusGhost
		return it, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Mutate error = %v, want boom", err)
	}

	got, err := s.GetItem("proj")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Status != schema.StatusActive {
		t.Errorf("Status after rolled-back mutate = %q, want %q", got.Status, schema.StatusActive)
	}
}

func TestMutateUnknown(t *testing.T) {
	s := openTestStore(t)
	err := s.Mutate(context.Background(), "missing", func(it *schema.TrackedItem) (*schema.TrackedItem, error) {
		return it, nil
	})
	if !errors.Is(err, schema.ErrUnknownAlias) {
		t.Errorf("Mutate error = %v, want ErrUnknownAlias", err)
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSQLiteLoadSave(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	got, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %v", got)
	}

	if err := db.Save(ctx, []string{"web", "db", "cache"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = db.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"web", "db", "cache"}) {
		t.Fatalf("unexpected names (order must follow save order): %v", got)
	}

	// Save replaces the full content
	if err := db.Save(ctx, []string{"db"}); err != nil {
		t.Fatalf("save2: %v", err)
	}
	got, _ = db.Load(ctx)
	if !reflect.DeepEqual(got, []string{"db"}) {
		t.Fatalf("expected [db], got %v", got)
	}
}

func TestSQLiteSaveIgnoresDuplicates(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.Save(ctx, []string{"web", "web"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := db.Load(ctx)
	if !reflect.DeepEqual(got, []string{"web"}) {
		t.Fatalf("expected [web], got %v", got)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	p := filepath.Join(t.TempDir(), "registry.db")
	db, err := New(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Save(context.Background(), []string{"web"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = db.Close()

	db2, err := New(p)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	got, err := db2.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"web"}) {
		t.Fatalf("expected [web], got %v", got)
	}
}

func TestNewEmptyPath(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

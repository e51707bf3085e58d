package file

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	f, err := New(filepath.Join(t.TempDir(), "containers.txt"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	names, err := f.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty set, got %v", names)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "containers.txt")
	f, err := New(p)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := f.Save(ctx, []string{"web", "db"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "web\ndb\n" {
		t.Fatalf("unexpected file content %q", b)
	}
	got, err := f.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"web", "db"}) {
		t.Fatalf("unexpected names %v", got)
	}

	// empty set writes an empty file
	if err := f.Save(ctx, nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	b, _ = os.ReadFile(p)
	if len(b) != 0 {
		t.Fatalf("expected empty file, got %q", b)
	}
}

func TestLoadSkipsBlankLinesAndCRLF(t *testing.T) {
	p := filepath.Join(t.TempDir(), "containers.txt")
	if err := os.WriteFile(p, []byte("web\r\n\r\n  db  \n\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	f, _ := New(p)
	got, err := f.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"web", "db"}) {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f, _ := New(filepath.Join(dir, "containers.txt"))
	for i := 0; i < 3; i++ {
		if err := f.Save(context.Background(), []string{"a"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the registry file, got %d entries", len(entries))
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/liangyou/bvm/pkg/models"
)

type backend struct {
	name string
	open func(t *testing.T) Registry
}

func backends() []backend {
	return []backend{
		{name: "json", open: func(t *testing.T) Registry {
			return NewFileRegistry(filepath.Join(t.TempDir(), "installations.json"))
		}},
		{name: "sqlite", open: func(t *testing.T) Registry {
			r, err := NewSQLiteRegistry(filepath.Join(t.TempDir(), "bvm.db"))
			if err != nil {
				t.Fatalf("NewSQLiteRegistry failed: %v", err)
			}
			t.Cleanup(func() { r.Close() })
			return r
		}},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, r Registry)) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			fn(t, b.open(t))
		})
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r Registry) {
		ctx := context.Background()
		item := models.Installation{
			Path:       "/opt/blender-4.2/blender",
			Version:    "4.2.0",
			BigVersion: "4.2",
			BuildHash:  "a51f293548ad",
			BuildDate:  "2024-07-16 06:29:21",
			IsValid:    true,
			AddedAt:    time.Date(2024, time.July, 20, 10, 30, 0, 0, time.UTC),
			VerifiedAt: time.Date(2024, time.July, 20, 10, 31, 0, 0, time.UTC),
		}

		if err := r.Add(ctx, item); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		loaded, err := r.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(loaded) != 1 {
			t.Fatalf("expected 1 installation, got %d", len(loaded))
		}
		if !reflect.DeepEqual(item, loaded[0]) {
			t.Fatalf("round trip mismatch\nexpected: %#v\nactual: %#v", item, loaded[0])
		}

		got, err := r.Get(ctx, item.Path)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.BuildHash != item.BuildHash {
			t.Fatalf("unexpected record: %#v", got)
		}
	})
}

func TestRegistryAddDuplicateKeepsOriginal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r Registry) {
		ctx := context.Background()
		original := models.Installation{Path: "/opt/b/blender", Version: "4.1.0", IsValid: true}
		if err := r.Add(ctx, original); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		err := r.Add(ctx, models.Installation{Path: original.Path, Version: "9.9.9"})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}

		got, err := r.Get(ctx, original.Path)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Version != "4.1.0" || !got.IsValid {
			t.Fatalf("existing record altered: %#v", got)
		}
	})
}

func TestRegistryUpdateMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r Registry) {
		err := r.Update(context.Background(), models.Installation{Path: "/nope"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := r.Get(context.Background(), "/nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound from Get, got %v", err)
		}
	})
}

func TestRegistryUpdateActiveDeactivatesOthers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r Registry) {
		ctx := context.Background()
		mustAdd(t, r, models.Installation{Path: "/a", IsActive: true})
		mustAdd(t, r, models.Installation{Path: "/b"})
		mustAdd(t, r, models.Installation{Path: "/c"})

		if err := r.Update(ctx, models.Installation{Path: "/b", IsValid: true, IsActive: true}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		items, err := r.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if n := models.CountActive(items); n != 1 {
			t.Fatalf("expected one active record, got %d: %#v", n, items)
		}
		if got, _ := r.Get(ctx, "/b"); !got.IsActive {
			t.Fatalf("expected /b active: %#v", got)
		}
	})
}

func TestRegistryRemove(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r Registry) {
		ctx := context.Background()
		mustAdd(t, r, models.Installation{Path: "/a", Version: "3.6.0"})
		mustAdd(t, r, models.Installation{Path: "/b", Version: "4.2.0", IsActive: true})

		if err := r.Remove(ctx, "/a"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if err := r.Remove(ctx, "/missing"); err != nil {
			t.Fatalf("Remove of missing path should be a no-op, got %v", err)
		}

		items, err := r.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(items) != 1 || items[0].Path != "/b" || !items[0].IsActive || items[0].Version != "4.2.0" {
			t.Fatalf("unexpected records after remove: %#v", items)
		}

		exists, err := r.ExistsByPath(ctx, "/a")
		if err != nil || exists {
			t.Fatalf("ExistsByPath(/a) = %v, %v", exists, err)
		}
		exists, err = r.ExistsByPath(ctx, "/b")
		if err != nil || !exists {
			t.Fatalf("ExistsByPath(/b) = %v, %v", exists, err)
		}
	})
}

func TestRegistryDeactivateOthersAndSetActive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r Registry) {
		ctx := context.Background()
		mustAdd(t, r, models.Installation{Path: "/a", IsActive: true})
		mustAdd(t, r, models.Installation{Path: "/b"})

		if err := r.DeactivateOthers(ctx, "/b"); err != nil {
			t.Fatalf("DeactivateOthers failed: %v", err)
		}
		items, _ := r.List(ctx)
		if n := models.CountActive(items); n != 0 {
			t.Fatalf("expected no active record, got %d", n)
		}

		if err := r.SetActive(ctx, "/a"); err != nil {
			t.Fatalf("SetActive failed: %v", err)
		}
		if got, _ := r.Get(ctx, "/a"); !got.IsActive {
			t.Fatalf("expected /a active after SetActive")
		}

		if err := r.SetActive(ctx, "/missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if got, _ := r.Get(ctx, "/a"); !got.IsActive {
			t.Fatalf("failed SetActive must not change state")
		}

		if err := r.SetActive(ctx, ""); err != nil {
			t.Fatalf("SetActive(\"\") failed: %v", err)
		}
		items, _ = r.List(ctx)
		if n := models.CountActive(items); n != 0 {
			t.Fatalf("expected no active record, got %d", n)
		}
	})
}

func TestRegistryConcurrentActivationKeepsSingleActive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r Registry) {
		ctx := context.Background()
		paths := []string{"/a", "/b", "/c", "/d"}
		for _, p := range paths {
			mustAdd(t, r, models.Installation{Path: p})
		}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p := paths[i%len(paths)]
				_ = r.Update(ctx, models.Installation{Path: p, IsValid: true, IsActive: true})
				items, err := r.List(ctx)
				if err == nil && models.CountActive(items) > 1 {
					t.Errorf("observed %d active records", models.CountActive(items))
				}
			}(i)
		}
		wg.Wait()

		items, err := r.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if n := models.CountActive(items); n != 1 {
			t.Fatalf("expected exactly one active record, got %d", n)
		}
	})
}

func TestSQLiteRegistryPathWithURIMetacharacters(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("? is not allowed in windows file names")
	}

	dir := filepath.Join(t.TempDir(), "a?b#c%20d")
	path := filepath.Join(dir, "bvm.db")
	r, err := NewSQLiteRegistry(path)
	if err != nil {
		t.Fatalf("NewSQLiteRegistry failed: %v", err)
	}
	defer r.Close()
	mustAdd(t, r, models.Installation{Path: "/opt/blender/blender"})

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database not created at %s: %v", path, err)
	}
	entries, err := os.ReadDir(filepath.Dir(dir))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only %s next to the database dir, got %d entries", filepath.Base(dir), len(entries))
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := Open(models.Config{RegistryBackend: "postgres"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	if got := NormalizePath("  "); got != "" {
		t.Fatalf("expected empty path, got %q", got)
	}
	got := NormalizePath("/opt/blender/../blender/blender")
	if got != filepath.Clean("/opt/blender/blender") {
		t.Fatalf("unexpected normalized path %q", got)
	}
}

func mustAdd(t *testing.T, r Registry, item models.Installation) {
	t.Helper()
	if err := r.Add(context.Background(), item); err != nil {
		t.Fatalf("Add(%s) failed: %v", item.Path, err)
	}
}

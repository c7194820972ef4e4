package installation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liangyou/bvm/internal/verify"
	"github.com/liangyou/bvm/pkg/models"
)

func seed(t *testing.T, items ...models.Installation) *Lister {
	t.Helper()
	reg := newRegistry(t)
	for _, item := range items {
		if err := reg.Add(context.Background(), item); err != nil {
			t.Fatalf("seed %s: %v", item.Path, err)
		}
	}
	return NewLister(reg)
}

func TestInstallationsSortedByVersion(t *testing.T) {
	t.Parallel()

	lister := seed(t,
		models.Installation{Path: "/opt/b3.6/blender", Version: "3.6.5", IsValid: true},
		models.Installation{Path: "/opt/broken/blender"},
		models.Installation{Path: "/opt/b4.10/blender", Version: "4.10.0", IsValid: true},
		models.Installation{Path: "/opt/b4.2/blender", Version: "4.2.0", IsValid: true, IsActive: true},
	)

	items, err := lister.Installations(context.Background())
	if err != nil {
		t.Fatalf("Installations err: %v", err)
	}
	var got []string
	for _, item := range items {
		got = append(got, item.Version)
	}
	want := "4.10.0,4.2.0,3.6.5,"
	if strings.Join(got, ",") != want {
		t.Fatalf("order = %v, want %s", got, want)
	}
}

func TestActiveValidatesExecutable(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "blender")
	lister := seed(t, models.Installation{Path: missing, Version: "4.2.0", IsValid: true, IsActive: true})

	item, err := lister.Active(context.Background())
	if !errors.Is(err, verify.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if item == nil || item.Path != missing {
		t.Fatalf("expected the stale active record, got %+v", item)
	}

	present := writeExecutable(t, t.TempDir(), "blender")
	lister = seed(t, models.Installation{Path: present, IsActive: true})
	item, err = lister.Active(context.Background())
	if err != nil || item == nil {
		t.Fatalf("Active = %+v, %v", item, err)
	}

	lister = seed(t, models.Installation{Path: present})
	item, err = lister.Active(context.Background())
	if err != nil || item != nil {
		t.Fatalf("expected no active installation, got %+v, %v", item, err)
	}
}

func TestFormatInstallation(t *testing.T) {
	t.Parallel()

	out := FormatInstallation(models.Installation{
		Path: "/opt/blender/blender", Version: "4.2.0", BuildHash: "abcd1234",
		BuildDate: "2024-07-16", IsValid: true, IsActive: true,
	})
	if !strings.HasPrefix(out, "*") || !strings.Contains(out, "4.2.0") || !strings.Contains(out, "/opt/blender/blender") {
		t.Fatalf("format missing fields: %s", out)
	}

	out = FormatInstallation(models.Installation{Path: "/x/blender"})
	if !strings.Contains(out, "invalid") {
		t.Fatalf("invalid marker missing: %s", out)
	}
}

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want int
	}{
		{"4.2.0", "4.2", 0},
		{"4.10", "4.2", 1},
		{"3.6.5", "4.0.0", -1},
		{"", "1.0", -1},
	}
	for _, c := range cases {
		if got := compareVersions(c.a, c.b); got != c.want {
			t.Fatalf("compareVersions(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

package workdir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func getwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	return wd
}

// sameDir compares directories after resolving symlinks, since temp
// directories are symlinked on some platforms.
func sameDir(t *testing.T, a, b string) bool {
	t.Helper()
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		t.Fatal(err)
	}
	return ra == rb
}

func TestEnterExit(t *testing.T) {
	before := getwd(t)
	dir := t.TempDir()

	g, err := Enter(dir)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if !sameDir(t, getwd(t), dir) {
		t.Errorf("cwd = %q, want %q", getwd(t), dir)
	}
	if g.Original() != before {
		t.Errorf("Original() = %q, want %q", g.Original(), before)
	}
	if err := g.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if getwd(t) != before {
		t.Errorf("cwd after Exit = %q, want %q", getwd(t), before)
	}
	// A second Exit is a no-op.
	if err := g.Exit(); err != nil {
		t.Errorf("second Exit: %v", err)
	}
}

func TestEnter_MissingDir(t *testing.T) {
	before := getwd(t)
	_, err := Enter(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if getwd(t) != before {
		t.Errorf("cwd = %q, want %q", getwd(t), before)
	}
	// The failed Enter must not leave the scope marked active.
	g, err := Enter(t.TempDir())
	if err != nil {
		t.Fatalf("Enter after failure: %v", err)
	}
	_ = g.Exit()
}

func TestEnter_Nested(t *testing.T) {
	g, err := Enter(t.TempDir())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	defer g.Exit()

	if _, err := Enter(t.TempDir()); !errors.Is(err, ErrActive) {
		t.Errorf("nested Enter error = %v, want ErrActive", err)
	}
}

func TestWithin_RestoresOnError(t *testing.T) {
	before := getwd(t)
	dir := t.TempDir()
	boom := errors.New("boom")

	err := Within(dir, func() error {
		if !sameDir(t, getwd(t), dir) {
			t.Errorf("cwd inside scope = %q, want %q", getwd(t), dir)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Within error = %v, want boom", err)
	}
	if getwd(t) != before {
		t.Errorf("cwd after Within = %q, want %q", getwd(t), before)
	}
}

func TestWithin_RestoresOnPanic(t *testing.T) {
	before := getwd(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = Within(t.TempDir(), func() error {
			panic("step exploded")
		})
	}()

	if getwd(t) != before {
		t.Errorf("cwd after panic = %q, want %q", getwd(t), before)
	}
	g, err := Enter(t.TempDir())
	if err != nil {
		t.Fatalf("Enter after panic: %v", err)
	}
	_ = g.Exit()
}

package report

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleRun(id string) *RunResult {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &RunResult{
		ID:       id,
		Kind:     Scaffold,
		Inputs:   map[string]string{"manufacturer_name": "Acme Labs", "instrument_name": "Titrator X1"},
		BaseDir:  "/work/acme",
		Started:  started,
		Finished: started.Add(3 * time.Second),
		Success:  false,
		Reason:   "CommandFailed",
		Message:  "FAILURE: CommandFailed: Error creating solution.",
		Steps: []StepRecord{
			{Name: "check-template", Status: "pass", Command: "dotnet new list", Stdout: "GBG_FAST  Driver\n"},
			{Name: "create-solution", Status: "fail", Reason: "CommandFailed", Command: "dotnet new sln -n AcmeLabs.TitratorX1", ExitCode: 1, Stderr: "disk full\n"},
			{Name: "instantiate-template", Status: "skipped"},
		},
	}
}

func TestDiskStore_RoundTrip(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	in := sampleRun("run-1")
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := s.Load("run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Reason != in.Reason || len(out.Steps) != 3 || out.Steps[1].Stderr != "disk full\n" {
		t.Errorf("Load = %+v, want %+v", out, in)
	}
	if !out.Started.Equal(in.Started) {
		t.Errorf("Started = %s, want %s", out.Started, in.Started)
	}
}

func TestDiskStore_LazyTempDir(t *testing.T) {
	s := NewDiskStore("")
	if err := s.Save(sampleRun("run-lazy")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Load("run-lazy"); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestDiskStore_NotFound(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	_, err := s.Load("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load error = %v, want ErrNotFound", err)
	}
}

func TestDiskStore_RejectsPathIDs(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	if _, err := s.Load("../etc/passwd"); err == nil {
		t.Error("expected error for a path-like run id")
	}
}

// countingStore records how often the backing store is consulted.
type countingStore struct {
	runs  map[string]*RunResult
	loads int
}

func (c *countingStore) Save(r *RunResult) error {
	if c.runs == nil {
		c.runs = make(map[string]*RunResult)
	}
	c.runs[r.ID] = r
	return nil
}

func (c *countingStore) Load(id string) (*RunResult, error) {
	c.loads++
	if r, ok := c.runs[id]; ok {
		return r, nil
	}
	return nil, ErrNotFound
}

func TestLRUStore_HitsCache(t *testing.T) {
	back := &countingStore{}
	s := NewLRUStore(2, back)
	if err := s.Save(sampleRun("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("a"); err != nil {
		t.Fatal(err)
	}
	if back.loads != 0 {
		t.Errorf("backing loads = %d, want 0", back.loads)
	}
}

func TestLRUStore_EvictsOldest(t *testing.T) {
	back := &countingStore{}
	s := NewLRUStore(2, back)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(sampleRun(id)); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}

	// "a" was evicted and must come from the backing store.
	if _, err := s.Load("a"); err != nil {
		t.Fatal(err)
	}
	if back.loads != 1 {
		t.Errorf("backing loads = %d, want 1", back.loads)
	}
	// Loading "a" promoted it and evicted "b".
	if _, err := s.Load("c"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("b"); err != nil {
		t.Fatal(err)
	}
	if back.loads != 2 {
		t.Errorf("backing loads = %d, want 2", back.loads)
	}
}

func TestLRUStore_MissPropagatesError(t *testing.T) {
	s := NewLRUStore(1, &countingStore{})
	if _, err := s.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "history", "runs.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	first := sampleRun("first")
	second := sampleRun("second")
	second.Started = first.Started.Add(time.Hour)
	second.Success = true
	for _, r := range []*RunResult{first, second} {
		if err := s.Save(r); err != nil {
			t.Fatalf("Save(%s): %v", r.ID, err)
		}
	}
	// Saving again replaces instead of failing on the primary key.
	if err := s.Save(first); err != nil {
		t.Fatalf("re-Save: %v", err)
	}

	got, err := s.Load("second")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Success || got.Inputs["instrument_name"] != "Titrator X1" {
		t.Errorf("Load = %+v", got)
	}

	ids, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(ids) != 2 || ids[0] != "second" {
		t.Errorf("Recent = %v, want [second first]", ids)
	}

	if _, err := s.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFormat(t *testing.T) {
	text := Format(sampleRun("run-9"))
	for _, want := range []string{
		"Run: run-9 (scaffold)",
		"Status: FAILURE (CommandFailed)",
		"create-solution: fail (CommandFailed)",
		"$ dotnet new sln -n AcmeLabs.TitratorX1",
		"disk full",
		"instantiate-template: skipped",
		"FAILURE: CommandFailed",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Format output missing %q:\n%s", want, text)
		}
	}
}

func TestExpect(t *testing.T) {
	r := sampleRun("x")
	if err := r.Expect(Scaffold); err != nil {
		t.Errorf("Expect(Scaffold) = %v", err)
	}
	if err := r.Expect(Repo); err == nil {
		t.Error("Expect(Repo) = nil, want error")
	}
}

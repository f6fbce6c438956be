package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{MaxOutput: 1 << 20, WaitDelay: 500 * time.Millisecond}
}

func TestRun_Success(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Spec{Name: "echo", Args: []string{"hello"}, Timeout: 10 * time.Second})
	if !res.Succeeded() {
		t.Fatalf("Succeeded = false, result = %+v", res)
	}
	if !strings.Contains(string(res.Stdout), "hello") {
		t.Errorf("Stdout = %q, want to contain 'hello'", res.Stdout)
	}
	if res.ID == "" {
		t.Error("ID is empty")
	}
	if res.Pid == 0 {
		t.Error("Pid = 0, want the started process id")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Spec{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.TimedOut || res.StartErr != nil {
		t.Errorf("unexpected classification: %+v", res)
	}
	if !strings.Contains(string(res.Stderr), "boom") {
		t.Errorf("Stderr = %q, want to contain 'boom'", res.Stderr)
	}
}

func TestRun_BinaryNotFound(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Spec{Name: "nonexistent-binary-xyz-123"})
	if res.StartErr == nil {
		t.Fatal("StartErr = nil, want error for missing binary")
	}
	if res.Started() {
		t.Error("Started = true, want false")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if !strings.Contains(res.StartErr.Error(), "nonexistent-binary-xyz-123") {
		t.Errorf("StartErr = %q, want to mention the binary name", res.StartErr)
	}
}

func TestRun_EmptyName(t *testing.T) {
	r := newTestRunner(t)
	res := r.Run(context.Background(), Spec{})
	if !errors.Is(res.StartErr, ErrEmptyCommand) {
		t.Errorf("StartErr = %v, want ErrEmptyCommand", res.StartErr)
	}
}

func TestRun_Dir(t *testing.T) {
	r := newTestRunner(t)
	dir := t.TempDir()
	res := r.Run(context.Background(), Spec{Name: "pwd", Dir: dir})
	if !res.Succeeded() {
		t.Fatalf("Succeeded = false, result = %+v", res)
	}
	if !strings.Contains(string(res.Stdout), dir) {
		t.Errorf("Stdout = %q, want to contain %q", res.Stdout, dir)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := newTestRunner(t)
	start := time.Now()
	res := r.Run(context.Background(), Spec{
		Name:    "sh",
		Args:    []string{"-c", "echo partial; exec sleep 10"},
		Timeout: 200 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if !res.TimedOut {
		t.Fatalf("TimedOut = false, result = %+v", res)
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if elapsed > 200*time.Millisecond+r.WaitDelay+time.Second {
		t.Errorf("Run took %s, want it bounded by timeout plus wait delay", elapsed)
	}
	if !strings.Contains(string(res.Stdout), "partial") {
		t.Errorf("Stdout = %q, want partial output before the kill", res.Stdout)
	}
}

func TestRun_Canceled(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res := r.Run(ctx, Spec{Name: "sleep", Args: []string{"10"}, Timeout: time.Minute})
	if !res.Canceled {
		t.Fatalf("Canceled = false, result = %+v", res)
	}
	if res.TimedOut {
		t.Error("TimedOut = true, want false for caller cancellation")
	}
}

func TestRun_DrainsBothStreams(t *testing.T) {
	r := newTestRunner(t)
	// Each stream carries far more than a pipe buffer; a runner that
	// drained only one of them would hang until the timeout.
	script := "dd if=/dev/zero bs=1024 count=512 2>/dev/null; dd if=/dev/zero bs=1024 count=512 1>&2 2>/dev/null"
	res := r.Run(context.Background(), Spec{
		Name:    "sh",
		Args:    []string{"-c", "(" + script + ")"},
		Timeout: 10 * time.Second,
	})
	if res.TimedOut {
		t.Fatal("TimedOut = true, want both streams drained")
	}
	if len(res.Stdout) != 512*1024 {
		t.Errorf("len(Stdout) = %d, want %d", len(res.Stdout), 512*1024)
	}
}

func TestRun_OutputTruncation(t *testing.T) {
	r := newTestRunner(t)
	r.MaxOutput = 100

	res := r.Run(context.Background(), Spec{Name: "sh", Args: []string{"-c", "dd if=/dev/zero bs=200 count=1 2>/dev/null"}})
	if !res.Succeeded() {
		t.Fatalf("Succeeded = false, result = %+v", res)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if len(res.Stdout) > r.MaxOutput {
		t.Errorf("len(Stdout) = %d, want <= %d", len(res.Stdout), r.MaxOutput)
	}
}

func TestSpec_String(t *testing.T) {
	s := Spec{Name: "dotnet", Args: []string{"new", "sln", "-n", "Acme Labs.X1"}}
	got := s.String()
	want := `dotnet new sln -n 'Acme Labs.X1'`
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

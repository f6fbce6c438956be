//go:build unix

package workflow

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deixis/driverkit/internal/config"
	"github.com/deixis/driverkit/internal/runner"
)

// fakeDotnet mimics the three dotnet subcommands used by the scaffold and
// records each invocation in $FAKE_DOTNET_LOG.
const fakeDotnet = `#!/bin/sh
echo "$PWD $*" >> "$FAKE_DOTNET_LOG"
case "$1 $2" in
"new list") echo "GBG Fast Driver  GBG_FAST  [C#]" ;;
"new sln") touch "$4.sln" ;;
"new GBG_FAST") touch "$4.csproj" ;;
"sln add") test -f "$3" || { echo "project $3 not found" >&2; exit 1; } ;;
*) echo "unexpected: $*" >&2; exit 2 ;;
esac
`

func TestCreateBaseDriver_EndToEnd(t *testing.T) {
	bin := t.TempDir()
	tool := filepath.Join(bin, "dotnet")
	if err := os.WriteFile(tool, []byte(fakeDotnet), 0o755); err != nil {
		t.Fatal(err)
	}
	callLog := filepath.Join(t.TempDir(), "calls.log")
	t.Setenv("FAKE_DOTNET_LOG", callLog)

	var buf bytes.Buffer
	base := t.TempDir()
	e := &Engine{
		Config:  &config.Config{Tool: tool},
		Runner:  &runner.Runner{},
		BaseDir: base,
		Log:     log.New(&buf, "", 0),
	}
	before := getwd(t)

	out := e.CreateBaseDriver(context.Background(), "Acme Labs", "Titrator X1")

	if !out.OK() {
		t.Fatalf("OK = false: %s\nlogs:\n%s", out, buf.String())
	}
	if getwd(t) != before {
		t.Errorf("cwd = %q, want %q", getwd(t), before)
	}
	for _, p := range []string{
		filepath.Join(base, "AcmeLabs.TitratorX1.sln"),
		filepath.Join(base, "src", "AcmeLabs.TitratorX1.Driver.csproj"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}

	data, err := os.ReadFile(callLog)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("calls = %q, want 4", lines)
	}
	if !strings.HasSuffix(lines[2], "new GBG_FAST -n AcmeLabs.TitratorX1.Driver -I TitratorX1 -M AcmeLabs") {
		t.Errorf("template call = %q", lines[2])
	}
	cwd := strings.Fields(lines[2])[0]
	if !sameDir(t, cwd, filepath.Join(base, "src")) {
		t.Errorf("template cwd = %q, want src", cwd)
	}
}

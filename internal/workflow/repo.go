package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deixis/driverkit/internal/config"
	"github.com/deixis/driverkit/internal/report"
	"github.com/deixis/driverkit/internal/runner"
	"github.com/deixis/driverkit/internal/tracing"
)

// StepCreateRepo is the single step of CreateDriverRepo.
const StepCreateRepo = "create-repo"

// RepoRequest holds the inputs of CreateDriverRepo.
type RepoRequest struct {
	Manufacturer string
	Instrument   string
	BasePath     string // overrides the environment value when set
}

// ScriptLocator returns the path of the repository-creation script.
type ScriptLocator func() (string, error)

// FixedScript always locates path.
func FixedScript(path string) ScriptLocator {
	return func() (string, error) {
		return path, nil
	}
}

// InstallRelative locates rel under the directory that is levels parents
// above the running executable's directory.
func InstallRelative(levels int, rel ...string) ScriptLocator {
	return func() (string, error) {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locating executable: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return installPath(filepath.Dir(exe), levels, rel...), nil
	}
}

func installPath(dir string, levels int, rel ...string) string {
	for range levels {
		dir = filepath.Dir(dir)
	}
	return filepath.Join(append([]string{dir}, rel...)...)
}

func (e *Engine) scriptLocator() ScriptLocator {
	if e.LocateScript != nil {
		return e.LocateScript
	}
	cfg := e.cfg()
	if cfg.Repo.Script != "" {
		return FixedScript(cfg.Repo.Script)
	}
	return InstallRelative(cfg.InstallLevels(), config.DefaultScriptPath...)
}

// CreateDriverRepo runs the repository-creation script for a new driver.
// Missing configuration is reported before any process is started.
func (e *Engine) CreateDriverRepo(ctx context.Context, req RepoRequest) *Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := newOutcome(report.Repo, []string{StepCreateRepo}, map[string]string{
		"manufacturer_name":   req.Manufacturer,
		"instrument_name":     req.Instrument,
		"github_as_code_path": req.BasePath,
	})
	ctx, span := tracing.Start(ctx, "create_driver_repo", map[string]string{
		"run_id":       out.RunResult.ID,
		"manufacturer": req.Manufacturer,
		"instrument":   req.Instrument,
	})
	defer func() { span.End(out.Err()) }()

	cfg := e.cfg()
	manufacturer := strings.TrimSpace(req.Manufacturer)
	instrument := strings.TrimSpace(req.Instrument)
	if manufacturer == "" || instrument == "" {
		return e.finish(out.abort(&Error{
			Reason:  ConfigurationError,
			Message: "Manufacturer and instrument names must not be empty.",
		}))
	}

	basePath := req.BasePath
	if basePath == "" {
		basePath = e.getenv(cfg.BasePathEnv())
	}
	if basePath == "" {
		return e.finish(out.abort(&Error{
			Reason:  ConfigurationError,
			Message: fmt.Sprintf("GitHubAsCodePath is not provided and environment variable %s is not set.", cfg.BasePathEnv()),
		}))
	}
	out.RunResult.BaseDir = basePath

	script, err := e.scriptLocator()()
	if err != nil {
		return e.finish(out.abort(&Error{
			Reason:  ResolutionError,
			Message: "Unable to determine the repository script location.",
			Detail:  err.Error(),
		}))
	}
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return e.finish(out.abort(&Error{
			Reason:  ResolutionError,
			Message: fmt.Sprintf("Script not found at %s", script),
		}))
	}

	st := step{
		name: StepCreateRepo,
		spec: runner.Spec{
			Name: cfg.Interpreter(),
			Args: []string{
				"-NoProfile",
				"-ExecutionPolicy", "Bypass",
				"-File", script,
				"-InstrumentName", instrument,
				"-ManufacturerName", manufacturer,
				"-GitHubAsCodePath", basePath,
			},
			Timeout: cfg.RepoTimeout(),
		},
		doing: fmt.Sprintf("executing %s", filepath.Base(script)),
	}
	sr := e.execute(ctx, st)
	if out.record(0, sr) {
		out.State = Done
		out.Message = sr.Stdout
		if strings.TrimSpace(out.Message) == "" {
			out.Message = fmt.Sprintf("Driver repository for %s %s created under %s.", manufacturer, instrument, basePath)
		}
	}
	return e.finish(out)
}

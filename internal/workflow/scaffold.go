package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/deixis/driverkit/internal/report"
	"github.com/deixis/driverkit/internal/runner"
	"github.com/deixis/driverkit/internal/tracing"
	"github.com/deixis/driverkit/internal/workdir"
)

// Scaffold step names, in execution order.
const (
	StepCheckTemplate       = "check-template"
	StepCreateSolution      = "create-solution"
	StepInstantiateTemplate = "instantiate-template"
	StepRegisterProject     = "register-project"
)

var scaffoldSteps = []string{
	CheckingPrerequisite:  StepCheckTemplate,
	CreatingSolution:      StepCreateSolution,
	InstantiatingTemplate: StepInstantiateTemplate,
	RegisteringProject:    StepRegisterProject,
}

// DriverNames are the identifier-safe forms of the human-readable names.
type DriverNames struct {
	Manufacturer string
	Instrument   string
}

// NewDriverNames removes all whitespace from both names.
func NewDriverNames(manufacturer, instrument string) DriverNames {
	return DriverNames{
		Manufacturer: strings.Join(strings.Fields(manufacturer), ""),
		Instrument:   strings.Join(strings.Fields(instrument), ""),
	}
}

// Solution returns the solution name, e.g. AcmeLabs.TitratorX1.
func (n DriverNames) Solution() string {
	return n.Manufacturer + "." + n.Instrument
}

// Project returns the driver project name, e.g. AcmeLabs.TitratorX1.Driver.
func (n DriverNames) Project() string {
	return n.Solution() + ".Driver"
}

// CreateBaseDriver creates a solution in the base directory, instantiates
// the driver template into src/, and adds the project to the solution.
// The first failing step stops the pipeline; artifacts created by earlier
// steps are left in place.
func (e *Engine) CreateBaseDriver(ctx context.Context, manufacturer, instrument string) *Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := newOutcome(report.Scaffold, scaffoldSteps, map[string]string{
		"manufacturer_name": manufacturer,
		"instrument_name":   instrument,
	})
	ctx, span := tracing.Start(ctx, "create_base_driver", map[string]string{
		"run_id":       out.RunResult.ID,
		"manufacturer": manufacturer,
		"instrument":   instrument,
	})
	defer func() { span.End(out.Err()) }()

	names := NewDriverNames(manufacturer, instrument)
	if names.Manufacturer == "" || names.Instrument == "" {
		return e.finish(out.abort(&Error{
			Reason:  ConfigurationError,
			Message: "Manufacturer and instrument names must not be empty.",
		}))
	}

	base, err := e.baseDir()
	if err != nil {
		return e.finish(out.abort(&Error{
			Reason:  ResolutionError,
			Message: "Could not determine the driver repository directory.",
			Detail:  err.Error(),
		}))
	}
	out.RunResult.BaseDir = base

	e.logf("[LOG] Starting driver scaffold for %s in %s", names.Project(), base)
	for out.State = CheckingPrerequisite; !out.State.Terminal(); {
		var sr StepResult
		switch out.State {
		case CheckingPrerequisite:
			sr = e.CheckPrerequisite(ctx)
		case CreatingSolution:
			sr = e.execute(ctx, e.solutionStep(base, names))
		case InstantiatingTemplate:
			sr = e.instantiateTemplate(ctx, base, names)
		case RegisteringProject:
			sr = e.execute(ctx, e.registerStep(base, names))
		}
		if out.record(int(out.State), sr) {
			out.State++
		}
	}

	if out.State == Done {
		out.Message = fmt.Sprintf("Base driver '%s' has been successfully created! "+
			"The solution '%s.sln' has been created with the driver project added. "+
			"You can find the driver project in the 'src' folder. "+
			"The project is ready for development and includes all necessary boilerplate code from the %s template.",
			names.Project(), names.Solution(), e.cfg().TemplateName())
	}
	return e.finish(out)
}

// CheckPrerequisite lists the installed templates and verifies that the
// driver template is among them. It creates nothing.
func (e *Engine) CheckPrerequisite(ctx context.Context) StepResult {
	cfg := e.cfg()
	template := cfg.TemplateName()
	e.logf("[LOG] Checking for %s template...", template)
	return e.execute(ctx, step{
		name: StepCheckTemplate,
		spec: runner.Spec{
			Name:    cfg.ToolName(),
			Args:    cfg.ListArgs(),
			Timeout: cfg.CheckTimeout(),
		},
		doing: "checking for installed templates",
		check: func(res *runner.Result) *Error {
			if res.ExitCode == 0 && strings.Contains(string(res.Stdout), template) {
				return nil
			}
			return &Error{
				Reason: PrerequisiteMissing,
				Message: fmt.Sprintf("The %s template is not installed. Please install it using '%s new --install %s'. "+
					"For more information on installing the template, see the README at %s",
					template, cfg.ToolName(), template, cfg.TemplateReadme()),
				Detail: string(res.Stderr),
			}
		},
	})
}

func (e *Engine) solutionStep(base string, names DriverNames) step {
	cfg := e.cfg()
	return step{
		name: StepCreateSolution,
		spec: runner.Spec{
			Name:    cfg.ToolName(),
			Args:    []string{"new", "sln", "-n", names.Solution()},
			Dir:     base,
			Timeout: cfg.SolutionTimeout(),
		},
		doing: fmt.Sprintf("creating solution '%s'", names.Solution()),
	}
}

// templateStep runs in the process working directory, which
// instantiateTemplate has moved into src/.
func (e *Engine) templateStep(names DriverNames) step {
	cfg := e.cfg()
	template := cfg.TemplateName()
	return step{
		name: StepInstantiateTemplate,
		spec: runner.Spec{
			Name: cfg.ToolName(),
			Args: []string{
				"new", template,
				"-n", names.Project(),
				"-I", names.Instrument,
				"-M", names.Manufacturer,
			},
			Timeout: cfg.TemplateTimeout(),
		},
		doing: fmt.Sprintf("creating driver project '%s' from the %s template", names.Project(), template),
	}
}

func (e *Engine) registerStep(base string, names DriverNames) step {
	cfg := e.cfg()
	project := filepath.Join("src", names.Project()+".csproj")
	return step{
		name: StepRegisterProject,
		spec: runner.Spec{
			Name:    cfg.ToolName(),
			Args:    []string{"sln", "add", project},
			Dir:     base,
			Timeout: cfg.RegisterTimeout(),
		},
		doing: fmt.Sprintf("adding '%s' to the solution", project),
	}
}

// instantiateTemplate runs the template step inside src/. The previous
// working directory is restored however the step ends.
func (e *Engine) instantiateTemplate(ctx context.Context, base string, names DriverNames) StepResult {
	st := e.templateStep(names)
	src := filepath.Join(base, "src")

	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		e.logf("[LOG] Creating src directory...")
	}
	if err := os.MkdirAll(src, 0o755); err != nil {
		return e.failStep(st, &Error{
			Reason:  ResolutionError,
			Message: fmt.Sprintf("Could not create %s.", src),
			Detail:  err.Error(),
		})
	}

	var sr StepResult
	entered := false
	err := workdir.Within(src, func() error {
		entered = true
		sr = e.execute(ctx, st)
		return nil
	})
	switch {
	case err != nil && !entered:
		return e.failStep(st, &Error{
			Reason:  ResolutionError,
			Message: fmt.Sprintf("Could not enter %s.", src),
			Detail:  err.Error(),
		})
	case err != nil:
		e.logf("[ERROR] %v", err)
		if sr.Status == StatusPass {
			sr.Status = StatusFail
			sr.Failure = &Error{
				Step:    st.name,
				Reason:  ResolutionError,
				Message: "Could not restore the original working directory.",
				Detail:  err.Error(),
			}
		}
	default:
		e.logf("[LOG] Restored original directory.")
	}
	return sr
}

// failStep records a failure that happened without running st.
func (e *Engine) failStep(st step, f *Error) StepResult {
	f.Step = st.name
	e.logf("[ERROR] %s", f.Message)
	return StepResult{
		Name:     st.name,
		Status:   StatusFail,
		Failure:  f,
		Command:  st.spec.String(),
		ExitCode: -1,
	}
}

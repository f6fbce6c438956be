// Command driverkit scaffolds instrument driver solutions and repositories.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/deixis/driverkit"
	"github.com/deixis/driverkit/internal/config"
	dkmcp "github.com/deixis/driverkit/internal/mcp"
	"github.com/deixis/driverkit/internal/report"
	"github.com/deixis/driverkit/internal/runner"
	"github.com/deixis/driverkit/internal/tracing"
	"github.com/deixis/driverkit/internal/workflow"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// errFailed signals that an operation ran and reported a failure that has
// already been printed.
var errFailed = errors.New("operation failed")

func main() {
	log.SetFlags(0)
	log.SetPrefix("driverkit: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "mcp":
		err = mcpMain(args)
	case "create-driver":
		err = createDriverMain(args)
	case "create-repo":
		err = createRepoMain(args)
	case "doctor":
		err = doctorMain(args)
	case "inspect":
		err = inspectMain(args)
	case "version":
		fmt.Println(driverkit.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "driverkit: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if errors.Is(err, errFailed) {
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: driverkit <command> [flags]

Commands:
  create-driver  Create a base driver solution from the GBG_FAST template
  create-repo    Create a driver repository with the New-DriverRepo script
  doctor         Check that the driver template is installed
  inspect        Show the record of a previous run (or list recent runs)
  mcp            Start the MCP server
  version        Print the version
  help           Show this help

Use "driverkit <command> -h" for command-specific flags.`)
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	dir := fs.String("dir", "", "base directory; ignores the roots offered by the client")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(dkmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := newEnv(*dir)
	if err != nil {
		return err
	}
	defer env.close()

	var opts []dkmcp.ServerOption
	if *dir != "" {
		opts = append(opts, dkmcp.WithoutRoots())
	}
	server := dkmcp.NewServer(env.engine, env.store, opts...)

	if *httpAddr != "" {
		return serveHTTP(ctx, server, *httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- create-driver ---

func createDriverMain(args []string) error {
	fs := flag.NewFlagSet("create-driver", flag.ExitOnError)
	manufacturer := fs.String("manufacturer", "", "manufacturer name (required)")
	instrument := fs.String("instrument", "", "instrument name (required)")
	dir := fs.String("dir", "", "solution directory (default: current directory)")
	jsonFlag := fs.Bool("json", false, "output the run record as JSON")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := newEnv(*dir)
	if err != nil {
		return err
	}
	defer env.close()

	out := env.engine.CreateBaseDriver(ctx, *manufacturer, *instrument)
	return env.report(out, *jsonFlag)
}

// --- create-repo ---

func createRepoMain(args []string) error {
	fs := flag.NewFlagSet("create-repo", flag.ExitOnError)
	manufacturer := fs.String("manufacturer", "", "manufacturer name (required)")
	instrument := fs.String("instrument", "", "instrument name (required)")
	basePath := fs.String("base-path", "", "GitHub-as-code base path (default: $GITHUB_AS_CODE_PATH)")
	script := fs.String("script", "", "repository script (default: install-relative New-DriverRepo.ps1)")
	jsonFlag := fs.Bool("json", false, "output the run record as JSON")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := newEnv("")
	if err != nil {
		return err
	}
	defer env.close()
	if *script != "" {
		env.engine.LocateScript = workflow.FixedScript(*script)
	}

	out := env.engine.CreateDriverRepo(ctx, workflow.RepoRequest{
		Manufacturer: *manufacturer,
		Instrument:   *instrument,
		BasePath:     *basePath,
	})
	return env.report(out, *jsonFlag)
}

// --- doctor ---

func doctorMain(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	dir := fs.String("dir", "", "directory whose .driverkit configuration applies")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := newEnv(*dir)
	if err != nil {
		return err
	}
	defer env.close()

	if env.configPath != "" {
		fmt.Printf("config: %s\n", env.configPath)
	} else {
		fmt.Println("config: defaults")
	}
	sr := env.engine.CheckPrerequisite(ctx)
	if sr.Failure != nil {
		fmt.Printf("template: FAIL\n%s\n", sr.Failure.Error())
		return errFailed
	}
	fmt.Printf("template: ok (%s)\n", env.engine.Config.TemplateName())
	return nil
}

// --- inspect ---

func inspectMain(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output the run record as JSON")
	limit := fs.Int("n", 10, "number of recent runs to list when no run ID is given")
	_ = fs.Parse(args)

	env, err := newEnv("")
	if err != nil {
		return err
	}
	defer env.close()

	if fs.NArg() == 0 {
		return env.listRecent(*limit)
	}

	result, err := env.store.Load(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	if *jsonFlag {
		return writeJSON(result)
	}
	fmt.Print(report.Format(result))
	return nil
}

// --- shared ---

// env is the wiring shared by all subcommands.
type env struct {
	engine     *workflow.Engine
	store      report.Store
	sqlite     *report.SQLiteStore // set when history.backend is sqlite
	configPath string
	closers    []func() error
}

func newEnv(dir string) (*env, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining working directory: %w", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}

	loaded, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config
	e := &env{configPath: loaded.Path}

	if cfg.TraceFile != "" {
		if err := tracing.Init("driverkit", driverkit.Version, cfg.TraceFile); err != nil {
			return nil, fmt.Errorf("starting tracing: %w", err)
		}
		e.closers = append(e.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tracing.Shutdown(ctx)
		})
	}

	back, err := e.openHistory(cfg)
	if err != nil {
		e.close()
		return nil, err
	}
	e.store = report.NewLRUStore(cfg.HistorySize(), back)

	// Engine logs go to stderr so that stdio MCP framing on stdout stays clean.
	e.engine = &workflow.Engine{
		Config:  cfg,
		Runner:  &runner.Runner{MaxOutput: cfg.MaxOutputBytes()},
		BaseDir: dir,
		Log:     log.New(os.Stderr, "", 0),
	}
	return e, nil
}

func (e *env) openHistory(cfg *config.Config) (report.Store, error) {
	path := cfg.History.Path
	switch cfg.History.Backend {
	case "sqlite":
		if path == "" {
			path = filepath.Join(historyDir(), "runs.db")
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("creating history directory: %w", err)
			}
		}
		s, err := report.OpenSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		e.sqlite = s
		e.closers = append(e.closers, s.Close)
		return s, nil
	default:
		if path == "" {
			path = filepath.Join(historyDir(), "runs")
		}
		return report.NewDiskStore(path), nil
	}
}

// historyDir is where runs are kept when the config names no path. Runs
// must outlive the process for the inspect command to find them.
func historyDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "driverkit")
	}
	return filepath.Join(os.TempDir(), "driverkit")
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
	e.closers = nil
}

// report saves and prints an outcome. It returns errFailed when the
// outcome is a failure.
func (e *env) report(out *workflow.Outcome, asJSON bool) error {
	if err := e.store.Save(out.RunResult); err != nil {
		log.Printf("saving run %s: %v", out.RunResult.ID, err)
	}
	if asJSON {
		if err := writeJSON(out.RunResult); err != nil {
			return err
		}
	} else {
		fmt.Println(out)
		fmt.Printf("\nRun: %s\n", out.RunResult.ID)
	}
	if !out.OK() {
		return errFailed
	}
	return nil
}

func (e *env) listRecent(limit int) error {
	if e.sqlite == nil {
		return errors.New("listing runs needs history.backend: sqlite; pass a run ID instead")
	}
	ids, err := e.sqlite.Recent(limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	for _, id := range ids {
		r, err := e.store.Load(id)
		if err != nil {
			fmt.Println(id)
			continue
		}
		status := "SUCCESS"
		if !r.Success {
			status = "FAILURE " + r.Reason
		}
		fmt.Printf("%s  %-8s  %s  %s\n", r.ID, r.Kind, r.Started.Format(time.RFC3339), status)
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

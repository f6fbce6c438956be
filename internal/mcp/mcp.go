// Package mcp provides the driverkit MCP server, registering the driver
// scaffolding tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"log"
	"net/url"
	"time"

	"github.com/deixis/driverkit"
	"github.com/deixis/driverkit/internal/config"
	"github.com/deixis/driverkit/internal/report"
	"github.com/deixis/driverkit/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine *workflow.Engine
	store  report.Store
	opts   serverOptions
}

// NewServer creates an MCP server with all driverkit tools registered.
// Runs are saved to store so that inspect_run can replay them.
func NewServer(engine *workflow.Engine, store report.Store, opts ...ServerOption) *mcp.Server {
	h := &handler{engine: engine, store: store}
	for _, o := range opts {
		o(&h.opts)
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	}
	if !h.opts.ignoreRoots {
		mcpOpts.InitializedHandler = func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateBaseDirFromRoots(ctx, req.Session)
		}
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "driverkit", Version: driverkit.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "create_base_driver",
		Description: `Create a base driver solution from the GBG_FAST template.

Checks that the template is installed, creates <Manufacturer>.<Instrument>.sln in the
workspace root, instantiates the driver project under src/, and adds it to the solution.
Whitespace is removed from both names. Stops at the first failing step; files created by
earlier steps are left in place. The result starts with SUCCESS: or FAILURE:.`,
	}, h.createBaseDriverHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "create_driver_repo",
		Description: `Create a new driver repository by running the New-DriverRepo script.

The repository base path comes from github_as_code_path or, when omitted, from the
GITHUB_AS_CODE_PATH environment variable. The script's output is returned verbatim.`,
	}, h.createDriverRepoHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "inspect_run",
		Description: `Show the step-by-step record of a previous create_base_driver or create_driver_repo run.

Use the run_id printed at the end of a tool result. Each step lists the exact command line,
its exit code, and the captured output.`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the driverkit MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	ignoreRoots bool
	logger      *log.Logger
	onBaseDir   func(dir string)
}

// WithoutRoots keeps the engine's base directory instead of adopting the
// first root offered by the client.
func WithoutRoots() ServerOption {
	return func(o *serverOptions) {
		o.ignoreRoots = true
	}
}

// WithLogger sets the logger used for server-side diagnostics.
func WithLogger(l *log.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// OnBaseDir registers fn to be called after the client's roots have been
// examined. dir is the adopted base directory, or empty if none was.
func OnBaseDir(fn func(dir string)) ServerOption {
	return func(o *serverOptions) {
		o.onBaseDir = fn
	}
}

func (h *handler) logf(format string, args ...any) {
	l := h.opts.logger
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

// updateBaseDirFromRoots queries the client for MCP roots and points the
// engine at the first file root, reloading its configuration.
// This is called during session initialization, before any tool calls.
func (h *handler) updateBaseDirFromRoots(ctx context.Context, session *mcp.ServerSession) {
	var adopted string
	defer func() {
		if h.opts.onBaseDir != nil {
			h.opts.onBaseDir(adopted)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	dir := u.Path

	loaded, err := config.Load(dir)
	if err != nil {
		h.logf("[ERROR] ignoring root %s: %v", dir, err)
		return
	}
	h.engine.SetBaseDir(dir, loaded.Config)
	adopted = dir
	h.logf("[LOG] Base directory set to %s", dir)
}

// save records a run for inspect_run. A failed save does not fail the tool
// call.
func (h *handler) save(rr *report.RunResult) {
	if h.store == nil {
		return
	}
	if err := h.store.Save(rr); err != nil {
		h.logf("[ERROR] saving run %s: %v", rr.ID, err)
	}
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

package mcp

import (
	"context"
	"fmt"

	"github.com/deixis/driverkit/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type createBaseDriverParams struct {
	ManufacturerName string `json:"manufacturer_name" jsonschema:"instrument manufacturer, e.g. Acme Labs"`
	InstrumentName   string `json:"instrument_name" jsonschema:"instrument model, e.g. Titrator X1"`
}

func (h *handler) createBaseDriverHandler(ctx context.Context, req *mcp.CallToolRequest, params createBaseDriverParams) (*mcp.CallToolResult, any, error) {
	out := h.engine.CreateBaseDriver(ctx, params.ManufacturerName, params.InstrumentName)
	return h.outcomeResult(out)
}

type createDriverRepoParams struct {
	ManufacturerName string `json:"manufacturer_name" jsonschema:"instrument manufacturer, e.g. Acme Labs"`
	InstrumentName   string `json:"instrument_name" jsonschema:"instrument model, e.g. Titrator X1"`
	GitHubAsCodePath string `json:"github_as_code_path,omitempty" jsonschema:"base path of the GitHub-as-code checkout. Defaults to the GITHUB_AS_CODE_PATH environment variable."`
}

func (h *handler) createDriverRepoHandler(ctx context.Context, req *mcp.CallToolRequest, params createDriverRepoParams) (*mcp.CallToolResult, any, error) {
	out := h.engine.CreateDriverRepo(ctx, workflow.RepoRequest{
		Manufacturer: params.ManufacturerName,
		Instrument:   params.InstrumentName,
		BasePath:     params.GitHubAsCodePath,
	})
	return h.outcomeResult(out)
}

// outcomeResult saves the run and renders it for the agent. A failed
// outcome is a tool-level error, not a protocol error.
func (h *handler) outcomeResult(out *workflow.Outcome) (*mcp.CallToolResult, any, error) {
	h.save(out.RunResult)
	text := fmt.Sprintf("%s\n\nRun: %s\nInspect with inspect_run(run_id=%q).", out, out.RunResult.ID, out.RunResult.ID)
	if !out.OK() {
		return errorResult(text)
	}
	return textResult(text)
}

package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/deixis/driverkit/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from a create_base_driver or create_driver_repo result"`
	Kind  string `json:"kind,omitempty" jsonschema:"expected run kind: scaffold or repo. Rejects runs of the other kind when set."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if h.store == nil {
		return errorResult("Run history is disabled.")
	}

	result, err := h.store.Load(params.RunID)
	if errors.Is(err, report.ErrNotFound) {
		return errorResult(fmt.Sprintf("No run with ID %s. Run IDs are printed at the end of each tool result.", params.RunID))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	if params.Kind != "" {
		if err := result.Expect(report.Kind(params.Kind)); err != nil {
			return errorResult(err.Error())
		}
	}

	return textResult(report.Format(result))
}

package engine

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// registerVerifyCompletion registers the verify_completion tool.
func registerVerifyCompletion(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("verify_completion",
			mcp.WithDescription("Run the quality gate on a task: artifacts present, checklist complete, not blocked, resolution written, late pipeline stage. "+
				"Read-only by default; with complete=true a passing task is marked COMPLETED and its agent is freed."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task ID")),
			mcp.WithBoolean("complete", mcp.Description("Complete the task if the gate passes (default: false, report only)")),
			mcp.WithString("resolution", mcp.Description("Resolution summary recorded on the task when completing")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, err := requireTaskID(args, "task_id"); err != nil {
				return nil, err
			}
			return runAction(svc, logger, "verify_completion", args)
		},
	)
}

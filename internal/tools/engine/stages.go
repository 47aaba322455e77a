package engine

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// registerAdvanceTaskStage registers the advance_task_stage tool.
func registerAdvanceTaskStage(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("advance_task_stage",
			mcp.WithDescription("Advance a task to the next pipeline stage when its checklist threshold or time budget is met. "+
				"Pass an explicit stage to override the pipeline order manually."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task ID")),
			mcp.WithString("target_stage", mcp.Description("Manual override: move directly to this stage, skipping readiness checks"), mcp.Enum("DISCUSS", "PLAN", "EXECUTE", "VERIFY", "INTEGRATE")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, err := requireTaskID(args, "task_id"); err != nil {
				return nil, err
			}
			return runAction(svc, logger, "advance_task_stage", args)
		},
	)
}

// registerChecklistBasedAdvance registers the checklist_based_advance tool.
func registerChecklistBasedAdvance(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("checklist_based_advance",
			mcp.WithDescription("Advance every active task whose stage threshold is met. With task_id, attempts just that one task and reports why when it is not ready."),
			mcp.WithNumber("task_id", mcp.Description("Task to advance. Omit to sweep all active tasks.")),
			mcp.WithNumber("limit", mcp.Description("Sweep mode: maximum tasks to advance")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return runAction(svc, logger, "checklist_based_advance", req.GetArguments())
		},
	)
}

package engine

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// registerRunAll registers the run_all tool.
func registerRunAll(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("run_all",
			mcp.WithDescription("Run one full automation cycle: assign pending tasks, advance eligible stages, resolve blockers. "+
				"Safe on an empty system (returns zero counts). This is the same cycle the background scheduler runs."),
			mcp.WithNumber("limit", mcp.Description("Maximum tasks per sweep (default from engine config)")),
			mcp.WithNumber("min_skill_match", mcp.Description("Assignment sweep skill floor override 0.0-1.0")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return runAction(svc, logger, "run_all", req.GetArguments())
		},
	)
}

// registerEscalateStalledTask registers the escalate_stalled_task tool.
func registerEscalateStalledTask(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("escalate_stalled_task",
			mcp.WithDescription("Raise the priority of a task stuck in its stage past the stall budget. "+
				"With task_id, escalates that task; without it, escalates everything currently stalled."),
			mcp.WithNumber("task_id", mcp.Description("Stalled task to escalate. Omit to sweep all stalled tasks.")),
			mcp.WithString("reason", mcp.Description("Why this task is being escalated (required with task_id)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, ok := args["task_id"].(float64); ok {
				if _, err := requireString(args, "reason"); err != nil {
					return nil, err
				}
			}
			return runAction(svc, logger, "escalate_stalled_task", args)
		},
	)
}

// registerGetMetrics registers the get_metrics tool.
func registerGetMetrics(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("get_metrics",
			mcp.WithDescription("Engine health snapshot: task counts by status and stage, automation coverage, completion and auto-assignment rates, "+
				"agent utilization, average completion time, pattern counts, and top templates."),
			mcp.WithNumber("time_window_hours", mcp.Description("Restrict task-level rates to this trailing window (default: all time)")),
			mcp.WithBoolean("store_metrics", mcp.Description("Persist the snapshot to the activity log (default: false)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return runAction(svc, logger, "get_metrics", req.GetArguments())
		},
	)
}

package engine

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// registerReportBlocker registers the report_blocker tool.
func registerReportBlocker(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("report_blocker",
			mcp.WithDescription("Mark a task as blocked with a reason. The reason is classified into a blocker category "+
				"(github, dependency, permission, api, waiting, approval) which decides whether auto_resolve_blockers may clear it."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task ID")),
			mcp.WithString("reason", mcp.Required(), mcp.Description("What is blocking this task (e.g. 'waiting on github merge conflict')")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, err := requireTaskID(args, "task_id"); err != nil {
				return nil, err
			}
			if _, err := requireString(args, "reason"); err != nil {
				return nil, err
			}
			return runAction(svc, logger, "report_blocker", args)
		},
	)
}

// registerAutoResolveBlockers registers the auto_resolve_blockers tool.
func registerAutoResolveBlockers(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("auto_resolve_blockers",
			mcp.WithDescription("Sweep blocked tasks. Auto-resolvable categories return to IN_PROGRESS; manual categories get a suggested next step. "+
				"With task_id, resolves just that one blocked task."),
			mcp.WithNumber("task_id", mcp.Description("Blocked task to resolve. Omit to sweep all blocked tasks.")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return runAction(svc, logger, "auto_resolve_blockers", req.GetArguments())
		},
	)
}

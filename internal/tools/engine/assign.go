package engine

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// registerSmartAssign registers the smart_assign tool.
func registerSmartAssign(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("smart_assign",
			mcp.WithDescription("Assign a task to the best-scoring eligible agent (skill match, workload, success history, recent activity). "+
				"With task_id, assigns that one task; without it, sweeps pending unassigned tasks by priority. "+
				"When no agent clears the skill floor the result lists the closest candidates instead of failing."),
			mcp.WithNumber("task_id", mcp.Description("Task to assign. Omit to run in batch mode over pending tasks.")),
			mcp.WithString("prefer_agent_id", mcp.Description("Agent ID to prefer when it clears the skill floor (soft pin)")),
			mcp.WithNumber("min_skill_match", mcp.Description("Minimum required-skill coverage 0.0-1.0 (default from engine config)")),
			mcp.WithNumber("limit", mcp.Description("Batch mode: maximum tasks to assign in one sweep")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return runAction(svc, logger, "smart_assign", req.GetArguments())
		},
	)
}

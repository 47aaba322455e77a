package engine

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// registerExtractKnowledge registers the extract_knowledge tool.
func registerExtractKnowledge(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("extract_knowledge",
			mcp.WithDescription("Extract a learning pattern from a finished task (duration, skills, outcome, template) and add it to the searchable index. "+
				"Each task is extracted at most once. With task_id, extracts that task; without it, sweeps finished tasks not yet extracted."),
			mcp.WithNumber("task_id", mcp.Description("Finished task to extract. Omit to run in sweep mode.")),
			mcp.WithNumber("limit", mcp.Description("Sweep mode: maximum patterns to extract")),
			mcp.WithNumber("completed_since_hours", mcp.Description("Sweep mode: only tasks that finished within this trailing window")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return runAction(svc, logger, "extract_knowledge", req.GetArguments())
		},
	)
}

// registerSearchPatterns registers the search_patterns tool.
func registerSearchPatterns(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("search_patterns",
			mcp.WithDescription("Full-text search over extracted learning patterns. "+
				"Use natural language, e.g. 'failed sql migrations' or 'kubernetes deployment'. Returns ranked snippets."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
			mcp.WithNumber("limit", mcp.Description("Maximum hits to return (default: 10)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, err := requireString(args, "query"); err != nil {
				return nil, err
			}
			limit := optionalInt(args, "limit", 10)
			if limit < 1 {
				limit = 1
			}
			if limit > 50 {
				limit = 50
			}
			args["limit"] = float64(limit)
			return runAction(svc, logger, "search_patterns", args)
		},
	)
}

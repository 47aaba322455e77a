package engine

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// registerCreateFromTemplate registers the create_from_template tool.
func registerCreateFromTemplate(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("create_from_template",
			mcp.WithDescription("Create a task from a named template. The task inherits the template's checklist, required skills, category, and priority; explicit arguments override inherited values."),
			mcp.WithString("template_name", mcp.Required(), mcp.Description("Template name (see list_templates)")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Title for the new task")),
			mcp.WithString("description", mcp.Description("Description override")),
			mcp.WithNumber("priority", mcp.Description("Priority override 1-10")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, err := requireStringAny(args, "template_name", "template"); err != nil {
				return nil, err
			}
			if _, err := requireString(args, "title"); err != nil {
				return nil, err
			}
			return runAction(svc, logger, "create_from_template", args)
		},
	)
}

// registerListTemplates registers the list_templates tool.
func registerListTemplates(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("list_templates",
			mcp.WithDescription("List task templates with their usage counters and success rates."),
			mcp.WithString("category", mcp.Description("Only templates in this category")),
			mcp.WithBoolean("include_inactive", mcp.Description("Include inactive templates (default: false)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return runAction(svc, logger, "list_templates", req.GetArguments())
		},
	)
}

package engine

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// registerRegisterAgent registers the register_agent tool.
func registerRegisterAgent(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("register_agent",
			mcp.WithDescription("Register an agent with the engine, or refresh an existing registration. "+
				"Re-registering updates skills and capacity and revives OFFLINE agents."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Stable agent identifier")),
			mcp.WithString("name", mcp.Description("Display name (default: agent_id)")),
			mcp.WithArray("skills", mcp.Description("Skills this agent offers (e.g. ['golang', 'sql', 'frontend'])")),
			mcp.WithNumber("max_concurrent_tasks", mcp.Description("Concurrent task capacity (default: 5)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, err := requireString(args, "agent_id"); err != nil {
				return nil, err
			}
			return runAction(svc, logger, "register_agent", args)
		},
	)
}

// registerListAgents registers the list_agents tool.
func registerListAgents(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List registered agents with their skills, status, and current workload."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return runAction(svc, logger, "list_agents", req.GetArguments())
		},
	)
}

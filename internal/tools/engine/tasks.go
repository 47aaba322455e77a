package engine

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// registerCreateTask registers the create_task tool.
func registerCreateTask(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("create_task",
			mcp.WithDescription("Create a task in the automation pipeline. New tasks start in the DISCUSS stage unless another stage is given."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Short task title")),
			mcp.WithString("description", mcp.Description("Detailed task description")),
			mcp.WithString("category", mcp.Description("Free-form category used for knowledge extraction (e.g. 'deployment', 'refactor')")),
			mcp.WithNumber("priority", mcp.Description("Task priority 1-10, higher is more urgent (default: 5)")),
			mcp.WithString("stage", mcp.Description("Initial pipeline stage (default: DISCUSS)"), mcp.Enum("DISCUSS", "PLAN", "EXECUTE", "VERIFY", "INTEGRATE")),
			mcp.WithArray("required_skills", mcp.Description("Skills an agent needs before it can be assigned (e.g. ['golang', 'sql'])")),
			mcp.WithArray("checklist", mcp.Description("Checklist items tracked for stage advancement")),
			mcp.WithNumber("auto_advance_threshold_hours", mcp.Description("Per-task override for the stage time budget, in hours")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, err := requireString(args, "title"); err != nil {
				return nil, err
			}
			return runAction(svc, logger, "create_task", args)
		},
	)
}

// registerListTasks registers the list_tasks tool.
func registerListTasks(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks, newest first, optionally filtered by status and stage."),
			mcp.WithString("status", mcp.Description("Filter by status"), mcp.Enum("PENDING", "CLAIMED", "IN_PROGRESS", "BLOCKED", "COMPLETED", "FAILED", "CANCELLED")),
			mcp.WithString("stage", mcp.Description("Filter by pipeline stage"), mcp.Enum("DISCUSS", "PLAN", "EXECUTE", "VERIFY", "INTEGRATE")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of tasks to return (default: 20)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return runAction(svc, logger, "list_tasks", req.GetArguments())
		},
	)
}

// registerGetTask registers the get_task tool.
func registerGetTask(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("get_task",
			mcp.WithDescription("Fetch a single task with its full checklist, assignment, and stage state."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task ID")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, err := requireTaskID(args, "task_id"); err != nil {
				return nil, err
			}
			return runAction(svc, logger, "get_task", args)
		},
	)
}

// registerUpdateChecklistItem registers the update_checklist_item tool.
func registerUpdateChecklistItem(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("update_checklist_item",
			mcp.WithDescription("Mark a checklist item done or not done, addressed by text or by position. Progress percent is recomputed and feeds stage advancement."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task ID")),
			mcp.WithString("item_text", mcp.Description("Checklist item text, exactly as stored on the task")),
			mcp.WithNumber("item_index", mcp.Description("Zero-based checklist position, as an alternative to item_text")),
			mcp.WithBoolean("completed", mcp.Description("Completion state (default: true)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if _, err := requireTaskID(args, "task_id"); err != nil {
				return nil, err
			}
			if _, byIndex := args["item_index"].(float64); !byIndex {
				if _, err := requireStringAny(args, "item_text", "item"); err != nil {
					return nil, err
				}
			}
			return runAction(svc, logger, "update_checklist_item", args)
		},
	)
}

package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
	"github.com/jaakkos/taskmill/internal/domain"
)

// registerResources adds MCP resources describing the pipeline so connected
// agents can learn the workflow from the server itself.
func registerResources(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	s.AddResource(
		mcp.NewResource(
			"taskmill://guide/pipeline",
			"Pipeline guide",
			mcp.WithResourceDescription("How tasks move through DISCUSS, PLAN, EXECUTE, VERIFY, and INTEGRATE, with the active advancement thresholds."),
			mcp.WithMIMEType("text/markdown"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			logger.Printf("Resource read: guide/pipeline")
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      req.Params.URI,
					MIMEType: "text/markdown",
					Text:     pipelineGuide(svc.Policy()),
				},
			}, nil
		},
	)

	s.AddResource(
		mcp.NewResource(
			"taskmill://state/summary",
			"Engine state summary",
			mcp.WithResourceDescription("Live task and agent counts. Cheap to read; use get_metrics for the full picture."),
			mcp.WithMIMEType("text/plain"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			var summary string
			if err := svc.Query(func(state *domain.EngineState) error {
				summary = stateSummary(state)
				return nil
			}); err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      req.Params.URI,
					MIMEType: "text/plain",
					Text:     summary,
				},
			}, nil
		},
	)
}

// pipelineGuide renders the workflow guide with the currently configured
// stage thresholds, so the document never drifts from the running config.
func pipelineGuide(p app.Policy) string {
	var b strings.Builder
	b.WriteString("# Task pipeline\n\n")
	b.WriteString("Tasks move through five stages. A task advances when its checklist fraction\n")
	b.WriteString("meets the stage threshold, or when the stage time budget elapses — in both\n")
	b.WriteString("cases only with documented progress (a completed checklist item or progress > 0).\n\n")
	b.WriteString("| Stage | Checklist | Time budget |\n")
	b.WriteString("|-------|-----------|-------------|\n")
	for _, stage := range domain.StageOrder {
		th := p.StageThreshold(string(stage))
		b.WriteString(fmt.Sprintf("| %s | %.0f%% | %.0fh |\n", stage, th.ChecklistFraction*100, th.Hours))
	}
	b.WriteString("\nTypical flow:\n\n")
	b.WriteString("1. `create_task` or `create_from_template`, then `smart_assign`\n")
	b.WriteString("2. Work the checklist with `update_checklist_item`; stages advance via `checklist_based_advance` or the scheduler\n")
	b.WriteString("3. `report_blocker` when stuck; `auto_resolve_blockers` clears transient categories\n")
	b.WriteString("4. `verify_completion` with complete=true runs the quality gate and closes the task\n")
	b.WriteString("5. `extract_knowledge` records the outcome; `search_patterns` finds similar past work\n")
	return b.String()
}

func stateSummary(state *domain.EngineState) string {
	byStatus := map[domain.TaskStatus]int{}
	for _, t := range state.Tasks {
		byStatus[t.Status]++
	}
	var b strings.Builder
	fmt.Fprintf(&b, "tasks: %d total", len(state.Tasks))
	for _, status := range []domain.TaskStatus{domain.TaskPending, domain.TaskInProgress, domain.TaskBlocked, domain.TaskCompleted} {
		if n := byStatus[status]; n > 0 {
			fmt.Fprintf(&b, ", %d %s", n, strings.ToLower(string(status)))
		}
	}
	fmt.Fprintf(&b, "\nagents: %d registered", len(state.Agents))
	fmt.Fprintf(&b, "\npatterns: %d extracted\n", len(state.Patterns))
	return b.String()
}

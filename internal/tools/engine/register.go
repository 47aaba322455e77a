// Package engine exposes the task automation engine over MCP: one tool per
// engine action, plus resources describing the pipeline for connected agents.
package engine

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
)

// Register registers all engine tools and resources with the mcp-go server.
func Register(s *server.MCPServer, svc *app.EngineService, logger *log.Logger) {
	// Task lifecycle tools (4)
	registerCreateTask(s, svc, logger)
	registerListTasks(s, svc, logger)
	registerGetTask(s, svc, logger)
	registerUpdateChecklistItem(s, svc, logger)

	// Template tools (2)
	registerCreateFromTemplate(s, svc, logger)
	registerListTemplates(s, svc, logger)

	// Assignment tool (1)
	registerSmartAssign(s, svc, logger)

	// Stage tools (2)
	registerAdvanceTaskStage(s, svc, logger)
	registerChecklistBasedAdvance(s, svc, logger)

	// Blocker tools (2)
	registerReportBlocker(s, svc, logger)
	registerAutoResolveBlockers(s, svc, logger)

	// Quality gate tool (1)
	registerVerifyCompletion(s, svc, logger)

	// Knowledge tools (2)
	registerExtractKnowledge(s, svc, logger)
	registerSearchPatterns(s, svc, logger)

	// Agent registry tools (2)
	registerRegisterAgent(s, svc, logger)
	registerListAgents(s, svc, logger)

	// Pipeline tools (3)
	registerRunAll(s, svc, logger)
	registerEscalateStalledTask(s, svc, logger)
	registerGetMetrics(s, svc, logger)

	// Resources (pipeline guide, stage reference)
	registerResources(s, svc, logger)
}

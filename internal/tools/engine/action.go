package engine

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jaakkos/taskmill/internal/app"
)

// runAction dispatches a named engine action and renders the result envelope
// as JSON. Envelope errors (bad parameters, missing entities, internal
// failures) become tool errors; expected negative outcomes (no eligible
// agent, gate not passed) stay in the JSON body with success=false.
func runAction(svc *app.EngineService, logger *log.Logger, action string, params map[string]any) (*mcp.CallToolResult, error) {
	out := svc.Dispatch(action, params)
	if msg, ok := out["error"].(string); ok {
		logger.Printf("%s failed: %s", action, msg)
		return nil, fmt.Errorf("%s: %s", action, msg)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s result: %w", action, err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

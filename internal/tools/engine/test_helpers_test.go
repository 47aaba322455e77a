package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
	"github.com/jaakkos/taskmill/internal/domain"
	"github.com/jaakkos/taskmill/internal/policy"
)

type testRepo struct {
	state *domain.EngineState
	mu    sync.Mutex
}

func (r *testRepo) Load() (*domain.EngineState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return domain.NewEngineState(), nil
	}
	return r.state, nil
}

func (r *testRepo) Save(state *domain.EngineState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	return nil
}

// newTestService returns an EngineService backed by an in-memory repo.
func newTestService() (*app.EngineService, *testRepo) {
	repo := &testRepo{}
	cfg := policy.DefaultConfig()
	cfg.StateFile = "/tmp/taskmill-tools-test/state.sqlite"
	logger := log.New(io.Discard, "", 0)
	return app.NewEngineService(repo, policy.New(cfg), logger), repo
}

// testServer creates an MCPServer with all engine tools registered.
func testServer(svc *app.EngineService, logger *log.Logger) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0")
	Register(s, svc, logger)
	return s
}

// callTool calls a registered tool via the MCPServer's HandleMessage.
// Returns the parsed CallToolResult or an error.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON := s.HandleMessage(context.Background(), reqJSON)

	respBytes, marshalErr := json.Marshal(respJSON)
	if marshalErr != nil {
		t.Fatalf("marshal response: %v", marshalErr)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}

	return &result, nil
}

// resultEnvelope extracts and parses the JSON envelope from a tool result.
func resultEnvelope(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			var out map[string]any
			if err := json.Unmarshal([]byte(tc.Text), &out); err != nil {
				t.Fatalf("result is not JSON: %v\n%s", err, tc.Text)
			}
			return out
		}
	}
	t.Fatal("no text content in result")
	return nil
}

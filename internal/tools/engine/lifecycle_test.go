package engine

import (
	"io"
	"log"
	"testing"

	"github.com/jaakkos/taskmill/internal/domain"
)

// Walks one task through the whole pipeline using only tool calls:
// create, assign, checklist, stage advancement, a blocker round-trip,
// the quality gate, and knowledge extraction.
func TestTaskLifecycleThroughTools(t *testing.T) {
	svc, repo := newTestService()
	srv := testServer(svc, log.New(io.Discard, "", 0))

	mustCall := func(name string, args map[string]any) map[string]any {
		t.Helper()
		result, err := callTool(t, srv, name, args)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return resultEnvelope(t, result)
	}

	mustCall("register_agent", map[string]any{
		"agent_id": "builder",
		"skills":   []any{"golang"},
	})
	mustCall("create_task", map[string]any{
		"title":           "Pipeline walk",
		"category":        "backend",
		"required_skills": []any{"golang"},
		"checklist":       []any{"design", "implement"},
	})

	out := mustCall("smart_assign", map[string]any{"task_id": float64(1)})
	if out["success"] != true {
		t.Fatalf("assign failed: %+v", out)
	}
	if repo.state.Tasks[0].Status != domain.TaskClaimed {
		t.Fatalf("status after assign = %s", repo.state.Tasks[0].Status)
	}

	// DISCUSS needs half the checklist.
	mustCall("update_checklist_item", map[string]any{"task_id": float64(1), "item": "design"})
	out = mustCall("advance_task_stage", map[string]any{"task_id": float64(1)})
	if out["success"] != true {
		t.Fatalf("advance out of DISCUSS failed: %+v", out)
	}
	if repo.state.Tasks[0].Status != domain.TaskInProgress {
		t.Errorf("status after first advance = %s", repo.state.Tasks[0].Status)
	}

	// PLAN, EXECUTE, and VERIFY all clear once the checklist is complete.
	mustCall("update_checklist_item", map[string]any{"task_id": float64(1), "item": "implement"})
	for _, want := range []domain.Stage{domain.StageExecute, domain.StageVerify, domain.StageIntegrate} {
		out = mustCall("advance_task_stage", map[string]any{"task_id": float64(1)})
		if out["success"] != true {
			t.Fatalf("advance to %s failed: %+v", want, out)
		}
		if repo.state.Tasks[0].Stage != want {
			t.Fatalf("stage = %s, want %s", repo.state.Tasks[0].Stage, want)
		}
	}

	// Blocker round-trip: api category auto-resolves.
	mustCall("report_blocker", map[string]any{"task_id": float64(1), "reason": "hit the api rate limit"})
	if repo.state.Tasks[0].Status != domain.TaskBlocked {
		t.Fatalf("status after blocker = %s", repo.state.Tasks[0].Status)
	}
	out = mustCall("auto_resolve_blockers", map[string]any{})
	if out["resolved_count"] != float64(1) {
		t.Fatalf("resolved_count = %v: %+v", out["resolved_count"], out)
	}

	// Quality gate and completion.
	out = mustCall("verify_completion", map[string]any{
		"task_id":    float64(1),
		"complete":   true,
		"resolution": "shipped behind a flag",
	})
	if out["success"] != true {
		t.Fatalf("gate failed: %+v", out)
	}
	if repo.state.Tasks[0].Status != domain.TaskCompleted {
		t.Errorf("status after completion = %s", repo.state.Tasks[0].Status)
	}
	if repo.state.Agents["builder"].Status != domain.AgentIdle {
		t.Errorf("agent not freed: %s", repo.state.Agents["builder"].Status)
	}

	// Knowledge extraction, exactly once.
	out = mustCall("extract_knowledge", map[string]any{"task_id": float64(1)})
	pattern := out["pattern"].(map[string]any)
	if pattern["confidence"] != 0.9 {
		t.Errorf("confidence = %v, want 0.9 for a completed task", pattern["confidence"])
	}
	if _, err := callTool(t, srv, "extract_knowledge", map[string]any{"task_id": float64(1)}); err == nil {
		t.Fatal("second extraction should fail")
	}

	// No pattern index attached in tests; search reports it as unavailable.
	if _, err := callTool(t, srv, "search_patterns", map[string]any{"query": "rate limit"}); err == nil {
		t.Fatal("search without an index should fail")
	}
}

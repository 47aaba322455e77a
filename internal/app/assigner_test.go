package app

import (
	"testing"

	"github.com/jaakkos/taskmill/internal/domain"
)

func TestAssignTaskPicksBestSkillMatch(t *testing.T) {
	state := domain.NewEngineState()
	state.Agents["generalist"] = idleAgent("generalist", "docs")
	state.Agents["specialist"] = idleAgent("specialist", "go", "sql")
	state.Tasks = append(state.Tasks, pendingTask(1, "migrate db", "go", "sql"))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AssignTask(state, 1, AssignOptions{MinSkillMatch: -1})
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if !res.Assigned {
		t.Fatalf("not assigned: %s", res.Reason)
	}
	if res.AgentID != "specialist" {
		t.Errorf("assigned to %s, want specialist", res.AgentID)
	}

	task := state.FindTask(1)
	if task.Status != domain.TaskClaimed {
		t.Errorf("task status = %s, want CLAIMED", task.Status)
	}
	if !task.AutoAssigned {
		t.Error("expected AutoAssigned")
	}
	if state.Agents["specialist"].Status != domain.AgentBusy {
		t.Errorf("agent status = %s, want BUSY", state.Agents["specialist"].Status)
	}
}

func TestAssignTaskExcludesOfflineAndArchived(t *testing.T) {
	state := domain.NewEngineState()
	off := idleAgent("off", "go")
	off.Status = domain.AgentOffline
	arch := idleAgent("arch", "go")
	arch.Status = domain.AgentArchived
	state.Agents["off"] = off
	state.Agents["arch"] = arch
	state.Tasks = append(state.Tasks, pendingTask(1, "t", "go"))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AssignTask(state, 1, AssignOptions{MinSkillMatch: -1})
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if res.Assigned {
		t.Fatalf("assigned to %s, want no eligible agents", res.AgentID)
	}
	if res.Reason != "no eligible agents" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestAssignTaskNearMissesNotError(t *testing.T) {
	state := domain.NewEngineState()
	for _, id := range []string{"a", "b", "c", "d"} {
		state.Agents[id] = idleAgent(id, "docs")
	}
	state.Tasks = append(state.Tasks, pendingTask(1, "t", "kubernetes"))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AssignTask(state, 1, AssignOptions{MinSkillMatch: -1})
	if err != nil {
		t.Fatalf("no-candidate outcome must not be an error: %v", err)
	}
	if res.Assigned {
		t.Fatal("expected no assignment")
	}
	if len(res.NearMisses) != 3 {
		t.Errorf("near misses = %d, want 3", len(res.NearMisses))
	}
	if state.FindTask(1).AssigneeAgentID != "" {
		t.Error("task must stay unassigned")
	}
}

func TestAssignTaskZeroSkillTaskClearsFloor(t *testing.T) {
	state := domain.NewEngineState()
	state.Agents["a1"] = idleAgent("a1", "anything")
	state.Tasks = append(state.Tasks, pendingTask(1, "chore"))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AssignTask(state, 1, AssignOptions{MinSkillMatch: -1})
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if !res.Assigned {
		t.Fatalf("zero-skill task should assign, got: %s", res.Reason)
	}
	if res.Score.Skill != neutralSkillScore {
		t.Errorf("Skill = %v, want neutral %v", res.Score.Skill, neutralSkillScore)
	}
}

func TestAssignTaskPreferredAgentSoftPin(t *testing.T) {
	state := domain.NewEngineState()
	state.Agents["best"] = idleAgent("best", "go", "sql")
	state.Agents["pref"] = idleAgent("pref", "go")
	state.Tasks = append(state.Tasks, pendingTask(1, "t", "go"))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AssignTask(state, 1, AssignOptions{PreferredAgentID: "pref", MinSkillMatch: -1})
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if res.AgentID != "pref" {
		t.Errorf("assigned to %s, want preferred pref", res.AgentID)
	}
}

func TestAssignTaskPreferredBelowFloorIgnored(t *testing.T) {
	state := domain.NewEngineState()
	state.Agents["best"] = idleAgent("best", "go")
	state.Agents["pref"] = idleAgent("pref", "docs")
	state.Tasks = append(state.Tasks, pendingTask(1, "t", "go"))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AssignTask(state, 1, AssignOptions{PreferredAgentID: "pref", MinSkillMatch: -1})
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if res.AgentID != "best" {
		t.Errorf("assigned to %s, want best (preferred below floor)", res.AgentID)
	}
}

func TestAssignTaskAlreadyAssignedIsNoop(t *testing.T) {
	state := domain.NewEngineState()
	state.Agents["a1"] = idleAgent("a1", "go")
	task := pendingTask(1, "t", "go")
	task.AssigneeAgentID = "someone"
	state.Tasks = append(state.Tasks, task)
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AssignTask(state, 1, AssignOptions{MinSkillMatch: -1})
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if res.Assigned {
		t.Error("must not re-assign an assigned task")
	}
}

func TestAssignTaskTerminalIsError(t *testing.T) {
	state := domain.NewEngineState()
	state.Agents["a1"] = idleAgent("a1")
	task := pendingTask(1, "t")
	task.Status = domain.TaskCompleted
	state.Tasks = append(state.Tasks, task)
	state.NextTaskID = 2

	svc, _ := testService(state)
	if _, err := svc.AssignTask(state, 1, AssignOptions{MinSkillMatch: -1}); err == nil {
		t.Error("expected error assigning a terminal task")
	}
}

func TestAssignTaskWritesAuditWithBreakdown(t *testing.T) {
	state := domain.NewEngineState()
	state.Agents["a1"] = idleAgent("a1", "go")
	state.Tasks = append(state.Tasks, pendingTask(1, "t", "go"))
	state.NextTaskID = 2

	svc, _ := testService(state)
	if _, err := svc.AssignTask(state, 1, AssignOptions{MinSkillMatch: -1}); err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if len(state.ActivityLog) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(state.ActivityLog))
	}
	entry := state.ActivityLog[0]
	if entry.Type != "task_assigned" {
		t.Errorf("type = %q", entry.Type)
	}
	for _, key := range []string{"skill_score", "workload_score", "success_rate_score", "activity_score", "total_score"} {
		if entry.Metadata[key] == "" {
			t.Errorf("missing metadata %q", key)
		}
	}
}

func TestAssignBatchOrdersByPriority(t *testing.T) {
	state := domain.NewEngineState()
	agent := idleAgent("solo", "go")
	agent.MaxConcurrentTasks = 1
	state.Agents["solo"] = agent

	low := pendingTask(1, "low", "go")
	low.Priority = 2
	high := pendingTask(2, "high", "go")
	high.Priority = 9
	state.Tasks = append(state.Tasks, low, high)
	state.NextTaskID = 3

	svc, _ := testService(state)
	results := svc.AssignBatch(state, 10, -1)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].TaskID != 2 {
		t.Errorf("first examined task = %d, want high-priority 2", results[0].TaskID)
	}
	if !results[0].Assigned {
		t.Error("high-priority task should be assigned")
	}
	if state.FindTask(2).AssigneeAgentID != "solo" {
		t.Error("high-priority task should go to the only agent")
	}
}

func TestAssignBatchEmptySystem(t *testing.T) {
	state := domain.NewEngineState()
	svc, _ := testService(state)
	results := svc.AssignBatch(state, 0, -1)
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestAssignBatchRespectsLimit(t *testing.T) {
	state := domain.NewEngineState()
	state.Agents["a1"] = idleAgent("a1", "go")
	for i := 1; i <= 5; i++ {
		state.Tasks = append(state.Tasks, pendingTask(i, "t", "go"))
	}
	state.NextTaskID = 6

	svc, _ := testService(state)
	results := svc.AssignBatch(state, 2, -1)
	if len(results) != 2 {
		t.Errorf("results = %d, want limit 2", len(results))
	}
}

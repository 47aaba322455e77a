package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

func TestStoreRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.sqlite")

	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if c, ok := store.(*Store); ok {
			_ = c.Close()
		}
	}()

	now := time.Now()
	state := domain.NewEngineState()
	state.Tasks = append(state.Tasks, domain.Task{
		ID: 1, Title: "Test", Description: "Desc", Category: "backend",
		Stage: domain.StageExecute, Status: domain.TaskInProgress, Priority: 7,
		AssigneeAgentID: "worker-1", StageStartedAt: now,
		RequiredSkills: []string{"go"}, Checklist: []string{"a", "b"},
		CompletedItems: []string{"a"}, Artifacts: []string{"pr-1"},
		Metadata:  map[string]string{"last_unblocked_at": now.UTC().Format(time.RFC3339)},
		CreatedAt: now, UpdatedAt: now,
	})
	state.Agents["worker-1"] = &domain.Agent{
		ID: "worker-1", Name: "Worker One", Status: domain.AgentBusy,
		Skills: []string{"go", "sql"}, MaxConcurrentTasks: 3,
		RegisteredAt: now, LastSeen: now,
	}
	state.Templates["bugfix"] = &domain.Template{
		Name: "bugfix", Category: "maintenance", DefaultStage: domain.StagePlan,
		DefaultPriority: 7, Checklist: []string{"reproduce", "fix"},
		Active: true, TimesUsed: 3, SuccessCount: 2, FailureCount: 1,
		CreatedAt: now, UpdatedAt: now,
	}
	state.ActivityLog = append(state.ActivityLog, domain.ActivityLogEntry{
		ID: 1, Type: "task_assigned", Title: "Task #1 assigned", TaskID: 1,
		AgentID: "worker-1", Metadata: map[string]string{"total_score": "0.9"},
		CreatedAt: now,
	})
	state.Patterns = append(state.Patterns, domain.LearningPattern{
		ID: "p-1", TaskID: 1, Category: "backend", SkillsUsed: []string{"go"},
		Duration: 4 * time.Hour, Success: true, Confidence: 0.9, CreatedAt: now,
	})
	state.NextTaskID = 2
	state.NextLogID = 2
	state.TemplatesSeed = "abc123"

	if err := store.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Tasks) != 1 {
		t.Fatalf("len(Tasks) = %d, want 1", len(loaded.Tasks))
	}
	task := loaded.Tasks[0]
	if task.Stage != domain.StageExecute || task.Status != domain.TaskInProgress {
		t.Errorf("stage/status = %s/%s", task.Stage, task.Status)
	}
	if len(task.Checklist) != 2 || len(task.CompletedItems) != 1 {
		t.Errorf("checklist = %v completed = %v", task.Checklist, task.CompletedItems)
	}
	if task.Metadata["last_unblocked_at"] == "" {
		t.Error("task metadata lost")
	}
	agent := loaded.Agents["worker-1"]
	if agent == nil || agent.Status != domain.AgentBusy || len(agent.Skills) != 2 {
		t.Errorf("agent = %+v", agent)
	}
	tpl := loaded.Templates["bugfix"]
	if tpl == nil || tpl.TimesUsed != 3 || tpl.SuccessCount != 2 || tpl.FailureCount != 1 {
		t.Errorf("template = %+v", tpl)
	}
	if len(loaded.ActivityLog) != 1 || loaded.ActivityLog[0].Metadata["total_score"] != "0.9" {
		t.Errorf("activity log = %+v", loaded.ActivityLog)
	}
	if len(loaded.Patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(loaded.Patterns))
	}
	if loaded.Patterns[0].Duration != 4*time.Hour || !loaded.Patterns[0].Success {
		t.Errorf("pattern = %+v", loaded.Patterns[0])
	}
	if loaded.NextTaskID != 2 || loaded.NextLogID != 2 {
		t.Errorf("NextTaskID=%d NextLogID=%d, want 2, 2", loaded.NextTaskID, loaded.NextLogID)
	}
	if loaded.TemplatesSeed != "abc123" {
		t.Errorf("TemplatesSeed = %q", loaded.TemplatesSeed)
	}
}

func TestStoreClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "closed.sqlite")

	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st := store.(*Store)
	if err := st.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if st.db != nil {
		t.Error("Close should set db to nil")
	}
	// Second Close is no-op
	if err := st.Close(); err != nil {
		t.Errorf("Second Close: %v", err)
	}
}

func TestSelfHealingIDs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heal.sqlite")

	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if c, ok := store.(*Store); ok {
			_ = c.Close()
		}
	}()

	now := time.Now()

	// Counters intentionally behind the actual MAX(id): meta says
	// next_task_id=5 but task ID 10 exists. Load must heal them.
	state := domain.NewEngineState()
	state.Tasks = append(state.Tasks, domain.Task{
		ID: 10, Title: "drifted", Stage: domain.StageDiscuss, Status: domain.TaskPending,
		StageStartedAt: now, CreatedAt: now, UpdatedAt: now,
	})
	state.ActivityLog = append(state.ActivityLog, domain.ActivityLogEntry{
		ID: 7, Type: "task_created", CreatedAt: now,
	})
	state.NextTaskID = 5
	state.NextLogID = 3

	if err := store.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NextTaskID != 11 {
		t.Errorf("NextTaskID = %d, want healed 11", loaded.NextTaskID)
	}
	if loaded.NextLogID != 8 {
		t.Errorf("NextLogID = %d, want healed 8", loaded.NextLogID)
	}
}

func TestLoadEmptyDatabase(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "fresh.sqlite"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if c, ok := store.(*Store); ok {
			_ = c.Close()
		}
	}()

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(state.Tasks) != 0 || len(state.Agents) != 0 {
		t.Errorf("fresh db not empty: %+v", state)
	}
	if state.NextTaskID != 1 || state.NextLogID != 1 {
		t.Errorf("fresh counters = %d/%d, want 1/1", state.NextTaskID, state.NextLogID)
	}
}

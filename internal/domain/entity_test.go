package domain

import (
	"testing"
	"time"
)

func TestNextStage(t *testing.T) {
	tests := []struct {
		name    string
		current Stage
		want    Stage
		ok      bool
	}{
		{"discuss to plan", StageDiscuss, StagePlan, true},
		{"plan to execute", StagePlan, StageExecute, true},
		{"execute to verify", StageExecute, StageVerify, true},
		{"verify to integrate", StageVerify, StageIntegrate, true},
		{"integrate is terminal", StageIntegrate, "", false},
		{"unknown stage", Stage("SHIPPING"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextStage(tt.current)
			if ok != tt.ok || got != tt.want {
				t.Errorf("NextStage(%s) = (%s, %v), want (%s, %v)", tt.current, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseStage(t *testing.T) {
	if s, err := ParseStage("execute"); err != nil || s != StageExecute {
		t.Errorf("ParseStage(execute) = (%s, %v)", s, err)
	}
	if s, err := ParseStage(" Verify "); err != nil || s != StageVerify {
		t.Errorf("ParseStage( Verify ) = (%s, %v)", s, err)
	}
	if _, err := ParseStage("done"); err == nil {
		t.Error("expected error for invalid stage name")
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	for _, s := range []TaskStatus{TaskCompleted, TaskFailed, TaskCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TaskStatus{TaskPending, TaskClaimed, TaskInProgress, TaskBlocked} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestChecklistRatio(t *testing.T) {
	task := Task{Checklist: []string{"a", "b", "c", "d"}, CompletedItems: []string{"a", "c"}}
	if got := task.ChecklistRatio(); got != 0.5 {
		t.Errorf("ChecklistRatio = %v, want 0.5", got)
	}
	empty := Task{}
	if got := empty.ChecklistRatio(); got != 0 {
		t.Errorf("empty checklist ratio = %v, want 0", got)
	}
}

func TestHasDocumentedProgress(t *testing.T) {
	none := Task{Checklist: []string{"a"}}
	if none.HasDocumentedProgress() {
		t.Error("task with no completed items and 0%% progress should not count as progressed")
	}
	item := Task{Checklist: []string{"a"}, CompletedItems: []string{"a"}}
	if !item.HasDocumentedProgress() {
		t.Error("completed checklist item should count as progress")
	}
	pct := Task{ProgressPercent: 10}
	if !pct.HasDocumentedProgress() {
		t.Error("nonzero progress percent should count as progress")
	}
}

func TestAgentEligible(t *testing.T) {
	for status, want := range map[AgentStatus]bool{
		AgentIdle: true, AgentBusy: true, AgentError: true,
		AgentOffline: false, AgentArchived: false,
	} {
		a := Agent{Status: status}
		if a.Eligible() != want {
			t.Errorf("Eligible() for %s = %v, want %v", status, !want, want)
		}
	}
}

func TestTemplateSuccessRate(t *testing.T) {
	tp := Template{SuccessCount: 3, FailureCount: 1}
	if got := tp.SuccessRate(); got != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", got)
	}
	fresh := Template{}
	if got := fresh.SuccessRate(); got != 0 {
		t.Errorf("fresh template SuccessRate = %v, want 0", got)
	}
}

func TestFindTask(t *testing.T) {
	state := NewEngineState()
	state.Tasks = append(state.Tasks, Task{ID: 1, Title: "one", CreatedAt: time.Now()})
	state.Tasks = append(state.Tasks, Task{ID: 2, Title: "two", CreatedAt: time.Now()})

	if task := state.FindTask(2); task == nil || task.Title != "two" {
		t.Errorf("FindTask(2) = %+v", task)
	}
	if task := state.FindTask(99); task != nil {
		t.Errorf("FindTask(99) should be nil, got %+v", task)
	}
}

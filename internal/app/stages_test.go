package app

import (
	"testing"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

func stagedTask(id int, stage domain.Stage, checklist []string, done []string) domain.Task {
	task := pendingTask(id, "staged")
	task.Stage = stage
	task.Status = domain.TaskInProgress
	task.Checklist = checklist
	task.CompletedItems = done
	return task
}

func TestAdvanceStageByChecklistThreshold(t *testing.T) {
	state := domain.NewEngineState()
	// DISCUSS threshold is 50%: one of two items done qualifies.
	state.Tasks = append(state.Tasks, stagedTask(1, domain.StageDiscuss,
		[]string{"a", "b"}, []string{"a"}))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AdvanceStage(state, 1, time.Now())
	if err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if !res.Advanced {
		t.Fatalf("not advanced: %s", res.Reason)
	}
	if res.ToStage != string(domain.StagePlan) {
		t.Errorf("ToStage = %s, want PLAN", res.ToStage)
	}
	task := state.FindTask(1)
	if task.Stage != domain.StagePlan {
		t.Errorf("stage = %s, want PLAN", task.Stage)
	}
}

func TestAdvanceStageBelowThresholdStays(t *testing.T) {
	state := domain.NewEngineState()
	// PLAN threshold is 80%: one of two items is not enough.
	state.Tasks = append(state.Tasks, stagedTask(1, domain.StagePlan,
		[]string{"a", "b"}, []string{"a"}))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AdvanceStage(state, 1, time.Now())
	if err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if res.Advanced {
		t.Error("should not advance below threshold")
	}
}

func TestAdvanceStageByTimeBudgetNeedsProgress(t *testing.T) {
	state := domain.NewEngineState()
	now := time.Now()

	// Over budget but no documented progress: stays put.
	stuck := stagedTask(1, domain.StageDiscuss, []string{"a"}, nil)
	stuck.StageStartedAt = now.Add(-3 * time.Hour)
	// Over budget with some progress: advances.
	slow := stagedTask(2, domain.StageDiscuss, []string{"a", "b", "c", "d"}, []string{"a"})
	slow.StageStartedAt = now.Add(-3 * time.Hour)
	state.Tasks = append(state.Tasks, stuck, slow)
	state.NextTaskID = 3

	svc, _ := testService(state)
	res1, _ := svc.AdvanceStage(state, 1, now)
	if res1.Advanced {
		t.Error("task without documented progress must not advance on time alone")
	}
	res2, _ := svc.AdvanceStage(state, 2, now)
	if !res2.Advanced {
		t.Errorf("task over time budget with progress should advance: %s", res2.Reason)
	}
}

func TestAdvanceStageNeverPastIntegrate(t *testing.T) {
	state := domain.NewEngineState()
	state.Tasks = append(state.Tasks, stagedTask(1, domain.StageIntegrate,
		[]string{"a"}, []string{"a"}))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.AdvanceStage(state, 1, time.Now())
	if err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if res.Advanced {
		t.Error("INTEGRATE must be the last stage")
	}
}

func TestAdvanceStageSkipsBlocked(t *testing.T) {
	state := domain.NewEngineState()
	task := stagedTask(1, domain.StageDiscuss, []string{"a"}, []string{"a"})
	task.Status = domain.TaskBlocked
	state.Tasks = append(state.Tasks, task)
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, _ := svc.AdvanceStage(state, 1, time.Now())
	if res.Advanced {
		t.Error("blocked tasks must not advance")
	}
}

func TestAdvanceStageResetsStageClock(t *testing.T) {
	state := domain.NewEngineState()
	task := stagedTask(1, domain.StageDiscuss, []string{"a"}, []string{"a"})
	task.StageStartedAt = time.Now().Add(-5 * time.Hour)
	state.Tasks = append(state.Tasks, task)
	state.NextTaskID = 2

	svc, _ := testService(state)
	now := time.Now()
	if _, err := svc.AdvanceStage(state, 1, now); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if !state.FindTask(1).StageStartedAt.Equal(now) {
		t.Error("StageStartedAt should reset on advancement")
	}
}

func TestSetStageManualOverride(t *testing.T) {
	state := domain.NewEngineState()
	state.Tasks = append(state.Tasks, stagedTask(1, domain.StageVerify, nil, nil))
	state.NextTaskID = 2

	svc, _ := testService(state)
	res, err := svc.SetStage(state, 1, "discuss", time.Now())
	if err != nil {
		t.Fatalf("SetStage: %v", err)
	}
	if !res.Advanced || res.ToStage != string(domain.StageDiscuss) {
		t.Errorf("manual override to DISCUSS failed: %+v", res)
	}

	if _, err := svc.SetStage(state, 1, "bogus", time.Now()); err == nil {
		t.Error("expected error for unknown stage name")
	}
}

func TestAdvanceEligibleBatch(t *testing.T) {
	state := domain.NewEngineState()
	ready1 := stagedTask(1, domain.StageDiscuss, []string{"a"}, []string{"a"})
	ready2 := stagedTask(2, domain.StageDiscuss, []string{"a"}, []string{"a"})
	notReady := stagedTask(3, domain.StagePlan, []string{"a", "b"}, []string{"a"})
	state.Tasks = append(state.Tasks, ready1, ready2, notReady)
	state.NextTaskID = 4

	svc, _ := testService(state)
	results := svc.AdvanceEligible(state, 0, time.Now())
	advanced := 0
	for _, r := range results {
		if r.Advanced {
			advanced++
		}
	}
	if advanced != 2 {
		t.Errorf("advanced = %d, want 2", advanced)
	}
}

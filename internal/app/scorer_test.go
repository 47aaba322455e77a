package app

import (
	"testing"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
	"github.com/jaakkos/taskmill/internal/policy"
)

func refScoring() *policy.ScoringConfig {
	cfg := policy.DefaultConfig()
	return &cfg.Engine.Scoring
}

func TestScoreAgentWeightsSumToTotal(t *testing.T) {
	state := domain.NewEngineState()
	agent := idleAgent("a1", "go", "sql")
	state.Agents["a1"] = agent
	task := pendingTask(1, "migrate db", "go", "sql")

	sb := ScoreAgent(refScoring(), state, &task, agent, time.Now())
	want := 0.4*sb.Skill + 0.3*sb.Workload + 0.2*sb.SuccessRate + 0.1*sb.Activity
	if diff := sb.Total - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Total = %v, want weighted sum %v", sb.Total, want)
	}
}

func TestScoreAgentSkillMatching(t *testing.T) {
	state := domain.NewEngineState()
	now := time.Now()

	tests := []struct {
		name     string
		required []string
		skills   []string
		want     float64
	}{
		{"full match", []string{"go", "sql"}, []string{"go", "sql"}, 1.0},
		{"half match", []string{"go", "sql"}, []string{"go"}, 0.5},
		{"no match", []string{"rust"}, []string{"go"}, 0.0},
		{"case insensitive", []string{"Go"}, []string{"golang"}, 1.0},
		{"no required skills is neutral", nil, []string{"go"}, neutralSkillScore},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			agent := idleAgent("a1", tc.skills...)
			task := pendingTask(1, "t", tc.required...)
			sb := ScoreAgent(refScoring(), state, &task, agent, now)
			if sb.Skill != tc.want {
				t.Errorf("Skill = %v, want %v", sb.Skill, tc.want)
			}
		})
	}
}

func TestScoreAgentColdStartSuccessRate(t *testing.T) {
	state := domain.NewEngineState()
	agent := idleAgent("a1", "go")
	state.Agents["a1"] = agent
	task := pendingTask(1, "t", "go")

	sb := ScoreAgent(refScoring(), state, &task, agent, time.Now())
	if sb.SuccessRate != coldStartSuccessRate {
		t.Errorf("SuccessRate = %v, want cold-start %v", sb.SuccessRate, coldStartSuccessRate)
	}
}

func TestScoreAgentSuccessRateFromHistory(t *testing.T) {
	state := domain.NewEngineState()
	agent := idleAgent("a1", "go")
	state.Agents["a1"] = agent

	done := pendingTask(1, "done")
	done.Status = domain.TaskCompleted
	done.AssigneeAgentID = "a1"
	failed := pendingTask(2, "failed")
	failed.Status = domain.TaskFailed
	failed.AssigneeAgentID = "a1"
	state.Tasks = append(state.Tasks, done, failed)

	task := pendingTask(3, "t", "go")
	sb := ScoreAgent(refScoring(), state, &task, agent, time.Now())
	if sb.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", sb.SuccessRate)
	}
}

func TestScoreAgentWorkloadPrefersFreeAgents(t *testing.T) {
	state := domain.NewEngineState()
	free := idleAgent("free", "go")
	busy := idleAgent("busy", "go")
	busy.Status = domain.AgentBusy
	state.Agents["free"] = free
	state.Agents["busy"] = busy

	for i := 1; i <= 3; i++ {
		tk := pendingTask(i, "load")
		tk.Status = domain.TaskInProgress
		tk.AssigneeAgentID = "busy"
		state.Tasks = append(state.Tasks, tk)
	}

	task := pendingTask(10, "t", "go")
	now := time.Now()
	sbFree := ScoreAgent(refScoring(), state, &task, free, now)
	sbBusy := ScoreAgent(refScoring(), state, &task, busy, now)
	if sbFree.Workload != 1.0 {
		t.Errorf("free agent workload score = %v, want 1.0", sbFree.Workload)
	}
	if sbBusy.Workload != 0.0 {
		t.Errorf("saturated agent workload score = %v, want 0.0", sbBusy.Workload)
	}
}

func TestScoreAgentActivityCapped(t *testing.T) {
	state := domain.NewEngineState()
	agent := idleAgent("a1", "go")
	state.Agents["a1"] = agent
	now := time.Now()

	for i := 0; i < 25; i++ {
		AppendAudit(state, domain.ActivityLogEntry{
			Type:      "task_assigned",
			AgentID:   "a1",
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	// One stale entry outside the window should not count.
	AppendAudit(state, domain.ActivityLogEntry{
		Type:      "task_assigned",
		AgentID:   "a1",
		CreatedAt: now.Add(-48 * time.Hour),
	})

	task := pendingTask(1, "t", "go")
	sb := ScoreAgent(refScoring(), state, &task, agent, now)
	if sb.Activity != 1.0 {
		t.Errorf("Activity = %v, want capped 1.0", sb.Activity)
	}
}

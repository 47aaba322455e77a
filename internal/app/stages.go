package app

import (
	"fmt"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// AdvanceResult reports one stage-advancement decision for a task.
type AdvanceResult struct {
	TaskID    int    `json:"task_id"`
	Advanced  bool   `json:"advanced"`
	FromStage string `json:"from_stage,omitempty"`
	ToStage   string `json:"to_stage,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ReadyToAdvance reports whether the task currently satisfies the advancement
// rule for its stage: either the checklist fraction meets the stage threshold,
// or the task has sat in the stage longer than the stage's hour budget. Both
// paths additionally require documented progress.
func (s *EngineService) ReadyToAdvance(task *domain.Task, now time.Time) (bool, string) {
	if task.Status.IsTerminal() {
		return false, "task is terminal"
	}
	if task.Status == domain.TaskBlocked {
		return false, "task is blocked"
	}
	next, ok := domain.NextStage(task.Stage)
	if !ok {
		return false, fmt.Sprintf("stage %s has no successor", task.Stage)
	}
	if !task.HasDocumentedProgress() {
		return false, "no documented progress"
	}

	th := s.policy.StageThreshold(string(task.Stage))
	hours := th.Hours
	if task.AutoAdvanceThresholdHrs > 0 {
		hours = task.AutoAdvanceThresholdHrs
	}

	if task.ChecklistRatio() >= th.ChecklistFraction {
		return true, fmt.Sprintf("checklist %.0f%% meets %s threshold (next: %s)",
			task.ChecklistRatio()*100, task.Stage, next)
	}
	if hours > 0 && now.Sub(task.StageStartedAt) >= time.Duration(hours*float64(time.Hour)) {
		return true, fmt.Sprintf("time in %s exceeds %.1fh budget (next: %s)", task.Stage, hours, next)
	}
	return false, fmt.Sprintf("checklist %.0f%% below %.0f%% and %.1fh budget not reached",
		task.ChecklistRatio()*100, th.ChecklistFraction*100, hours)
}

// AdvanceStage moves the task one stage forward if it is ready, resetting the
// stage clock. It never skips stages and never advances past INTEGRATE.
func (s *EngineService) AdvanceStage(state *domain.EngineState, taskID int, now time.Time) (AdvanceResult, error) {
	res := AdvanceResult{TaskID: taskID}
	task := state.FindTask(taskID)
	if task == nil {
		return res, fmt.Errorf("task #%d not found", taskID)
	}
	res.FromStage = string(task.Stage)

	ready, reason := s.ReadyToAdvance(task, now)
	res.Reason = reason
	if !ready {
		return res, nil
	}

	next, _ := domain.NextStage(task.Stage)
	s.moveStage(state, task, next, reason, now)
	res.Advanced = true
	res.ToStage = string(next)
	return res, nil
}

// SetStage is the manual override: it moves a task to an arbitrary named
// stage, forward or backward, with no threshold checks. The stage clock still
// resets so time-based advancement starts fresh.
func (s *EngineService) SetStage(state *domain.EngineState, taskID int, stageName string, now time.Time) (AdvanceResult, error) {
	res := AdvanceResult{TaskID: taskID}
	task := state.FindTask(taskID)
	if task == nil {
		return res, fmt.Errorf("task #%d not found", taskID)
	}
	target, err := domain.ParseStage(stageName)
	if err != nil {
		return res, err
	}
	res.FromStage = string(task.Stage)
	if target == task.Stage {
		res.Reason = fmt.Sprintf("already in %s", target)
		return res, nil
	}
	s.moveStage(state, task, target, "manual override", now)
	res.Advanced = true
	res.ToStage = string(target)
	res.Reason = "manual override"
	return res, nil
}

func (s *EngineService) moveStage(state *domain.EngineState, task *domain.Task, to domain.Stage, reason string, now time.Time) {
	from := task.Stage
	task.Stage = to
	task.StageStartedAt = now
	task.UpdatedAt = now
	if task.Status == domain.TaskClaimed {
		task.Status = domain.TaskInProgress
	}

	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "stage_advanced",
		Title:       fmt.Sprintf("Task #%d: %s → %s", task.ID, from, to),
		Description: reason,
		Status:      string(task.Status),
		TaskID:      task.ID,
		AgentID:     task.AssigneeAgentID,
		Metadata: map[string]string{
			"from_stage":         string(from),
			"to_stage":           string(to),
			"checklist_complete": fmt.Sprintf("%.0f%%", task.ChecklistRatio()*100),
		},
		CreatedAt: now,
	})
}

// AdvanceEligible scans every active task and advances each one that is
// ready, up to limit (0 means the configured batch size). Tasks that are not
// ready are skipped silently; the result array covers only examined active
// tasks.
func (s *EngineService) AdvanceEligible(state *domain.EngineState, limit int, now time.Time) []AdvanceResult {
	if limit <= 0 {
		limit = s.policy.Engine().BatchSize
	}

	var results []AdvanceResult
	advanced := 0
	for i := range state.Tasks {
		if advanced >= limit {
			break
		}
		task := &state.Tasks[i]
		if task.Status.IsTerminal() || task.Status == domain.TaskBlocked {
			continue
		}
		if _, ok := domain.NextStage(task.Stage); !ok {
			continue
		}
		res, err := s.AdvanceStage(state, task.ID, now)
		if err != nil {
			continue
		}
		results = append(results, res)
		if res.Advanced {
			advanced++
		}
	}
	return results
}

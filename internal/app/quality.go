package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// QualityCheck is one boolean criterion of the completion gate.
type QualityCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// QualityReport is the result of running the completion gate over a task.
// Score is passed checks over total checks as a percentage; the gate passes
// at or above the configured pass score. Recommendation tells the caller
// what to do about the failing checks.
type QualityReport struct {
	TaskID         int            `json:"task_id"`
	Checks         []QualityCheck `json:"checks"`
	Score          int            `json:"score"`
	Passed         bool           `json:"passed"`
	Recommendation string         `json:"recommendation"`
}

// checkAdvice maps a failing check to the action that would clear it.
var checkAdvice = map[string]string{
	"has_artifacts":      "record at least one deliverable artifact",
	"checklist_complete": "finish the checklist to 80% or more",
	"not_blocked":        "resolve the blocker first",
	"has_resolution":     "write a resolution summary",
	"late_stage":         "advance the task to VERIFY or INTEGRATE",
}

// VerifyCompletion runs the quality gate: five equally weighted checks over
// artifacts, checklist progress, blocked state, resolution notes, and
// pipeline position. The gate is advisory: it records a quality_gate audit
// entry and a recommendation but never changes task status; the caller
// decides what a failing report means.
func (s *EngineService) VerifyCompletion(state *domain.EngineState, taskID int, now time.Time) (QualityReport, error) {
	rep := QualityReport{TaskID: taskID}
	task := state.FindTask(taskID)
	if task == nil {
		return rep, fmt.Errorf("task #%d not found", taskID)
	}

	rep.Checks = []QualityCheck{
		{
			Name:   "has_artifacts",
			Passed: len(task.Artifacts) > 0,
			Detail: fmt.Sprintf("%d artifact(s)", len(task.Artifacts)),
		},
		{
			Name:   "checklist_complete",
			Passed: task.ChecklistRatio() >= 0.8,
			Detail: fmt.Sprintf("checklist %.0f%%", task.ChecklistRatio()*100),
		},
		{
			Name:   "not_blocked",
			Passed: task.Status != domain.TaskBlocked,
			Detail: string(task.Status),
		},
		{
			Name:   "has_resolution",
			Passed: strings.TrimSpace(task.Resolution) != "" || task.Status == domain.TaskCompleted,
			Detail: Truncate(task.Resolution, 80),
		},
		{
			Name:   "late_stage",
			Passed: task.Stage == domain.StageVerify || task.Stage == domain.StageIntegrate,
			Detail: string(task.Stage),
		},
	}

	passed := 0
	checkMeta := map[string]string{}
	var advice []string
	for _, c := range rep.Checks {
		if c.Passed {
			passed++
			checkMeta[c.Name] = "pass"
			continue
		}
		checkMeta[c.Name] = "fail"
		if a, ok := checkAdvice[c.Name]; ok {
			advice = append(advice, a)
		}
	}
	rep.Score = passed * 100 / len(rep.Checks)
	rep.Passed = rep.Score >= s.policy.Engine().QualityGatePassScore
	if rep.Passed {
		rep.Recommendation = "ready to complete"
	} else {
		rep.Recommendation = strings.Join(advice, "; ")
	}

	checkMeta["score"] = fmt.Sprintf("%d", rep.Score)
	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "quality_gate",
		Title:       fmt.Sprintf("Quality gate on task #%d: %d%%", task.ID, rep.Score),
		Description: rep.Recommendation,
		Status:      string(task.Status),
		TaskID:      task.ID,
		AgentID:     task.AssigneeAgentID,
		Metadata:    checkMeta,
		CreatedAt:   now,
	})
	return rep, nil
}

// CompleteTask runs the gate and, on a pass, marks the task COMPLETED with
// the given resolution and frees the assignee if it has no other active
// work. A failing gate leaves the task untouched and reports the checks.
func (s *EngineService) CompleteTask(state *domain.EngineState, taskID int, resolution string, now time.Time) (QualityReport, error) {
	task := state.FindTask(taskID)
	if task == nil {
		return QualityReport{TaskID: taskID}, fmt.Errorf("task #%d not found", taskID)
	}
	if task.Status.IsTerminal() {
		return QualityReport{TaskID: taskID}, fmt.Errorf("task #%d is already %s", taskID, task.Status)
	}
	if strings.TrimSpace(resolution) != "" {
		task.Resolution = resolution
	}

	rep, err := s.VerifyCompletion(state, taskID, now)
	if err != nil {
		return rep, err
	}
	if !rep.Passed {
		return rep, nil
	}

	task.Status = domain.TaskCompleted
	task.ProgressPercent = 100
	task.UpdatedAt = now

	if task.AssigneeAgentID != "" {
		if agent, ok := state.Agents[task.AssigneeAgentID]; ok && agent.Status == domain.AgentBusy {
			if AgentWorkload(state, agent.ID) == 0 {
				agent.Status = domain.AgentIdle
			}
			agent.LastSeen = now
		}
	}

	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "task_completed",
		Title:       fmt.Sprintf("Task #%d completed (quality %d%%)", task.ID, rep.Score),
		Description: Truncate(task.Title, 120),
		Status:      string(task.Status),
		TaskID:      task.ID,
		AgentID:     task.AssigneeAgentID,
		Metadata:    map[string]string{"quality_score": fmt.Sprintf("%d", rep.Score)},
		CreatedAt:   now,
	})
	return rep, nil
}

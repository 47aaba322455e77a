package app

import (
	"fmt"
	"sort"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// NearMiss describes a candidate that failed the skill floor, reported for
// diagnostics when no agent qualifies.
type NearMiss struct {
	AgentID    string  `json:"agent_id"`
	AgentName  string  `json:"agent_name"`
	SkillMatch float64 `json:"skill_match_pct"` // percentage 0-100
}

// AssignResult is the outcome of one assignment attempt. "No eligible agent"
// is an expected outcome, reported as Assigned=false with Reason and
// NearMisses — never an error.
type AssignResult struct {
	TaskID     int             `json:"task_id"`
	Assigned   bool            `json:"assigned"`
	AgentID    string          `json:"agent_id,omitempty"`
	AgentName  string          `json:"agent_name,omitempty"`
	Score      *ScoreBreakdown `json:"score,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	NearMisses []NearMiss      `json:"near_misses,omitempty"`
}

// AssignOptions tunes one assignment attempt.
type AssignOptions struct {
	PreferredAgentID string
	// MinSkillMatch is the required-skill coverage floor in [0,1].
	// Negative means "use the configured default".
	MinSkillMatch float64
}

// AssignTask scores every eligible agent for the task, ranks them, and
// commits the best candidate that clears the skill floor. A preferred agent
// is promoted to the front of the ranking if it clears the floor itself
// (a soft pin, not an override).
//
// The floor gates required-skill coverage: a task with no required skills has
// nothing to gate, so every candidate clears it while the neutral 0.5 skill
// sub-score still applies for ranking.
func (s *EngineService) AssignTask(state *domain.EngineState, taskID int, opts AssignOptions) (AssignResult, error) {
	res := AssignResult{TaskID: taskID}

	task := state.FindTask(taskID)
	if task == nil {
		return res, fmt.Errorf("task #%d not found", taskID)
	}
	if task.Status.IsTerminal() {
		return res, fmt.Errorf("task #%d is %s and cannot be assigned", taskID, task.Status)
	}
	if task.AssigneeAgentID != "" {
		res.Reason = fmt.Sprintf("already assigned to %s", task.AssigneeAgentID)
		return res, nil
	}

	minSkill := opts.MinSkillMatch
	if minSkill < 0 {
		minSkill = s.policy.Engine().Scoring.DefaultMinSkill
	}

	now := time.Now()
	cfg := &s.policy.Engine().Scoring
	var scored []ScoreBreakdown
	for _, agent := range state.Agents {
		if agent == nil || !agent.Eligible() {
			continue
		}
		scored = append(scored, ScoreAgent(cfg, state, task, agent, now))
	}
	if len(scored) == 0 {
		res.Reason = "no eligible agents"
		return res, nil
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Total > scored[j].Total })

	// Soft pin: promote the preferred agent to the front if it clears the floor.
	if opts.PreferredAgentID != "" {
		for i, sc := range scored {
			if sc.AgentID == opts.PreferredAgentID && clearsSkillFloor(task, sc, minSkill) {
				promoted := scored[i]
				copy(scored[1:i+1], scored[:i])
				scored[0] = promoted
				break
			}
		}
	}

	var winner *ScoreBreakdown
	for i := range scored {
		if clearsSkillFloor(task, scored[i], minSkill) {
			winner = &scored[i]
			break
		}
	}
	if winner == nil {
		res.Reason = fmt.Sprintf("no agent meets min skill match %.0f%%", minSkill*100)
		for i, sc := range scored {
			if i == 3 {
				break
			}
			res.NearMisses = append(res.NearMisses, NearMiss{
				AgentID:    sc.AgentID,
				AgentName:  sc.AgentName,
				SkillMatch: sc.Skill * 100,
			})
		}
		return res, nil
	}

	agent := state.Agents[winner.AgentID]
	task.AssigneeAgentID = agent.ID
	task.Status = domain.TaskClaimed
	task.AutoAssigned = true
	task.UpdatedAt = now
	if agent.Status == domain.AgentIdle {
		agent.Status = domain.AgentBusy
	}
	agent.LastSeen = now

	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "task_assigned",
		Title:       fmt.Sprintf("Task #%d assigned to %s", task.ID, agent.Name),
		Description: Truncate(task.Title, 120),
		Status:      string(task.Status),
		TaskID:      task.ID,
		AgentID:     agent.ID,
		Metadata: map[string]string{
			"skill_score":        fmt.Sprintf("%.3f", winner.Skill),
			"workload_score":     fmt.Sprintf("%.3f", winner.Workload),
			"success_rate_score": fmt.Sprintf("%.3f", winner.SuccessRate),
			"activity_score":     fmt.Sprintf("%.3f", winner.Activity),
			"total_score":        fmt.Sprintf("%.3f", winner.Total),
		},
		CreatedAt: now,
	})

	res.Assigned = true
	res.AgentID = agent.ID
	res.AgentName = agent.Name
	res.Score = winner
	return res, nil
}

// clearsSkillFloor applies the reconciled floor policy: coverage is gated
// only when the task actually requires skills.
func clearsSkillFloor(task *domain.Task, sc ScoreBreakdown, minSkill float64) bool {
	if len(task.RequiredSkills) == 0 {
		return true
	}
	return sc.Skill >= minSkill
}

// AssignBatch pulls up to limit unassigned PENDING tasks ordered by priority
// (highest first, oldest first within a priority) and runs the single-task
// assignment for each, continuing past individual failures. Partial success
// is valid; the caller gets a per-task array.
func (s *EngineService) AssignBatch(state *domain.EngineState, limit int, minSkillMatch float64) []AssignResult {
	if limit <= 0 {
		limit = s.policy.Engine().BatchSize
	}

	var pending []*domain.Task
	for i := range state.Tasks {
		t := &state.Tasks[i]
		if t.Status == domain.TaskPending && t.AssigneeAgentID == "" {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	results := make([]AssignResult, 0, len(pending))
	for _, t := range pending {
		res, err := s.AssignTask(state, t.ID, AssignOptions{MinSkillMatch: minSkillMatch})
		if err != nil {
			res = AssignResult{TaskID: t.ID, Reason: err.Error()}
		}
		results = append(results, res)
	}
	return results
}

package app

import (
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
	"github.com/jaakkos/taskmill/internal/policy"
)

const (
	// coldStartSuccessRate is used for agents with no completed/failed
	// history, so new agents are not punished to zero.
	coldStartSuccessRate = 0.7

	// neutralSkillScore is the skill sub-score for tasks requiring no skills:
	// neutral, not a free pass.
	neutralSkillScore = 0.5

	// activityWindow and activityCap bound the activity sub-score:
	// min(entries in the window / cap, 1).
	activityWindow = 24 * time.Hour
	activityCap    = 10
)

// ScoreBreakdown is the full fitness score between a task and an agent.
// Sub-scores are each in [0,1]; Total is their weighted sum.
type ScoreBreakdown struct {
	AgentID     string  `json:"agent_id"`
	AgentName   string  `json:"agent_name"`
	Skill       float64 `json:"skill_score"`
	Workload    float64 `json:"workload_score"`
	SuccessRate float64 `json:"success_rate_score"`
	Activity    float64 `json:"activity_score"`
	Total       float64 `json:"total_score"`
}

// ScoreAgent computes the fitness score of one agent for a task's required
// skills. Callers must exclude OFFLINE/ARCHIVED agents before scoring
// (see Agent.Eligible).
func ScoreAgent(cfg *policy.ScoringConfig, state *domain.EngineState, task *domain.Task, agent *domain.Agent, now time.Time) ScoreBreakdown {
	b := ScoreBreakdown{AgentID: agent.ID, AgentName: agent.Name}

	b.Skill = skillScore(task.RequiredSkills, agent.Skills)
	b.Workload = workloadScore(state, agent)
	b.SuccessRate = successRateScore(state, agent.ID)
	b.Activity = activityScore(state, agent.ID, now)

	b.Total = cfg.SkillWeight*b.Skill +
		cfg.WorkloadWeight*b.Workload +
		cfg.SuccessRateWeight*b.SuccessRate +
		cfg.ActivityWeight*b.Activity
	return b
}

// skillScore is the fraction of required skills that fuzzy-match at least one
// agent skill. A task with no required skills scores neutral 0.5.
func skillScore(required, agentSkills []string) float64 {
	if len(required) == 0 {
		return neutralSkillScore
	}
	matched := 0
	for _, req := range required {
		for _, have := range agentSkills {
			if SkillMatches(req, have) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(required))
}

// workloadScore is 1 - workload/capacity, clamped. Workload is derived from
// task state, never from a stored counter.
func workloadScore(state *domain.EngineState, agent *domain.Agent) float64 {
	capacity := agent.MaxConcurrentTasks
	if capacity <= 0 {
		capacity = 1
	}
	return clamp01(1 - float64(AgentWorkload(state, agent.ID))/float64(capacity))
}

// successRateScore is completed/(completed+failed+cancelled) over all tasks
// ever assigned to the agent, with a cold-start default.
func successRateScore(state *domain.EngineState, agentID string) float64 {
	completed, finished := 0, 0
	for i := range state.Tasks {
		t := &state.Tasks[i]
		if t.AssigneeAgentID != agentID {
			continue
		}
		switch t.Status {
		case domain.TaskCompleted:
			completed++
			finished++
		case domain.TaskFailed, domain.TaskCancelled:
			finished++
		}
	}
	if finished == 0 {
		return coldStartSuccessRate
	}
	return float64(completed) / float64(finished)
}

// activityScore rewards recently active agents, capped so activity never
// dominates: min(audit entries in the last 24h / 10, 1).
func activityScore(state *domain.EngineState, agentID string, now time.Time) float64 {
	count := RecentActivityCount(state, agentID, activityWindow, now)
	return clamp01(float64(count) / float64(activityCap))
}

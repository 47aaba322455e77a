package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// CreateTaskInput carries the fields of a free-form (non-template) task.
type CreateTaskInput struct {
	Title                   string
	Description             string
	Category                string
	Priority                int
	Stage                   string
	RequiredSkills          []string
	Checklist               []string
	AutoAdvanceThresholdHrs float64
}

// CreateTask appends a new PENDING task built from input. Stage defaults to
// DISCUSS, priority to 5.
func (s *EngineService) CreateTask(state *domain.EngineState, in CreateTaskInput, now time.Time) (*domain.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title must not be empty")
	}
	stage := domain.StageDiscuss
	if in.Stage != "" {
		parsed, err := domain.ParseStage(in.Stage)
		if err != nil {
			return nil, err
		}
		stage = parsed
	}
	priority := in.Priority
	if priority <= 0 {
		priority = 5
	}

	task := domain.Task{
		ID:                      state.NextTaskID,
		Title:                   in.Title,
		Description:             in.Description,
		Category:                in.Category,
		Stage:                   stage,
		Status:                  domain.TaskPending,
		Priority:                priority,
		StageStartedAt:          now,
		AutoAdvanceThresholdHrs: in.AutoAdvanceThresholdHrs,
		RequiredSkills:          append([]string(nil), in.RequiredSkills...),
		Checklist:               append([]string(nil), in.Checklist...),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	state.NextTaskID++
	state.Tasks = append(state.Tasks, task)

	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "task_created",
		Title:       fmt.Sprintf("Task #%d created", task.ID),
		Description: Truncate(in.Title, 120),
		Status:      string(task.Status),
		TaskID:      task.ID,
		CreatedAt:   now,
	})
	return state.FindTask(task.ID), nil
}

// UpdateChecklistItem marks one checklist item done (or not). CompletedItems
// stays a subset of Checklist: unknown items are rejected, double completion
// is a no-op. ProgressPercent tracks the checklist ratio.
func (s *EngineService) UpdateChecklistItem(state *domain.EngineState, taskID int, item string, done bool, now time.Time) (*domain.Task, error) {
	task := state.FindTask(taskID)
	if task == nil {
		return nil, fmt.Errorf("task #%d not found", taskID)
	}
	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("task #%d is %s; checklist is frozen", taskID, task.Status)
	}

	found := false
	for _, c := range task.Checklist {
		if c == item {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("checklist item %q not on task #%d", item, taskID)
	}

	idx := -1
	for i, c := range task.CompletedItems {
		if c == item {
			idx = i
			break
		}
	}
	if done && idx < 0 {
		task.CompletedItems = append(task.CompletedItems, item)
	}
	if !done && idx >= 0 {
		task.CompletedItems = append(task.CompletedItems[:idx], task.CompletedItems[idx+1:]...)
	}
	task.ProgressPercent = int(task.ChecklistRatio() * 100)
	task.UpdatedAt = now
	return task, nil
}

// UpdateChecklistItemAt addresses a checklist item by zero-based position
// instead of text.
func (s *EngineService) UpdateChecklistItemAt(state *domain.EngineState, taskID, index int, done bool, now time.Time) (*domain.Task, error) {
	task := state.FindTask(taskID)
	if task == nil {
		return nil, fmt.Errorf("task #%d not found", taskID)
	}
	if index < 0 || index >= len(task.Checklist) {
		return nil, fmt.Errorf("checklist index %d out of range on task #%d (%d items)", index, taskID, len(task.Checklist))
	}
	return s.UpdateChecklistItem(state, taskID, task.Checklist[index], done, now)
}

// StalledTask pairs a task with how long it has overstayed its stage budget.
type StalledTask struct {
	TaskID       int     `json:"task_id"`
	Title        string  `json:"title"`
	Stage        string  `json:"stage"`
	HoursInStage float64 `json:"hours_in_stage"`
	BudgetHours  float64 `json:"budget_hours"`
}

// FindStalled returns active tasks whose time in stage exceeds the stage
// budget times the stall multiplier, worst offenders first.
func (s *EngineService) FindStalled(state *domain.EngineState, now time.Time) []StalledTask {
	mult := s.policy.Engine().StallMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	var stalled []StalledTask
	for i := range state.Tasks {
		task := &state.Tasks[i]
		if task.Status.IsTerminal() {
			continue
		}
		budget := s.policy.StageThreshold(string(task.Stage)).Hours
		if task.AutoAdvanceThresholdHrs > 0 {
			budget = task.AutoAdvanceThresholdHrs
		}
		if budget <= 0 {
			continue
		}
		inStage := now.Sub(task.StageStartedAt).Hours()
		if inStage >= budget*mult {
			stalled = append(stalled, StalledTask{
				TaskID:       task.ID,
				Title:        task.Title,
				Stage:        string(task.Stage),
				HoursInStage: inStage,
				BudgetHours:  budget,
			})
		}
	}
	sort.Slice(stalled, func(i, j int) bool {
		return stalled[i].HoursInStage-stalled[i].BudgetHours > stalled[j].HoursInStage-stalled[j].BudgetHours
	})
	return stalled
}

// EscalateStalled bumps a stalled task's priority by one (capped at 10) and
// records the escalation with its reason, so schedulers and humans see it
// surface.
func (s *EngineService) EscalateStalled(state *domain.EngineState, taskID int, reason string, now time.Time) (*domain.Task, error) {
	task := state.FindTask(taskID)
	if task == nil {
		return nil, fmt.Errorf("task #%d not found", taskID)
	}
	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("task #%d is %s; nothing to escalate", taskID, task.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("escalation reason must not be empty")
	}
	if task.Priority < 10 {
		task.Priority++
	}
	task.UpdatedAt = now
	if task.Metadata == nil {
		task.Metadata = map[string]string{}
	}
	task.Metadata["last_escalated_at"] = now.UTC().Format(time.RFC3339)
	task.Metadata["escalation_reason"] = Truncate(reason, 160)

	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "task_escalated",
		Title:       fmt.Sprintf("Task #%d escalated to priority %d", task.ID, task.Priority),
		Description: Truncate(reason, 160),
		Status:      string(task.Status),
		TaskID:      task.ID,
		AgentID:     task.AssigneeAgentID,
		Metadata:    map[string]string{"reason": Truncate(reason, 160)},
		CreatedAt:   now,
	})
	return task, nil
}

// ListTasks filters tasks by optional status and stage names and returns
// them newest first.
func ListTasks(state *domain.EngineState, status, stage string, limit int) []domain.Task {
	var out []domain.Task
	for i := range state.Tasks {
		t := state.Tasks[i]
		if status != "" && !strings.EqualFold(string(t.Status), status) {
			continue
		}
		if stage != "" && !strings.EqualFold(string(t.Stage), stage) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

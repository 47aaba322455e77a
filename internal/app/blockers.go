package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// BlockerRule maps blocked-reason keywords to a resolution decision. Rules
// are evaluated in order and the first match wins.
type BlockerRule struct {
	Category    string
	Keywords    []string
	AutoResolve bool
	Suggestion  string
}

// blockerRules is the ordered rule table. Categories that merely wait on an
// external event resolve automatically; categories that need a human (access
// grants, approvals) only produce a suggestion.
var blockerRules = []BlockerRule{
	{
		Category:    "github",
		Keywords:    []string{"github", "pull request", "merge conflict", "ci "},
		AutoResolve: true,
		Suggestion:  "re-check CI status and rebase onto the default branch",
	},
	{
		Category:    "dependency",
		Keywords:    []string{"dependency", "depends on", "blocked by task", "upstream"},
		AutoResolve: true,
		Suggestion:  "verify the upstream task has completed",
	},
	{
		Category:    "permission",
		Keywords:    []string{"permission", "access denied", "unauthorized", "credentials"},
		AutoResolve: false,
		Suggestion:  "request access from the resource owner",
	},
	{
		Category:    "api",
		Keywords:    []string{"api ", "rate limit", "timeout", "503", "unavailable"},
		AutoResolve: true,
		Suggestion:  "retry with backoff once the service recovers",
	},
	// Approval outranks waiting: "awaiting sign-off" is an approval blocker,
	// not something a retry sweep may clear.
	{
		Category:    "approval",
		Keywords:    []string{"approval", "sign-off", "review required"},
		AutoResolve: false,
		Suggestion:  "escalate to the approver",
	},
	{
		Category:    "waiting",
		Keywords:    []string{"waiting for", "waiting on", "pending response", "no reply"},
		AutoResolve: true,
		Suggestion:  "follow up on the outstanding request",
	},
}

// ResolveOutcome reports what happened to one blocked task during a
// resolution sweep.
type ResolveOutcome struct {
	TaskID     int    `json:"task_id"`
	Category   string `json:"category"`
	Resolved   bool   `json:"resolved"`
	Suggestion string `json:"suggestion,omitempty"`
}

// classifyBlocker matches the blocked reason against the rule table. A reason
// that matches nothing falls through to a generic manual-intervention rule.
func classifyBlocker(reason string) BlockerRule {
	lower := strings.ToLower(reason)
	for _, rule := range blockerRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule
			}
		}
	}
	return BlockerRule{
		Category:    "unknown",
		AutoResolve: false,
		Suggestion:  "needs manual review",
	}
}

// resolveBlockedTask applies the matching rule to one BLOCKED task. The
// caller has already checked the status.
func (s *EngineService) resolveBlockedTask(state *domain.EngineState, task *domain.Task, now time.Time) ResolveOutcome {
	rule := classifyBlocker(task.BlockedReason)
	out := ResolveOutcome{TaskID: task.ID, Category: rule.Category, Suggestion: rule.Suggestion}
	if !rule.AutoResolve {
		return out
	}

	originalReason := task.BlockedReason
	task.Status = domain.TaskInProgress
	task.BlockedReason = ""
	task.UpdatedAt = now
	if task.Metadata == nil {
		task.Metadata = map[string]string{}
	}
	task.Metadata["last_unblocked_at"] = now.UTC().Format(time.RFC3339)
	out.Resolved = true
	out.Suggestion = ""

	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "blocker_resolved",
		Title:       fmt.Sprintf("Task #%d unblocked (%s)", task.ID, rule.Category),
		Description: Truncate(task.Title, 120),
		Status:      string(task.Status),
		TaskID:      task.ID,
		AgentID:     task.AssigneeAgentID,
		Metadata: map[string]string{
			"category":        rule.Category,
			"original_reason": Truncate(originalReason, 160),
			"action":          "returned to IN_PROGRESS",
		},
		CreatedAt: now,
	})
	return out
}

// ResolveBlockers sweeps every BLOCKED task once. Auto-resolvable categories
// return the task to IN_PROGRESS with the reason cleared; the rest get a
// suggestion attached to the outcome. A task resolved here is never re-blocked
// by the same sweep: resolution happens at most once per task per call.
func (s *EngineService) ResolveBlockers(state *domain.EngineState, now time.Time) []ResolveOutcome {
	var outcomes []ResolveOutcome
	for i := range state.Tasks {
		task := &state.Tasks[i]
		if task.Status != domain.TaskBlocked {
			continue
		}
		outcomes = append(outcomes, s.resolveBlockedTask(state, task, now))
	}
	return outcomes
}

// ResolveBlocker runs the rule table against a single BLOCKED task.
func (s *EngineService) ResolveBlocker(state *domain.EngineState, taskID int, now time.Time) (ResolveOutcome, error) {
	task := state.FindTask(taskID)
	if task == nil {
		return ResolveOutcome{TaskID: taskID}, fmt.Errorf("task #%d not found", taskID)
	}
	if task.Status != domain.TaskBlocked {
		return ResolveOutcome{TaskID: taskID}, fmt.Errorf("task #%d is %s, not BLOCKED", taskID, task.Status)
	}
	return s.resolveBlockedTask(state, task, now), nil
}

// BlockTask marks a task blocked with the given reason. Terminal tasks cannot
// be blocked.
func (s *EngineService) BlockTask(state *domain.EngineState, taskID int, reason string, now time.Time) error {
	task := state.FindTask(taskID)
	if task == nil {
		return fmt.Errorf("task #%d not found", taskID)
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("task #%d is %s and cannot be blocked", taskID, task.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("blocked reason must not be empty")
	}
	task.Status = domain.TaskBlocked
	task.BlockedReason = reason
	task.UpdatedAt = now

	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "task_blocked",
		Title:       fmt.Sprintf("Task #%d blocked", task.ID),
		Description: Truncate(reason, 160),
		Status:      string(task.Status),
		TaskID:      task.ID,
		AgentID:     task.AssigneeAgentID,
		CreatedAt:   now,
	})
	return nil
}

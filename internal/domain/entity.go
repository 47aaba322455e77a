// Package domain holds task automation entities and aggregate state.
// It has no dependencies on other packages.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage is one of the five pipeline phases a task passes through.
type Stage string

const (
	StageDiscuss   Stage = "DISCUSS"
	StagePlan      Stage = "PLAN"
	StageExecute   Stage = "EXECUTE"
	StageVerify    Stage = "VERIFY"
	StageIntegrate Stage = "INTEGRATE"
)

// StageOrder is the total order of pipeline stages. Automatic advancement
// walks this slice forward one step at a time; it never skips and never
// moves past INTEGRATE.
var StageOrder = []Stage{StageDiscuss, StagePlan, StageExecute, StageVerify, StageIntegrate}

// NextStage returns the stage after current, or false when current is
// INTEGRATE (terminal for staging purposes) or unknown.
func NextStage(current Stage) (Stage, bool) {
	for i, s := range StageOrder {
		if s == current && i+1 < len(StageOrder) {
			return StageOrder[i+1], true
		}
	}
	return "", false
}

// ParseStage validates a stage name (case-insensitive) and returns the
// canonical Stage. Used by the manual override path.
func ParseStage(name string) (Stage, error) {
	upper := Stage(strings.ToUpper(strings.TrimSpace(name)))
	for _, s := range StageOrder {
		if s == upper {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q (valid: DISCUSS, PLAN, EXECUTE, VERIFY, INTEGRATE)", name)
}

// TaskStatus is the lifecycle status of a task, independent of its stage.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskClaimed    TaskStatus = "CLAIMED"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskBlocked    TaskStatus = "BLOCKED"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// IsTerminal reports whether the status permits no further engine mutation.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// AgentStatus is the availability status of an agent.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "IDLE"
	AgentBusy     AgentStatus = "BUSY"
	AgentOffline  AgentStatus = "OFFLINE"
	AgentError    AgentStatus = "ERROR"
	AgentArchived AgentStatus = "ARCHIVED"
)

// Task is a unit of work moving through the pipeline.
type Task struct {
	ID                      int               `json:"id"`
	Title                   string            `json:"title"`
	Description             string            `json:"description"`
	Category                string            `json:"category"`
	Stage                   Stage             `json:"stage"`
	Status                  TaskStatus        `json:"status"`
	Priority                int               `json:"priority"` // higher = more urgent
	ProgressPercent         int               `json:"progress_percent"`
	AssigneeAgentID         string            `json:"assignee_agent_id,omitempty"`
	BlockedReason           string            `json:"blocked_reason,omitempty"`
	StageStartedAt          time.Time         `json:"stage_started_at"`
	AutoAdvanceThresholdHrs float64           `json:"auto_advance_threshold_hours,omitempty"`
	RequiredSkills          []string          `json:"required_skills,omitempty"`
	Checklist               []string          `json:"checklist,omitempty"` // immutable after creation
	CompletedItems          []string          `json:"completed_checklist_items,omitempty"`
	Artifacts               []string          `json:"artifacts,omitempty"`
	Resolution              string            `json:"resolution,omitempty"`
	TemplateName            string            `json:"template_name,omitempty"`
	AutoAssigned            bool              `json:"auto_assigned,omitempty"`
	KnowledgeExtracted      bool              `json:"knowledge_extracted,omitempty"`
	Metadata                map[string]string `json:"metadata,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// ChecklistRatio returns completed/total checklist fraction, 0 when the task
// has no checklist.
func (t *Task) ChecklistRatio() float64 {
	if len(t.Checklist) == 0 {
		return 0
	}
	return float64(len(t.CompletedItems)) / float64(len(t.Checklist))
}

// HasDocumentedProgress reports whether the task shows any evidence of work:
// at least one completed checklist item or nonzero progress percentage.
// Stage advancement requires this so an untouched task never times out into
// the next stage.
func (t *Task) HasDocumentedProgress() bool {
	return len(t.CompletedItems) > 0 || t.ProgressPercent > 0
}

// Agent is a worker (human or automated) with skills and capacity.
type Agent struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Status             AgentStatus `json:"status"`
	Skills             []string    `json:"skills,omitempty"`
	CurrentWorkload    int         `json:"current_workload"` // refreshed from task counts on save
	MaxConcurrentTasks int         `json:"max_concurrent_tasks"`
	RegisteredAt       time.Time   `json:"registered_at"`
	LastSeen           time.Time   `json:"last_seen"`
}

// Eligible reports whether the agent may be scored for assignment at all.
func (a *Agent) Eligible() bool {
	return a.Status != AgentOffline && a.Status != AgentArchived
}

// Template is a named blueprint for creating consistent tasks.
type Template struct {
	Name                    string    `json:"name"`
	Category                string    `json:"category"`
	Description             string    `json:"description,omitempty"`
	DefaultStage            Stage     `json:"default_stage"`
	DefaultPriority         int       `json:"default_priority"`
	RequiredSkills          []string  `json:"required_skills,omitempty"`
	Checklist               []string  `json:"checklist,omitempty"`
	AutoAdvanceThresholdHrs float64   `json:"auto_advance_threshold_hours,omitempty"`
	Active                  bool      `json:"active"`
	TimesUsed               int       `json:"times_used"`
	SuccessCount            int       `json:"success_count"`
	FailureCount            int       `json:"failure_count"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// SuccessRate returns the rolling success fraction over counted outcomes,
// 0 when no task created from this template has finished yet.
func (tp *Template) SuccessRate() float64 {
	total := tp.SuccessCount + tp.FailureCount
	if total == 0 {
		return 0
	}
	return float64(tp.SuccessCount) / float64(total)
}

// ActivityLogEntry is an append-only audit record. Never mutated after
// creation; the knowledge extractor and metrics aggregator read it.
type ActivityLogEntry struct {
	ID          int               `json:"id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status,omitempty"`
	TaskID      int               `json:"task_id,omitempty"`
	AgentID     string            `json:"agent_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// LearningPattern is a derived record summarizing one finished task for
// future scoring and template tuning. Append-only.
type LearningPattern struct {
	ID           string        `json:"id"`
	TaskID       int           `json:"task_id"`
	Category     string        `json:"category,omitempty"`
	TemplateName string        `json:"template_name,omitempty"`
	SkillsUsed   []string      `json:"skills_used,omitempty"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	Confidence   float64       `json:"confidence"`
	CreatedAt    time.Time     `json:"created_at"`
}

// EngineState is the aggregate persisted state the engine operates on.
type EngineState struct {
	Tasks         []Task               `json:"tasks"`
	Agents        map[string]*Agent    `json:"agents"`
	Templates     map[string]*Template `json:"templates"`
	ActivityLog   []ActivityLogEntry   `json:"activity_log"`
	Patterns      []LearningPattern    `json:"patterns"`
	NextTaskID    int                  `json:"next_task_id"`
	NextLogID     int                  `json:"next_log_id"`
	TemplatesSeed string               `json:"templates_seed,omitempty"` // checksum of last applied seed
}

// NewEngineState returns an empty EngineState with maps and IDs initialized.
func NewEngineState() *EngineState {
	return &EngineState{
		Tasks:       []Task{},
		Agents:      make(map[string]*Agent),
		Templates:   make(map[string]*Template),
		ActivityLog: []ActivityLogEntry{},
		Patterns:    []LearningPattern{},
		NextTaskID:  1,
		NextLogID:   1,
	}
}

// FindTask returns a pointer into state.Tasks for the given ID, or nil.
func (s *EngineState) FindTask(id int) *Task {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	return nil
}

package app

import (
	"sort"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// TemplateUsage is one row of the top-templates metric.
type TemplateUsage struct {
	Name        string  `json:"name"`
	TimesUsed   int     `json:"times_used"`
	SuccessRate float64 `json:"success_rate"`
}

// Metrics is a point-in-time snapshot of engine health. Rates are fractions
// in [0,1]; a denominator of zero yields a rate of zero, not NaN.
type Metrics struct {
	TotalTasks         int             `json:"total_tasks"`
	TasksByStatus      map[string]int  `json:"tasks_by_status"`
	TasksByStage       map[string]int  `json:"tasks_by_stage"`
	AutomationCoverage float64         `json:"automation_coverage"`
	CompletionRate     float64         `json:"completion_rate"`
	AutoAssignmentRate float64         `json:"auto_assignment_rate"`
	ExtractionRate     float64         `json:"extraction_rate"`
	AgentUtilization   float64         `json:"agent_utilization"`
	AvgCompletionHours float64         `json:"avg_completion_hours"`
	PatternCount       int             `json:"pattern_count"`
	BlockedCount       int             `json:"blocked_count"`
	WindowHours        float64         `json:"window_hours,omitempty"`
	TopTemplates       []TemplateUsage `json:"top_templates"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

// ComputeMetrics derives the snapshot from current state. Task-level rates
// cover only tasks touched within the trailing windowHours (0 means all
// time); agents, templates, and patterns are always point-in-time. Pure
// read; callers run it under Query (or Run when persisting a snapshot).
func ComputeMetrics(state *domain.EngineState, now time.Time, windowHours float64) Metrics {
	m := Metrics{
		TasksByStatus: map[string]int{},
		TasksByStage:  map[string]int{},
		WindowHours:   windowHours,
		GeneratedAt:   now,
	}

	var cutoff time.Time
	if windowHours > 0 {
		cutoff = now.Add(-time.Duration(windowHours * float64(time.Hour)))
	}

	var (
		terminal      int
		completed     int
		templated     int
		assigned      int
		autoAssigned  int
		extracted     int
		completionSum time.Duration
	)
	for i := range state.Tasks {
		t := &state.Tasks[i]
		if !cutoff.IsZero() && t.UpdatedAt.Before(cutoff) {
			continue
		}
		m.TotalTasks++
		m.TasksByStatus[string(t.Status)]++
		m.TasksByStage[string(t.Stage)]++
		if t.Status == domain.TaskBlocked {
			m.BlockedCount++
		}
		if t.TemplateName != "" {
			templated++
		}
		if t.AssigneeAgentID != "" {
			assigned++
			if t.AutoAssigned {
				autoAssigned++
			}
		}
		if t.Status.IsTerminal() {
			terminal++
			if t.KnowledgeExtracted {
				extracted++
			}
		}
		if t.Status == domain.TaskCompleted {
			completed++
			if d := t.UpdatedAt.Sub(t.CreatedAt); d > 0 {
				completionSum += d
			}
		}
	}

	if m.TotalTasks > 0 {
		m.AutomationCoverage = float64(templated) / float64(m.TotalTasks)
		m.CompletionRate = float64(completed) / float64(m.TotalTasks)
	}
	if assigned > 0 {
		m.AutoAssignmentRate = float64(autoAssigned) / float64(assigned)
	}
	if terminal > 0 {
		m.ExtractionRate = float64(extracted) / float64(terminal)
	}
	if completed > 0 {
		m.AvgCompletionHours = completionSum.Hours() / float64(completed)
	}

	// Utilization is summed workload over summed capacity. OFFLINE and
	// ARCHIVED agents contribute neither.
	var workload, capacity int
	for _, a := range state.Agents {
		if a == nil || !a.Eligible() {
			continue
		}
		workload += AgentWorkload(state, a.ID)
		capacity += a.MaxConcurrentTasks
	}
	if capacity > 0 {
		m.AgentUtilization = float64(workload) / float64(capacity)
	}

	m.PatternCount = len(state.Patterns)
	m.TopTemplates = topTemplates(state, 5)
	return m
}

func topTemplates(state *domain.EngineState, n int) []TemplateUsage {
	usage := make([]TemplateUsage, 0, len(state.Templates))
	for _, tpl := range state.Templates {
		if tpl == nil || tpl.TimesUsed == 0 {
			continue
		}
		usage = append(usage, TemplateUsage{
			Name:        tpl.Name,
			TimesUsed:   tpl.TimesUsed,
			SuccessRate: tpl.SuccessRate(),
		})
	}
	sort.SliceStable(usage, func(i, j int) bool {
		if usage[i].TimesUsed != usage[j].TimesUsed {
			return usage[i].TimesUsed > usage[j].TimesUsed
		}
		return usage[i].Name < usage[j].Name
	})
	if len(usage) > n {
		usage = usage[:n]
	}
	return usage
}

package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// CreateFromTemplate instantiates a task from a named template: the task
// inherits the template's category, stage, priority, required skills,
// checklist, and time budget, with per-call overrides for title, description,
// and priority. Usage counters bump on every instantiation.
func (s *EngineService) CreateFromTemplate(state *domain.EngineState, templateName, title, description string, priority int, now time.Time) (*domain.Task, error) {
	tpl, ok := state.Templates[templateName]
	if !ok || tpl == nil {
		return nil, fmt.Errorf("template %q not found", templateName)
	}
	if !tpl.Active {
		return nil, fmt.Errorf("template %q is inactive", templateName)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("title must not be empty")
	}
	if description == "" {
		description = tpl.Description
	}
	if priority <= 0 {
		priority = tpl.DefaultPriority
	}

	stage := tpl.DefaultStage
	if stage == "" {
		stage = domain.StageDiscuss
	}

	task := domain.Task{
		ID:                      state.NextTaskID,
		Title:                   title,
		Description:             description,
		Category:                tpl.Category,
		Stage:                   stage,
		Status:                  domain.TaskPending,
		Priority:                priority,
		StageStartedAt:          now,
		AutoAdvanceThresholdHrs: tpl.AutoAdvanceThresholdHrs,
		RequiredSkills:          append([]string(nil), tpl.RequiredSkills...),
		Checklist:               append([]string(nil), tpl.Checklist...),
		TemplateName:            tpl.Name,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	state.NextTaskID++
	state.Tasks = append(state.Tasks, task)

	tpl.TimesUsed++
	tpl.UpdatedAt = now

	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "task_created",
		Title:       fmt.Sprintf("Task #%d from template %s", task.ID, tpl.Name),
		Description: Truncate(title, 120),
		Status:      string(task.Status),
		TaskID:      task.ID,
		Metadata:    map[string]string{"template": tpl.Name},
		CreatedAt:   now,
	})
	return state.FindTask(task.ID), nil
}

// ListTemplates returns templates sorted by name, optionally filtered by
// category. Inactive templates are included when all is true.
func ListTemplates(state *domain.EngineState, all bool, category string) []domain.Template {
	out := make([]domain.Template, 0, len(state.Templates))
	for _, tpl := range state.Templates {
		if tpl == nil {
			continue
		}
		if !all && !tpl.Active {
			continue
		}
		if category != "" && !strings.EqualFold(tpl.Category, category) {
			continue
		}
		out = append(out, *tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

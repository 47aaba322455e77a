package app

import (
	"fmt"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// PatternHit is one full-text search result over learned patterns.
type PatternHit struct {
	PatternID string  `json:"pattern_id"`
	TaskID    int     `json:"task_id"`
	Category  string  `json:"category"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

// PatternSearcher answers full-text queries over the pattern index.
type PatternSearcher interface {
	Search(query string, limit int) ([]PatternHit, error)
}

// SetSearcher attaches the pattern search backend. Safe to leave unset;
// search_patterns then reports the index as unavailable.
func (s *EngineService) SetSearcher(ps PatternSearcher) {
	s.searcher = ps
}

// Dispatch executes a named engine action with loosely typed parameters and
// returns a result envelope. Every envelope carries "success" and
// "execution_time_ms"; expected negative outcomes (no eligible agent, gate
// not passed, unknown action) come back as success=false with an "error" or
// domain payload, never as a transport failure.
func (s *EngineService) Dispatch(action string, params map[string]any) map[string]any {
	start := time.Now()
	result, err := s.dispatch(action, params)
	if result == nil {
		result = map[string]any{}
	}
	if err != nil {
		result["success"] = false
		result["error"] = err.Error()
	} else if _, ok := result["success"]; !ok {
		result["success"] = true
	}
	result["action"] = action
	result["execution_time_ms"] = time.Since(start).Milliseconds()
	return result
}

func (s *EngineService) dispatch(action string, params map[string]any) (map[string]any, error) {
	now := time.Now()
	switch action {
	case "run_all":
		return s.actionRunAll(params, now)
	case "create_task":
		return s.actionCreateTask(params, now)
	case "create_from_template":
		return s.actionCreateFromTemplate(params, now)
	case "smart_assign":
		return s.actionSmartAssign(params)
	case "advance_task_stage":
		return s.actionAdvanceStage(params, now)
	case "checklist_based_advance":
		return s.actionChecklistAdvance(params, now)
	case "update_checklist_item":
		return s.actionUpdateChecklist(params, now)
	case "auto_resolve_blockers":
		return s.actionResolveBlockers(params, now)
	case "report_blocker":
		return s.actionReportBlocker(params, now)
	case "verify_completion":
		return s.actionVerifyCompletion(params, now)
	case "extract_knowledge":
		return s.actionExtractKnowledge(params, now)
	case "escalate_stalled_task":
		return s.actionEscalateStalled(params, now)
	case "get_metrics":
		return s.actionGetMetrics(params, now)
	case "list_templates":
		return s.actionListTemplates(params)
	case "list_tasks":
		return s.actionListTasks(params)
	case "get_task":
		return s.actionGetTask(params)
	case "register_agent":
		return s.actionRegisterAgent(params, now)
	case "list_agents":
		return s.actionListAgents()
	case "search_patterns":
		return s.actionSearchPatterns(params)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// actionRunAll chains the three automation sweeps in pipeline order:
// assignment first so new tasks get owners, advancement second so fresh
// progress counts, blocker resolution last. An empty system succeeds with
// zero counts.
func (s *EngineService) actionRunAll(params map[string]any, now time.Time) (map[string]any, error) {
	limit := argInt(params, "limit", 0)
	var (
		assignments []AssignResult
		advances    []AdvanceResult
		resolutions []ResolveOutcome
	)
	err := s.Run(func(state *domain.EngineState) error {
		assignments = s.AssignBatch(state, limit, -1)
		advances = s.AdvanceEligible(state, limit, now)
		resolutions = s.ResolveBlockers(state, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	assigned, advanced, resolved := 0, 0, 0
	for _, a := range assignments {
		if a.Assigned {
			assigned++
		}
	}
	for _, a := range advances {
		if a.Advanced {
			advanced++
		}
	}
	for _, r := range resolutions {
		if r.Resolved {
			resolved++
		}
	}
	return map[string]any{
		"assigned_count": assigned,
		"advanced_count": advanced,
		"resolved_count": resolved,
		"assignments":    assignments,
		"advances":       advances,
		"resolutions":    resolutions,
	}, nil
}

func (s *EngineService) actionCreateTask(params map[string]any, now time.Time) (map[string]any, error) {
	title, err := requireStringParam(params, "title")
	if err != nil {
		return nil, err
	}
	in := CreateTaskInput{
		Title:                   title,
		Description:             argString(params, "description", ""),
		Category:                argString(params, "category", ""),
		Priority:                argInt(params, "priority", 0),
		Stage:                   argString(params, "stage", ""),
		RequiredSkills:          argStringSlice(params, "required_skills"),
		Checklist:               argStringSlice(params, "checklist"),
		AutoAdvanceThresholdHrs: argFloat(params, "auto_advance_threshold_hours", 0),
	}
	var task *domain.Task
	err = s.Run(func(state *domain.EngineState) error {
		t, err := s.CreateTask(state, in, now)
		if err != nil {
			return err
		}
		task = cloneTask(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": task}, nil
}

func (s *EngineService) actionCreateFromTemplate(params map[string]any, now time.Time) (map[string]any, error) {
	name, err := requireStringAny(params, "template_name", "template")
	if err != nil {
		return nil, err
	}
	title, err := requireStringParam(params, "title")
	if err != nil {
		return nil, err
	}
	var task *domain.Task
	err = s.Run(func(state *domain.EngineState) error {
		t, err := s.CreateFromTemplate(state, name, title,
			argString(params, "description", ""), argInt(params, "priority", 0), now)
		if err != nil {
			return err
		}
		task = cloneTask(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": task}, nil
}

func (s *EngineService) actionSmartAssign(params map[string]any) (map[string]any, error) {
	taskID := argInt(params, "task_id", 0)
	preferred, _ := firstString(params, "prefer_agent_id", "preferred_agent")
	opts := AssignOptions{
		PreferredAgentID: preferred,
		MinSkillMatch:    argFloat(params, "min_skill_match", -1),
	}
	if taskID > 0 {
		var res AssignResult
		err := s.Run(func(state *domain.EngineState) error {
			r, err := s.AssignTask(state, taskID, opts)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": res.Assigned, "result": res}, nil
	}

	// No task_id: batch mode over pending tasks.
	var results []AssignResult
	err := s.Run(func(state *domain.EngineState) error {
		results = s.AssignBatch(state, argInt(params, "limit", 0), opts.MinSkillMatch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	assigned := 0
	for _, r := range results {
		if r.Assigned {
			assigned++
		}
	}
	return map[string]any{"assigned_count": assigned, "results": results}, nil
}

func (s *EngineService) actionAdvanceStage(params map[string]any, now time.Time) (map[string]any, error) {
	taskID, err := requireIntParam(params, "task_id")
	if err != nil {
		return nil, err
	}
	target, _ := firstString(params, "target_stage", "stage")
	var res AdvanceResult
	err = s.Run(func(state *domain.EngineState) error {
		var e error
		if target != "" {
			res, e = s.SetStage(state, taskID, target, now)
		} else {
			res, e = s.AdvanceStage(state, taskID, now)
		}
		return e
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": res.Advanced, "result": res}, nil
}

func (s *EngineService) actionChecklistAdvance(params map[string]any, now time.Time) (map[string]any, error) {
	if taskID := argInt(params, "task_id", 0); taskID > 0 {
		var res AdvanceResult
		err := s.Run(func(state *domain.EngineState) error {
			r, e := s.AdvanceStage(state, taskID, now)
			if e != nil {
				return e
			}
			res = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": res.Advanced, "result": res}, nil
	}

	var results []AdvanceResult
	err := s.Run(func(state *domain.EngineState) error {
		results = s.AdvanceEligible(state, argInt(params, "limit", 0), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	advanced := 0
	for _, r := range results {
		if r.Advanced {
			advanced++
		}
	}
	return map[string]any{"advanced_count": advanced, "results": results}, nil
}

func (s *EngineService) actionUpdateChecklist(params map[string]any, now time.Time) (map[string]any, error) {
	taskID, err := requireIntParam(params, "task_id")
	if err != nil {
		return nil, err
	}
	done := argBool(params, "completed", argBool(params, "done", true))

	// Items are addressed by position or by exact text.
	index, byIndex := argIntOK(params, "item_index")
	var item string
	if !byIndex {
		item, err = requireStringAny(params, "item_text", "item")
		if err != nil {
			return nil, err
		}
	}

	var task *domain.Task
	err = s.Run(func(state *domain.EngineState) error {
		var t *domain.Task
		var e error
		if byIndex {
			t, e = s.UpdateChecklistItemAt(state, taskID, index, done, now)
		} else {
			t, e = s.UpdateChecklistItem(state, taskID, item, done, now)
		}
		if e != nil {
			return e
		}
		task = cloneTask(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": task}, nil
}

func (s *EngineService) actionResolveBlockers(params map[string]any, now time.Time) (map[string]any, error) {
	if taskID := argInt(params, "task_id", 0); taskID > 0 {
		var out ResolveOutcome
		err := s.Run(func(state *domain.EngineState) error {
			o, e := s.ResolveBlocker(state, taskID, now)
			if e != nil {
				return e
			}
			out = o
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": out.Resolved, "outcome": out}, nil
	}

	var outcomes []ResolveOutcome
	err := s.Run(func(state *domain.EngineState) error {
		outcomes = s.ResolveBlockers(state, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	resolved := 0
	for _, o := range outcomes {
		if o.Resolved {
			resolved++
		}
	}
	return map[string]any{"resolved_count": resolved, "outcomes": outcomes}, nil
}

func (s *EngineService) actionReportBlocker(params map[string]any, now time.Time) (map[string]any, error) {
	taskID, err := requireIntParam(params, "task_id")
	if err != nil {
		return nil, err
	}
	reason, err := requireStringParam(params, "reason")
	if err != nil {
		return nil, err
	}
	err = s.Run(func(state *domain.EngineState) error {
		return s.BlockTask(state, taskID, reason, now)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"category": classifyBlocker(reason).Category}, nil
}

func (s *EngineService) actionVerifyCompletion(params map[string]any, now time.Time) (map[string]any, error) {
	taskID, err := requireIntParam(params, "task_id")
	if err != nil {
		return nil, err
	}
	var rep QualityReport
	if argBool(params, "complete", false) {
		err = s.Run(func(state *domain.EngineState) error {
			r, e := s.CompleteTask(state, taskID, argString(params, "resolution", ""), now)
			if e != nil {
				return e
			}
			rep = r
			return nil
		})
	} else {
		// The gate is read-only for the task, but it records a quality_gate
		// audit entry, so this still goes through Run.
		err = s.Run(func(state *domain.EngineState) error {
			r, e := s.VerifyCompletion(state, taskID, now)
			if e != nil {
				return e
			}
			rep = r
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": rep.Passed, "report": rep}, nil
}

func (s *EngineService) actionExtractKnowledge(params map[string]any, now time.Time) (map[string]any, error) {
	taskID := argInt(params, "task_id", 0)
	if taskID > 0 {
		var pattern *domain.LearningPattern
		err := s.Run(func(state *domain.EngineState) error {
			p, e := s.ExtractKnowledge(state, taskID, now)
			if e != nil {
				return e
			}
			pattern = p
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"pattern": pattern}, nil
	}

	var patterns []domain.LearningPattern
	err := s.Run(func(state *domain.EngineState) error {
		patterns = s.ExtractAll(state, argInt(params, "limit", 0),
			argFloat(params, "completed_since_hours", 0), now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"extracted_count": len(patterns), "patterns": patterns}, nil
}

func (s *EngineService) actionEscalateStalled(params map[string]any, now time.Time) (map[string]any, error) {
	taskID := argInt(params, "task_id", 0)
	if taskID > 0 {
		reason, err := requireStringParam(params, "reason")
		if err != nil {
			return nil, err
		}
		var task *domain.Task
		err = s.Run(func(state *domain.EngineState) error {
			t, e := s.EscalateStalled(state, taskID, reason, now)
			if e != nil {
				return e
			}
			task = cloneTask(t)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"task": task}, nil
	}

	// No task_id: escalate everything currently stalled.
	var escalated []StalledTask
	err := s.Run(func(state *domain.EngineState) error {
		for _, st := range s.FindStalled(state, now) {
			reason := fmt.Sprintf("%.1fh in %s exceeds the %.1fh budget", st.HoursInStage, st.Stage, st.BudgetHours)
			if _, e := s.EscalateStalled(state, st.TaskID, reason, now); e == nil {
				escalated = append(escalated, st)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"escalated_count": len(escalated), "stalled": escalated}, nil
}

func (s *EngineService) actionGetMetrics(params map[string]any, now time.Time) (map[string]any, error) {
	window := argFloat(params, "time_window_hours", 0)
	var m Metrics

	// store_metrics persists the snapshot as an audit entry; plain reads
	// stay on the Query path and never write.
	if argBool(params, "store_metrics", false) {
		err := s.Run(func(state *domain.EngineState) error {
			m = ComputeMetrics(state, now, window)
			AppendAudit(state, domain.ActivityLogEntry{
				Type:  "metrics_snapshot",
				Title: fmt.Sprintf("Metrics snapshot: %d task(s), %d blocked", m.TotalTasks, m.BlockedCount),
				Metadata: map[string]string{
					"total_tasks":         fmt.Sprintf("%d", m.TotalTasks),
					"automation_coverage": fmt.Sprintf("%.3f", m.AutomationCoverage),
					"completion_rate":     fmt.Sprintf("%.3f", m.CompletionRate),
					"agent_utilization":   fmt.Sprintf("%.3f", m.AgentUtilization),
					"window_hours":        fmt.Sprintf("%.1f", window),
				},
				CreatedAt: now,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"metrics": m, "stored": true}, nil
	}

	err := s.Query(func(state *domain.EngineState) error {
		m = ComputeMetrics(state, now, window)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"metrics": m}, nil
}

func (s *EngineService) actionListTemplates(params map[string]any) (map[string]any, error) {
	all := argBool(params, "include_inactive", argBool(params, "all", false))
	var templates []domain.Template
	err := s.Query(func(state *domain.EngineState) error {
		templates = ListTemplates(state, all, argString(params, "category", ""))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"templates": templates}, nil
}

func (s *EngineService) actionListTasks(params map[string]any) (map[string]any, error) {
	var tasks []domain.Task
	err := s.Query(func(state *domain.EngineState) error {
		tasks = ListTasks(state,
			argString(params, "status", ""),
			argString(params, "stage", ""),
			argInt(params, "limit", 20))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"tasks": tasks, "count": len(tasks)}, nil
}

func (s *EngineService) actionGetTask(params map[string]any) (map[string]any, error) {
	taskID, err := requireIntParam(params, "task_id")
	if err != nil {
		return nil, err
	}
	var task *domain.Task
	err = s.Query(func(state *domain.EngineState) error {
		t := state.FindTask(taskID)
		if t == nil {
			return fmt.Errorf("task #%d not found", taskID)
		}
		task = cloneTask(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": task}, nil
}

func (s *EngineService) actionRegisterAgent(params map[string]any, now time.Time) (map[string]any, error) {
	id, err := requireStringParam(params, "agent_id")
	if err != nil {
		return nil, err
	}
	var agent domain.Agent
	err = s.Run(func(state *domain.EngineState) error {
		a, e := s.RegisterAgent(state, id,
			argString(params, "name", ""),
			argStringSlice(params, "skills"),
			argInt(params, "max_concurrent_tasks", 0), now)
		if e != nil {
			return e
		}
		agent = *a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent": agent}, nil
}

func (s *EngineService) actionListAgents() (map[string]any, error) {
	var agents []domain.Agent
	err := s.Query(func(state *domain.EngineState) error {
		agents = ListAgents(state)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"agents": agents, "count": len(agents)}, nil
}

func (s *EngineService) actionSearchPatterns(params map[string]any) (map[string]any, error) {
	if s.searcher == nil {
		return nil, fmt.Errorf("pattern index unavailable")
	}
	query, err := requireStringParam(params, "query")
	if err != nil {
		return nil, err
	}
	hits, err := s.searcher.Search(query, argInt(params, "limit", 10))
	if err != nil {
		return nil, err
	}
	return map[string]any{"hits": hits, "count": len(hits)}, nil
}

func cloneTask(t *domain.Task) *domain.Task {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

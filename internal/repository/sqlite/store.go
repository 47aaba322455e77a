package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jaakkos/taskmill/internal/app"
	"github.com/jaakkos/taskmill/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 5,
	progress_percent INTEGER NOT NULL DEFAULT 0,
	assignee_agent_id TEXT NOT NULL DEFAULT '',
	blocked_reason TEXT NOT NULL DEFAULT '',
	stage_started_at TEXT NOT NULL,
	auto_advance_threshold_hrs REAL NOT NULL DEFAULT 0,
	required_skills TEXT NOT NULL DEFAULT '[]',
	checklist TEXT NOT NULL DEFAULT '[]',
	completed_items TEXT NOT NULL DEFAULT '[]',
	artifacts TEXT NOT NULL DEFAULT '[]',
	resolution TEXT NOT NULL DEFAULT '',
	template_name TEXT NOT NULL DEFAULT '',
	auto_assigned INTEGER NOT NULL DEFAULT 0,
	knowledge_extracted INTEGER NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'IDLE',
	skills TEXT NOT NULL DEFAULT '[]',
	current_workload INTEGER NOT NULL DEFAULT 0,
	max_concurrent_tasks INTEGER NOT NULL DEFAULT 5,
	registered_at TEXT NOT NULL,
	last_seen TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS templates (
	name TEXT PRIMARY KEY,
	category TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	default_stage TEXT NOT NULL DEFAULT 'DISCUSS',
	default_priority INTEGER NOT NULL DEFAULT 5,
	required_skills TEXT NOT NULL DEFAULT '[]',
	checklist TEXT NOT NULL DEFAULT '[]',
	auto_advance_threshold_hrs REAL NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	times_used INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS activity_log (
	id INTEGER PRIMARY KEY,
	type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	task_id INTEGER NOT NULL DEFAULT 0,
	agent_id TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS learning_patterns (
	id TEXT PRIMARY KEY,
	task_id INTEGER NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	template_name TEXT NOT NULL DEFAULT '',
	skills_used TEXT NOT NULL DEFAULT '[]',
	duration_sec INTEGER NOT NULL DEFAULT 0,
	success INTEGER NOT NULL DEFAULT 0,
	confidence REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// indexes for common query patterns (assignment sweeps, audit scans)
const indexes = `
CREATE INDEX IF NOT EXISTS idx_tasks_status_assignee ON tasks(status, assignee_agent_id);
CREATE INDEX IF NOT EXISTS idx_activity_agent_created ON activity_log(agent_id, created_at);
`

// Store implements app.StateRepository using SQLite.
type Store struct {
	db *sql.DB
}

// New opens the SQLite database at path (creating parent dirs and schema) and returns a StateRepository.
func New(path string) (app.StateRepository, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	if _, err := db.Exec(indexes); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite indexes: %w", err)
	}
	// Migrations for existing databases (ignore errors for already-applied ones).
	_ = runMigrations(db)
	return &Store{db: db}, nil
}

// runMigrations applies schema migrations for older databases. Errors are
// silently ignored because some may already be applied.
func runMigrations(db *sql.DB) error {
	_, _ = db.Exec("ALTER TABLE tasks ADD COLUMN metadata TEXT NOT NULL DEFAULT '{}'")
	_, _ = db.Exec("ALTER TABLE tasks ADD COLUMN knowledge_extracted INTEGER NOT NULL DEFAULT 0")
	_, _ = db.Exec("ALTER TABLE templates ADD COLUMN failure_count INTEGER NOT NULL DEFAULT 0")
	return nil
}

// Close releases the database connection. Call on shutdown for clean exit.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// parseTime parses RFC3339Nano or returns zero time and error.
func parseTime(s, context string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: parse timestamp %q: %w", context, s, err)
	}
	return t, nil
}

// isNoSuchTableErr returns true if the error indicates the table doesn't exist.
func isNoSuchTableErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// parseJSON unmarshals b into v or returns error with context.
func parseJSON(b []byte, v interface{}, context string) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: %w", context, err)
	}
	return nil
}

// Load implements app.StateRepository.
func (s *Store) Load() (*domain.EngineState, error) {
	state := domain.NewEngineState()

	rows, err := s.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return nil, err
		}
		meta[k] = v
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("meta iteration: %w", err)
	}
	if v, ok := meta["next_task_id"]; ok {
		if _, err := fmt.Sscanf(v, "%d", &state.NextTaskID); err != nil {
			return nil, fmt.Errorf("meta next_task_id %q: %w", v, err)
		}
	}
	if v, ok := meta["next_log_id"]; ok {
		if _, err := fmt.Sscanf(v, "%d", &state.NextLogID); err != nil {
			return nil, fmt.Errorf("meta next_log_id %q: %w", v, err)
		}
	}
	if v, ok := meta["templates_seed"]; ok {
		state.TemplatesSeed = v
	}

	rows, err = s.db.Query("SELECT id, title, description, category, stage, status, priority, progress_percent, assignee_agent_id, blocked_reason, stage_started_at, auto_advance_threshold_hrs, required_skills, checklist, completed_items, artifacts, resolution, template_name, auto_assigned, knowledge_extracted, metadata, created_at, updated_at FROM tasks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}
	for rows.Next() {
		var t domain.Task
		var stage, status, ssa, ca, ua string
		var skills, checklist, completed, artifacts, metadata string
		var autoAssigned, extracted int
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &stage, &status, &t.Priority, &t.ProgressPercent, &t.AssigneeAgentID, &t.BlockedReason, &ssa, &t.AutoAdvanceThresholdHrs, &skills, &checklist, &completed, &artifacts, &t.Resolution, &t.TemplateName, &autoAssigned, &extracted, &metadata, &ca, &ua); err != nil {
			_ = rows.Close()
			return nil, err
		}
		t.Stage = domain.Stage(stage)
		t.Status = domain.TaskStatus(status)
		t.AutoAssigned = autoAssigned != 0
		t.KnowledgeExtracted = extracted != 0
		var err error
		if t.StageStartedAt, err = parseTime(ssa, "tasks stage_started_at"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if t.CreatedAt, err = parseTime(ca, "tasks"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if t.UpdatedAt, err = parseTime(ua, "tasks"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		for _, pair := range []struct {
			raw []byte
			dst interface{}
			ctx string
		}{
			{[]byte(skills), &t.RequiredSkills, "tasks required_skills"},
			{[]byte(checklist), &t.Checklist, "tasks checklist"},
			{[]byte(completed), &t.CompletedItems, "tasks completed_items"},
			{[]byte(artifacts), &t.Artifacts, "tasks artifacts"},
		} {
			if err := parseJSON(pair.raw, pair.dst, pair.ctx); err != nil {
				_ = rows.Close()
				return nil, err
			}
		}
		if metadata != "" && metadata != "{}" {
			t.Metadata = make(map[string]string)
			if err := parseJSON([]byte(metadata), &t.Metadata, "tasks metadata"); err != nil {
				_ = rows.Close()
				return nil, err
			}
		}
		state.Tasks = append(state.Tasks, t)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tasks iteration: %w", err)
	}

	rows, err = s.db.Query("SELECT id, name, status, skills, current_workload, max_concurrent_tasks, registered_at, last_seen FROM agents")
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	for rows.Next() {
		var a domain.Agent
		var status, skills, regAt, ls string
		if err := rows.Scan(&a.ID, &a.Name, &status, &skills, &a.CurrentWorkload, &a.MaxConcurrentTasks, &regAt, &ls); err != nil {
			_ = rows.Close()
			return nil, err
		}
		a.Status = domain.AgentStatus(status)
		if err := parseJSON([]byte(skills), &a.Skills, "agents skills"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		var err error
		if a.RegisteredAt, err = parseTime(regAt, "agents registered_at"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if a.LastSeen, err = parseTime(ls, "agents last_seen"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		state.Agents[a.ID] = &a
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agents iteration: %w", err)
	}

	rows, err = s.db.Query("SELECT name, category, description, default_stage, default_priority, required_skills, checklist, auto_advance_threshold_hrs, active, times_used, success_count, failure_count, created_at, updated_at FROM templates")
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	for rows.Next() {
		var tpl domain.Template
		var stage, skills, checklist, ca, ua string
		var active int
		if err := rows.Scan(&tpl.Name, &tpl.Category, &tpl.Description, &stage, &tpl.DefaultPriority, &skills, &checklist, &tpl.AutoAdvanceThresholdHrs, &active, &tpl.TimesUsed, &tpl.SuccessCount, &tpl.FailureCount, &ca, &ua); err != nil {
			_ = rows.Close()
			return nil, err
		}
		tpl.DefaultStage = domain.Stage(stage)
		tpl.Active = active != 0
		if err := parseJSON([]byte(skills), &tpl.RequiredSkills, "templates required_skills"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if err := parseJSON([]byte(checklist), &tpl.Checklist, "templates checklist"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		var err error
		if tpl.CreatedAt, err = parseTime(ca, "templates"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if tpl.UpdatedAt, err = parseTime(ua, "templates"); err != nil {
			_ = rows.Close()
			return nil, err
		}
		state.Templates[tpl.Name] = &tpl
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("templates iteration: %w", err)
	}

	rows, err = s.db.Query("SELECT id, type, title, description, status, task_id, agent_id, metadata, created_at FROM activity_log ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("activity_log: %w", err)
	}
	for rows.Next() {
		var e domain.ActivityLogEntry
		var metadata, ca string
		if err := rows.Scan(&e.ID, &e.Type, &e.Title, &e.Description, &e.Status, &e.TaskID, &e.AgentID, &metadata, &ca); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if metadata != "" && metadata != "{}" {
			e.Metadata = make(map[string]string)
			if err := parseJSON([]byte(metadata), &e.Metadata, "activity_log metadata"); err != nil {
				_ = rows.Close()
				return nil, err
			}
		}
		t, err := parseTime(ca, "activity_log")
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		e.CreatedAt = t
		state.ActivityLog = append(state.ActivityLog, e)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity_log iteration: %w", err)
	}

	// learning_patterns (table may not exist in older DBs; only skip "no such table")
	rows, err = s.db.Query("SELECT id, task_id, category, template_name, skills_used, duration_sec, success, confidence, created_at FROM learning_patterns ORDER BY created_at")
	if err != nil && !isNoSuchTableErr(err) {
		return nil, fmt.Errorf("learning_patterns: %w", err)
	}
	if err == nil {
		for rows.Next() {
			var p domain.LearningPattern
			var skills, ca string
			var durationSec int64
			var success int
			if err := rows.Scan(&p.ID, &p.TaskID, &p.Category, &p.TemplateName, &skills, &durationSec, &success, &p.Confidence, &ca); err != nil {
				_ = rows.Close()
				return nil, err
			}
			p.Duration = time.Duration(durationSec) * time.Second
			p.Success = success != 0
			if err := parseJSON([]byte(skills), &p.SkillsUsed, "learning_patterns skills_used"); err != nil {
				_ = rows.Close()
				return nil, err
			}
			t, err := parseTime(ca, "learning_patterns")
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			p.CreatedAt = t
			state.Patterns = append(state.Patterns, p)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("learning_patterns iteration: %w", err)
		}
	}

	// --- Self-healing ID reconciliation ---
	// The NextXxxID counters in the meta table can drift out of sync with the
	// actual data after a crash or partial save. Rather than trusting the
	// stored counter, derive the correct value from the data itself so every
	// Load() guarantees correct counters.
	for _, t := range state.Tasks {
		if t.ID >= state.NextTaskID {
			state.NextTaskID = t.ID + 1
		}
	}
	for _, e := range state.ActivityLog {
		if e.ID >= state.NextLogID {
			state.NextLogID = e.ID + 1
		}
	}

	return state, nil
}

// Save implements app.StateRepository. The whole state is replaced in one
// transaction: simple, atomic, and immune to per-row drift at the scale the
// engine operates at.
func (s *Store) Save(state *domain.EngineState) error {
	if state == nil {
		return fmt.Errorf("state is nil")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range []string{"tasks", "agents", "templates", "activity_log", "learning_patterns", "meta"} {
		if _, err := tx.Exec("DELETE FROM " + t); err != nil {
			return err
		}
	}

	meta := map[string]string{
		"next_task_id":   fmt.Sprintf("%d", state.NextTaskID),
		"next_log_id":    fmt.Sprintf("%d", state.NextLogID),
		"templates_seed": state.TemplatesSeed,
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return err
		}
	}

	for _, t := range state.Tasks {
		skills, _ := json.Marshal(t.RequiredSkills)
		checklist, _ := json.Marshal(t.Checklist)
		completed, _ := json.Marshal(t.CompletedItems)
		artifacts, _ := json.Marshal(t.Artifacts)
		metadata, _ := json.Marshal(t.Metadata)
		if t.Metadata == nil {
			metadata = []byte("{}")
		}
		if _, err := tx.Exec("INSERT INTO tasks (id, title, description, category, stage, status, priority, progress_percent, assignee_agent_id, blocked_reason, stage_started_at, auto_advance_threshold_hrs, required_skills, checklist, completed_items, artifacts, resolution, template_name, auto_assigned, knowledge_extracted, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.ID, t.Title, t.Description, t.Category, string(t.Stage), string(t.Status), t.Priority, t.ProgressPercent, t.AssigneeAgentID, t.BlockedReason, t.StageStartedAt.Format(time.RFC3339Nano), t.AutoAdvanceThresholdHrs, string(skills), string(checklist), string(completed), string(artifacts), t.Resolution, t.TemplateName, boolFlag(t.AutoAssigned), boolFlag(t.KnowledgeExtracted), string(metadata), t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	for _, a := range state.Agents {
		if a == nil {
			continue
		}
		skills, _ := json.Marshal(a.Skills)
		if _, err := tx.Exec("INSERT INTO agents (id, name, status, skills, current_workload, max_concurrent_tasks, registered_at, last_seen) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			a.ID, a.Name, string(a.Status), string(skills), a.CurrentWorkload, a.MaxConcurrentTasks, a.RegisteredAt.Format(time.RFC3339Nano), a.LastSeen.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	for _, tpl := range state.Templates {
		if tpl == nil {
			continue
		}
		skills, _ := json.Marshal(tpl.RequiredSkills)
		checklist, _ := json.Marshal(tpl.Checklist)
		if _, err := tx.Exec("INSERT INTO templates (name, category, description, default_stage, default_priority, required_skills, checklist, auto_advance_threshold_hrs, active, times_used, success_count, failure_count, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			tpl.Name, tpl.Category, tpl.Description, string(tpl.DefaultStage), tpl.DefaultPriority, string(skills), string(checklist), tpl.AutoAdvanceThresholdHrs, boolFlag(tpl.Active), tpl.TimesUsed, tpl.SuccessCount, tpl.FailureCount, tpl.CreatedAt.Format(time.RFC3339Nano), tpl.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	for _, e := range state.ActivityLog {
		metadata, _ := json.Marshal(e.Metadata)
		if e.Metadata == nil {
			metadata = []byte("{}")
		}
		if _, err := tx.Exec("INSERT INTO activity_log (id, type, title, description, status, task_id, agent_id, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			e.ID, e.Type, e.Title, e.Description, e.Status, e.TaskID, e.AgentID, string(metadata), e.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	for _, p := range state.Patterns {
		skills, _ := json.Marshal(p.SkillsUsed)
		if _, err := tx.Exec("INSERT INTO learning_patterns (id, task_id, category, template_name, skills_used, duration_sec, success, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			p.ID, p.TaskID, p.Category, p.TemplateName, string(skills), int64(p.Duration/time.Second), boolFlag(p.Success), p.Confidence, p.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

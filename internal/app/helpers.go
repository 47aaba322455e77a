package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
	"github.com/jaakkos/taskmill/internal/policy"
)

// Truncate truncates s to max runes (Unicode-safe).
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// EnsureStateMaps initializes nil maps/slices on state for backward compatibility.
func EnsureStateMaps(state *domain.EngineState) {
	if state == nil {
		return
	}
	if state.Agents == nil {
		state.Agents = make(map[string]*domain.Agent)
	}
	if state.Templates == nil {
		state.Templates = make(map[string]*domain.Template)
	}
	if state.Tasks == nil {
		state.Tasks = []domain.Task{}
	}
	if state.ActivityLog == nil {
		state.ActivityLog = []domain.ActivityLogEntry{}
	}
	if state.Patterns == nil {
		state.Patterns = []domain.LearningPattern{}
	}
	if state.NextTaskID == 0 {
		state.NextTaskID = 1
	}
	if state.NextLogID == 0 {
		state.NextLogID = 1
	}
}

// SeedTemplates installs configured template blueprints into state.
// Idempotent: a checksum of the seed set is stored in state, and existing
// templates with the same name are never overwritten.
func SeedTemplates(state *domain.EngineState, seeds []policy.TemplateSeed) {
	if state == nil || len(seeds) == 0 {
		return
	}
	sum := seedChecksum(seeds)
	if state.TemplatesSeed == sum {
		return
	}
	now := time.Now()
	for _, seed := range seeds {
		if seed.Name == "" {
			continue
		}
		if _, exists := state.Templates[seed.Name]; exists {
			continue
		}
		stage := domain.StageDiscuss
		if seed.DefaultStage != "" {
			if parsed, err := domain.ParseStage(seed.DefaultStage); err == nil {
				stage = parsed
			}
		}
		priority := seed.DefaultPriority
		if priority == 0 {
			priority = 5
		}
		state.Templates[seed.Name] = &domain.Template{
			Name:                    seed.Name,
			Category:                seed.Category,
			Description:             seed.Description,
			DefaultStage:            stage,
			DefaultPriority:         priority,
			RequiredSkills:          append([]string(nil), seed.RequiredSkills...),
			Checklist:               append([]string(nil), seed.Checklist...),
			AutoAdvanceThresholdHrs: seed.ThresholdHours,
			Active:                  true,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
	}
	state.TemplatesSeed = sum
}

func seedChecksum(seeds []policy.TemplateSeed) string {
	var b strings.Builder
	for _, s := range seeds {
		fmt.Fprintf(&b, "%s|%s|%s|%d|%v|%v|%v;", s.Name, s.Category, s.DefaultStage, s.DefaultPriority, s.RequiredSkills, s.Checklist, s.ThresholdHours)
	}
	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:8])
}

// AgentWorkload derives an agent's workload from task state: the count of
// tasks assigned to it in CLAIMED or IN_PROGRESS. Deriving instead of
// trusting a stored counter eliminates drift from lost races.
func AgentWorkload(state *domain.EngineState, agentID string) int {
	n := 0
	for i := range state.Tasks {
		t := &state.Tasks[i]
		if t.AssigneeAgentID == agentID && (t.Status == domain.TaskClaimed || t.Status == domain.TaskInProgress) {
			n++
		}
	}
	return n
}

// RefreshAgentWorkloads recomputes every agent's stored workload column from
// task state before save, so external readers of the agent table see current
// numbers without having to derive them.
func RefreshAgentWorkloads(state *domain.EngineState) {
	for id, a := range state.Agents {
		if a == nil {
			continue
		}
		a.CurrentWorkload = AgentWorkload(state, id)
	}
}

// SkillMatches reports whether a required skill fuzzy-matches an agent skill:
// case-insensitive substring in either direction, so "python" matches
// "python3" and "golang" matches "go... lang" conventions agents use.
func SkillMatches(required, agentSkill string) bool {
	r := strings.ToLower(strings.TrimSpace(required))
	a := strings.ToLower(strings.TrimSpace(agentSkill))
	if r == "" || a == "" {
		return false
	}
	return strings.Contains(a, r) || strings.Contains(r, a)
}

// clamp01 clamps v into [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

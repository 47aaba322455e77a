package app

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jaakkos/taskmill/internal/domain"
)

// PatternIndexer receives extracted patterns for full-text indexing. The
// engine state remains the source of truth; the index is a derived view and
// indexing failures are logged, not fatal.
type PatternIndexer interface {
	IndexPattern(p domain.LearningPattern) error
}

// SetIndexer attaches a pattern indexer. Safe to leave unset.
func (s *EngineService) SetIndexer(idx PatternIndexer) {
	s.indexer = idx
}

const (
	confidenceSuccess = 0.9
	confidenceOther   = 0.5
)

// ExtractKnowledge turns a terminal task into a learning pattern, exactly
// once per task. Successful completions record high confidence; failures and
// cancellations still produce a pattern at lower confidence so the history
// is not survivor-biased. Template success counters update here too.
func (s *EngineService) ExtractKnowledge(state *domain.EngineState, taskID int, now time.Time) (*domain.LearningPattern, error) {
	task := state.FindTask(taskID)
	if task == nil {
		return nil, fmt.Errorf("task #%d not found", taskID)
	}
	if !task.Status.IsTerminal() {
		return nil, fmt.Errorf("task #%d is %s; knowledge is extracted from finished tasks only", taskID, task.Status)
	}
	if task.KnowledgeExtracted {
		return nil, fmt.Errorf("task #%d already has its knowledge extracted", taskID)
	}

	success := task.Status == domain.TaskCompleted
	confidence := confidenceOther
	if success {
		confidence = confidenceSuccess
	}

	duration := task.UpdatedAt.Sub(task.CreatedAt)
	if duration < 0 {
		duration = 0
	}

	pattern := domain.LearningPattern{
		ID:           uuid.NewString(),
		TaskID:       task.ID,
		Category:     task.Category,
		TemplateName: task.TemplateName,
		SkillsUsed:   append([]string(nil), task.RequiredSkills...),
		Duration:     duration,
		Success:      success,
		Confidence:   confidence,
		CreatedAt:    now,
	}
	state.Patterns = append(state.Patterns, pattern)
	task.KnowledgeExtracted = true
	task.UpdatedAt = now

	if task.TemplateName != "" {
		if tpl, ok := state.Templates[task.TemplateName]; ok {
			if success {
				tpl.SuccessCount++
			} else {
				tpl.FailureCount++
			}
			tpl.UpdatedAt = now
		}
	}

	if s.indexer != nil {
		if err := s.indexer.IndexPattern(pattern); err != nil {
			s.logger.Printf("knowledge: index pattern %s: %v", pattern.ID, err)
		}
	}

	AppendAudit(state, domain.ActivityLogEntry{
		Type:        "knowledge_extracted",
		Title:       fmt.Sprintf("Pattern learned from task #%d", task.ID),
		Description: Truncate(task.Title, 120),
		Status:      string(task.Status),
		TaskID:      task.ID,
		AgentID:     task.AssigneeAgentID,
		Metadata: map[string]string{
			"pattern_id": pattern.ID,
			"confidence": fmt.Sprintf("%.1f", confidence),
		},
		CreatedAt: now,
	})
	return &pattern, nil
}

// ExtractAll sweeps terminal tasks that still hold unextracted knowledge,
// up to limit (0 means the configured batch size). When sinceHours > 0 only
// tasks that finished within that trailing window are considered.
func (s *EngineService) ExtractAll(state *domain.EngineState, limit int, sinceHours float64, now time.Time) []domain.LearningPattern {
	if limit <= 0 {
		limit = s.policy.Engine().BatchSize
	}
	var cutoff time.Time
	if sinceHours > 0 {
		cutoff = now.Add(-time.Duration(sinceHours * float64(time.Hour)))
	}
	var extracted []domain.LearningPattern
	for i := range state.Tasks {
		if len(extracted) >= limit {
			break
		}
		task := &state.Tasks[i]
		if !task.Status.IsTerminal() || task.KnowledgeExtracted {
			continue
		}
		if !cutoff.IsZero() && task.UpdatedAt.Before(cutoff) {
			continue
		}
		p, err := s.ExtractKnowledge(state, task.ID, now)
		if err != nil {
			continue
		}
		extracted = append(extracted, *p)
	}
	return extracted
}

package app

import (
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// AppendAudit appends one activity log entry and returns its ID. The audit
// log is append-only; entries are never mutated after creation.
func AppendAudit(state *domain.EngineState, entry domain.ActivityLogEntry) int {
	entry.ID = state.NextLogID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	state.ActivityLog = append(state.ActivityLog, entry)
	state.NextLogID++
	return entry.ID
}

// PruneAuditLog removes old activity log entries by TTL and max count.
// Returns the number pruned.
func PruneAuditLog(state *domain.EngineState, maxCount, maxAgeDays int) int {
	if state == nil || len(state.ActivityLog) == 0 {
		return 0
	}
	pruned := 0
	now := time.Now()
	if maxAgeDays > 0 {
		cutoff := now.AddDate(0, 0, -maxAgeDays)
		filtered := make([]domain.ActivityLogEntry, 0, len(state.ActivityLog))
		for _, e := range state.ActivityLog {
			if e.CreatedAt.After(cutoff) {
				filtered = append(filtered, e)
			} else {
				pruned++
			}
		}
		state.ActivityLog = filtered
	}
	if maxCount > 0 && len(state.ActivityLog) > maxCount {
		excess := len(state.ActivityLog) - maxCount
		state.ActivityLog = state.ActivityLog[excess:]
		pruned += excess
	}
	return pruned
}

// RecentActivityCount counts audit entries linked to an agent within the
// trailing window. The scorer uses this for the activity sub-score.
func RecentActivityCount(state *domain.EngineState, agentID string, window time.Duration, now time.Time) int {
	cutoff := now.Add(-window)
	n := 0
	for _, e := range state.ActivityLog {
		if e.AgentID == agentID && e.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n
}

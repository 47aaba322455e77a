package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

// RegisterAgent creates or refreshes an agent record. Registering an
// existing ID updates skills, capacity and LastSeen, and revives an OFFLINE
// or ERROR agent back to IDLE; an ARCHIVED agent stays archived.
func (s *EngineService) RegisterAgent(state *domain.EngineState, id, name string, skills []string, maxConcurrent int, now time.Time) (*domain.Agent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("agent id must not be empty")
	}
	if name == "" {
		name = id
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	agent, exists := state.Agents[id]
	if !exists {
		agent = &domain.Agent{
			ID:           id,
			Status:       domain.AgentIdle,
			RegisteredAt: now,
		}
		state.Agents[id] = agent
	}
	agent.Name = name
	agent.Skills = append([]string(nil), skills...)
	agent.MaxConcurrentTasks = maxConcurrent
	agent.LastSeen = now
	if agent.Status == domain.AgentOffline || agent.Status == domain.AgentError {
		agent.Status = domain.AgentIdle
	}

	logType := "agent_registered"
	if exists {
		logType = "agent_refreshed"
	}
	AppendAudit(state, domain.ActivityLogEntry{
		Type:      logType,
		Title:     fmt.Sprintf("Agent %s (%s)", name, id),
		Status:    string(agent.Status),
		AgentID:   id,
		Metadata:  map[string]string{"skills": strings.Join(skills, ",")},
		CreatedAt: now,
	})
	return agent, nil
}

// ListAgents returns agents sorted by ID, with derived workload filled in.
func ListAgents(state *domain.EngineState) []domain.Agent {
	out := make([]domain.Agent, 0, len(state.Agents))
	for _, a := range state.Agents {
		if a == nil {
			continue
		}
		cp := *a
		cp.CurrentWorkload = AgentWorkload(state, a.ID)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

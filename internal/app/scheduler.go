package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

const (
	// defaultSchedulerInterval is how often the scheduler runs its sweeps
	// when the config does not say otherwise.
	defaultSchedulerInterval = 300 * time.Second

	// defaultAgentStaleThreshold is how long since LastSeen before an agent
	// is considered gone and its claimed work returns to the pool.
	defaultAgentStaleThreshold = 30 * time.Minute
)

// Scheduler drives the engine's background automation. Each cycle it:
// - Runs the assignment, advancement, and blocker-resolution sweeps
// - Marks agents with stale LastSeen offline and reclaims their tasks
// - Escalates tasks that have overstayed their stage budget
// - Prunes the activity log to the configured retention
type Scheduler struct {
	svc              *EngineService
	logger           *log.Logger
	interval         time.Duration
	agentStaleThresh time.Duration
	stopCh           chan struct{}
	doneCh           chan struct{}
	// escalated tracks tasks already escalated this stall episode, so a task
	// is bumped once per episode rather than once per cycle.
	escalated map[int]string
}

// SchedulerOption configures the scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerInterval sets the sweep interval.
func WithSchedulerInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

// WithAgentStaleThreshold sets how long an agent may be silent before its
// work is reclaimed.
func WithAgentStaleThreshold(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.agentStaleThresh = d }
}

// NewScheduler creates a Scheduler. The interval defaults to the engine
// config when set, the package default otherwise.
func NewScheduler(svc *EngineService, logger *log.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		svc:              svc,
		logger:           logger,
		interval:         defaultSchedulerInterval,
		agentStaleThresh: defaultAgentStaleThreshold,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
		escalated:        make(map[int]string),
	}
	if secs := svc.Policy().Engine().SchedulerIntervalSeconds; secs > 0 {
		s.interval = time.Duration(secs) * time.Second
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins the scheduler loop. Returns when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.doneCh)
	s.logger.Printf("Scheduler: started (interval=%s, agent_stale=%s)", s.interval, s.agentStaleThresh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Println("Scheduler: stopped (context cancelled)")
			return
		case <-s.stopCh:
			s.logger.Println("Scheduler: stopped")
			return
		case <-ticker.C:
			s.cycle()
		}
	}
}

// Stop signals the scheduler to stop and waits for the loop to exit.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// CycleOnce runs one scheduler cycle (for testing or manual trigger).
func (s *Scheduler) CycleOnce() {
	s.cycle()
}

func (s *Scheduler) cycle() {
	var (
		assigned, advanced, resolved int
		reclaimed, offlined          int
		escalations, pruned          int
	)

	err := s.svc.Run(func(state *domain.EngineState) error {
		now := time.Now()

		// Reclaim work from agents that went quiet before assigning anything new,
		// so their tasks land back in this cycle's assignment sweep.
		reclaimed, offlined = s.reclaimStaleAgents(state, now)

		for _, r := range s.svc.AssignBatch(state, 0, -1) {
			if r.Assigned {
				assigned++
			}
		}
		for _, r := range s.svc.AdvanceEligible(state, 0, now) {
			if r.Advanced {
				advanced++
			}
		}
		for _, r := range s.svc.ResolveBlockers(state, now) {
			if r.Resolved {
				resolved++
			}
		}

		escalations = s.escalateStalled(state, now)

		pruned = PruneAuditLog(state, s.svc.Policy().AuditRetentionMax(), s.svc.Policy().AuditRetentionDays())
		return nil
	})
	if err != nil {
		s.logger.Printf("Scheduler: cycle error: %v", err)
		return
	}

	if assigned+advanced+resolved+reclaimed+offlined+escalations+pruned > 0 {
		s.logger.Printf("Scheduler: cycle complete — assigned %d, advanced %d, resolved %d, reclaimed %d task(s) from %d stale agent(s), escalated %d, pruned %d log entries",
			assigned, advanced, resolved, reclaimed, offlined, escalations, pruned)
	}
}

// reclaimStaleAgents marks agents with stale LastSeen OFFLINE and resets
// their CLAIMED and IN_PROGRESS tasks to PENDING so the assigner can rehome
// them. ARCHIVED agents are left alone.
func (s *Scheduler) reclaimStaleAgents(state *domain.EngineState, now time.Time) (tasks, agents int) {
	stale := make(map[string]bool)
	for id, agent := range state.Agents {
		if agent == nil || agent.Status == domain.AgentArchived || agent.Status == domain.AgentOffline {
			continue
		}
		if agent.LastSeen.IsZero() || now.Sub(agent.LastSeen) <= s.agentStaleThresh {
			continue
		}
		s.logger.Printf("Scheduler: marking agent %s offline (last seen %s ago)",
			id, now.Sub(agent.LastSeen).Round(time.Second))
		agent.Status = domain.AgentOffline
		stale[id] = true
		agents++
	}
	if len(stale) == 0 {
		return 0, 0
	}

	for i := range state.Tasks {
		t := &state.Tasks[i]
		if !stale[t.AssigneeAgentID] {
			continue
		}
		if t.Status != domain.TaskClaimed && t.Status != domain.TaskInProgress {
			continue
		}
		s.logger.Printf("Scheduler: reclaiming task #%d from offline agent %s", t.ID, t.AssigneeAgentID)
		AppendAudit(state, domain.ActivityLogEntry{
			Type:        "task_reclaimed",
			Title:       fmt.Sprintf("Task #%d returned to pool", t.ID),
			Description: fmt.Sprintf("agent %s went offline", t.AssigneeAgentID),
			Status:      string(domain.TaskPending),
			TaskID:      t.ID,
			AgentID:     t.AssigneeAgentID,
			CreatedAt:   now,
		})
		t.AssigneeAgentID = ""
		t.Status = domain.TaskPending
		t.AutoAssigned = false
		t.UpdatedAt = now
		tasks++
	}
	return tasks, agents
}

// escalateStalled bumps priority once per stall episode for every task past
// its stage budget times the stall multiplier. The episode key includes the
// stage so a task that advances and stalls again is eligible once more.
func (s *Scheduler) escalateStalled(state *domain.EngineState, now time.Time) int {
	count := 0
	current := make(map[int]bool)
	for _, st := range s.svc.FindStalled(state, now) {
		current[st.TaskID] = true
		episode := st.Stage
		if s.escalated[st.TaskID] == episode {
			continue
		}
		reason := fmt.Sprintf("%.1fh in %s exceeds the %.1fh budget", st.HoursInStage, st.Stage, st.BudgetHours)
		if _, err := s.svc.EscalateStalled(state, st.TaskID, reason, now); err != nil {
			continue
		}
		s.escalated[st.TaskID] = episode
		count++
	}
	// Forget tasks that are no longer stalled so a future stall re-arms them.
	for id := range s.escalated {
		if !current[id] {
			delete(s.escalated, id)
		}
	}
	return count
}

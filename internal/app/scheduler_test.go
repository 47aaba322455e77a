package app

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jaakkos/taskmill/internal/domain"
)

func testScheduler(svc *EngineService, opts ...SchedulerOption) *Scheduler {
	logger := log.New(os.Stderr, "[test] ", 0)
	return NewScheduler(svc, logger, opts...)
}

func TestSchedulerReclaimsStaleAgentWork(t *testing.T) {
	state := domain.NewEngineState()
	gone := idleAgent("gone", "go")
	gone.Status = domain.AgentBusy
	gone.LastSeen = time.Now().Add(-2 * time.Hour)
	state.Agents["gone"] = gone

	task := pendingTask(1, "orphaned", "go")
	task.Status = domain.TaskInProgress
	task.AssigneeAgentID = "gone"
	state.Tasks = append(state.Tasks, task)
	state.NextTaskID = 2

	svc, repo := testService(state)
	sched := testScheduler(svc, WithAgentStaleThreshold(30*time.Minute))
	sched.CycleOnce()

	got := repo.state
	if got.Agents["gone"].Status != domain.AgentOffline {
		t.Errorf("agent status = %s, want OFFLINE", got.Agents["gone"].Status)
	}
	// The reclaimed task goes back to the pool; with no eligible agent left
	// it stays PENDING and unassigned.
	reclaimed := got.FindTask(1)
	if reclaimed.Status != domain.TaskPending || reclaimed.AssigneeAgentID != "" {
		t.Errorf("task = %s/%q, want PENDING/unassigned", reclaimed.Status, reclaimed.AssigneeAgentID)
	}
}

func TestSchedulerReclaimedTaskReassignedSameCycle(t *testing.T) {
	state := domain.NewEngineState()
	gone := idleAgent("gone", "go")
	gone.Status = domain.AgentBusy
	gone.LastSeen = time.Now().Add(-2 * time.Hour)
	state.Agents["gone"] = gone
	state.Agents["fresh"] = idleAgent("fresh", "go")

	task := pendingTask(1, "orphaned", "go")
	task.Status = domain.TaskInProgress
	task.AssigneeAgentID = "gone"
	state.Tasks = append(state.Tasks, task)
	state.NextTaskID = 2

	svc, repo := testService(state)
	sched := testScheduler(svc, WithAgentStaleThreshold(30*time.Minute))
	sched.CycleOnce()

	got := repo.state.FindTask(1)
	if got.AssigneeAgentID != "fresh" {
		t.Errorf("assignee = %q, want fresh (reclaim feeds the same cycle's assignment)", got.AssigneeAgentID)
	}
}

func TestSchedulerEscalatesOncePerStallEpisode(t *testing.T) {
	state := domain.NewEngineState()
	task := pendingTask(1, "stalled")
	task.Status = domain.TaskInProgress
	task.Priority = 5
	task.StageStartedAt = time.Now().Add(-10 * time.Hour)
	state.Tasks = append(state.Tasks, task)
	state.NextTaskID = 2

	svc, repo := testService(state)
	sched := testScheduler(svc)
	sched.CycleOnce()
	sched.CycleOnce()

	got := repo.state.FindTask(1)
	if got.Priority != 6 {
		t.Errorf("priority = %d, want a single bump to 6", got.Priority)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	svc, _ := testService(domain.NewEngineState())
	sched := testScheduler(svc, WithSchedulerInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	sched.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

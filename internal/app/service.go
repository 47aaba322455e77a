package app

import (
	"fmt"
	"log"
	"sync"

	"github.com/jaakkos/taskmill/internal/domain"
)

// Triggerable is something that can be triggered after a state write (e.g. Notifier).
type Triggerable interface {
	Trigger()
}

// EngineService runs engine use cases over persisted state.
//
// Every mutation goes through Run: load, mutate, save under one mutex. This
// serializes writers in-process, which is the optimistic-concurrency hardening
// the engine's eventual-consistency model recommends — a racer in another
// process still re-reads current state before writing.
type EngineService struct {
	repo     StateRepository
	policy   Policy
	logger   *log.Logger
	mu       sync.Mutex
	notifier Triggerable    // optional; set via SetNotifier after construction
	indexer  PatternIndexer  // optional; set via SetIndexer after construction
	searcher PatternSearcher // optional; set via SetSearcher after construction
}

// NewEngineService returns a new EngineService.
func NewEngineService(repo StateRepository, policy Policy, logger *log.Logger) *EngineService {
	return &EngineService{repo: repo, policy: policy, logger: logger}
}

// SetNotifier attaches a Triggerable (e.g. *Notifier) that is poked after every state write.
func (s *EngineService) SetNotifier(n Triggerable) {
	s.notifier = n
}

// Run loads state, runs fn, then saves. Caller must not retain state after fn returns.
// On successful save, touches the notify signal file so watchers can push updates.
// If the database cannot be loaded, the error is returned immediately — we never fall
// back to an empty state for writes, because Save() would overwrite the database with nothing.
func (s *EngineService) Run(fn func(*domain.EngineState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.repo.Load()
	if err != nil {
		return fmt.Errorf("state load: %w", err)
	}
	EnsureStateMaps(state)
	SeedTemplates(state, s.policy.TemplateSeeds())
	if err := fn(state); err != nil {
		return err
	}
	RefreshAgentWorkloads(state)
	if err := s.repo.Save(state); err != nil {
		return err
	}
	_ = TouchNotifySignal(s.policy.SignalFilePath())
	if s.notifier != nil {
		s.notifier.Trigger()
	}
	return nil
}

// Query loads state and runs fn without saving. Use for read-only operations
// (metrics, listings). If the database cannot be loaded, falls back to an
// empty state since no save will occur.
func (s *EngineService) Query(fn func(*domain.EngineState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.repo.Load()
	if err != nil {
		s.logger.Printf("Warning: state load failed in Query: %v (using empty state)", err)
		state = domain.NewEngineState()
	}
	EnsureStateMaps(state)
	SeedTemplates(state, s.policy.TemplateSeeds())
	return fn(state)
}

// Policy returns the policy for handlers that need engine tuning.
func (s *EngineService) Policy() Policy { return s.policy }

// Logger returns the service logger.
func (s *EngineService) Logger() *log.Logger { return s.logger }

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jaakkos/taskmill/internal/domain"
)

const (
	defaultDebounceMs   = 200
	defaultPollInterval = 10 * time.Second
)

// EngineUpdateParams is the payload for notifications/engine_update.
type EngineUpdateParams struct {
	PendingTasks int    `json:"pending_tasks"`
	BlockedTasks int    `json:"blocked_tasks"`
	Summary      string `json:"summary"`
}

// Notifier watches the signal file and pushes engine_update notifications
// when the system has pending or blocked work. It prefers fsnotify and falls
// back to polling when the watcher cannot be set up.
type Notifier struct {
	signalPath   string
	repo         StateRepository
	pushFunc     func(method string, params any) error
	logger       *log.Logger
	debounceMs   int
	pollInterval time.Duration

	mu            sync.Mutex
	lastPushedRev string
	debounceTimer *time.Timer
	watcher       *fsnotify.Watcher
	useFsnotify   bool
	stopCh        chan struct{}
	doneCh        chan struct{}
	pushMu        sync.Mutex // serializes checkAndPush to prevent duplicate pushes
}

// NotifierOption configures the notifier.
type NotifierOption func(*Notifier)

// WithPollInterval sets the fallback poll interval.
func WithPollInterval(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		n.pollInterval = d
	}
}

// NewNotifier creates a notifier. pushFunc is called with method
// "notifications/engine_update" and EngineUpdateParams when the engine has
// actionable work; a nil-safe no-op pushFunc is the caller's responsibility.
func NewNotifier(signalPath string, repo StateRepository, pushFunc func(method string, params any) error, logger *log.Logger, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		signalPath:   signalPath,
		repo:         repo,
		pushFunc:     pushFunc,
		logger:       logger,
		debounceMs:   defaultDebounceMs,
		pollInterval: defaultPollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Start starts the file watcher and fallback poll. Returns when ctx is cancelled.
// If fsnotify fails to initialize, falls back to poll-only mode.
func (n *Notifier) Start(ctx context.Context) {
	defer close(n.doneCh)

	watchDir := filepath.Dir(n.signalPath)
	signalName := filepath.Base(n.signalPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		n.logger.Printf("Notifier: fsnotify init failed (%v), using poll-only", err)
		n.useFsnotify = false
	} else {
		n.watcher = watcher
		n.useFsnotify = true
		if err := watcher.Add(watchDir); err != nil {
			n.logger.Printf("Notifier: fsnotify add %s failed (%v), using poll-only", watchDir, err)
			_ = watcher.Close()
			n.watcher = nil
			n.useFsnotify = false
		}
	}

	if n.useFsnotify {
		defer n.watcher.Close()
		go n.watchLoop(ctx, signalName)
	}

	n.pollLoop(ctx)
}

// Stop signals the notifier to stop. Call after cancelling the context passed to Start.
func (n *Notifier) Stop() {
	close(n.stopCh)
	<-n.doneCh
}

// CheckOnce runs one check-and-push cycle (for testing or manual trigger).
func (n *Notifier) CheckOnce() {
	n.checkAndPush()
}

// Trigger forces a check-and-push cycle, bypassing the revision dedup.
// Call after a state write (e.g. from EngineService.Run) to ensure the push
// fires even if fsnotify misses the event (same-process write).
func (n *Notifier) Trigger() {
	n.mu.Lock()
	n.lastPushedRev = "" // reset so checkAndPush won't skip
	n.mu.Unlock()
	n.triggerDebounced()
}

func (n *Notifier) watchLoop(ctx context.Context, signalName string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != signalName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			n.triggerDebounced()
		case _, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (n *Notifier) triggerDebounced() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.debounceTimer != nil {
		n.debounceTimer.Stop()
	}
	n.debounceTimer = time.AfterFunc(time.Duration(n.debounceMs)*time.Millisecond, func() {
		n.checkAndPush()
	})
}

func (n *Notifier) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.checkAndPush()
		}
	}
}

func (n *Notifier) checkAndPush() {
	// Serialize the entire check-and-push cycle. Without this, the debounce
	// timer goroutine and the poll loop can both pass the revision dedup check
	// concurrently, causing duplicate push notifications.
	n.pushMu.Lock()
	defer n.pushMu.Unlock()

	rev := n.readSignalRevision()
	if rev == "" {
		return
	}
	n.mu.Lock()
	if rev == n.lastPushedRev {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	state, err := n.repo.Load()
	if err != nil {
		return
	}

	pending := 0
	blocked := 0
	for _, t := range state.Tasks {
		switch t.Status {
		case domain.TaskPending:
			pending++
		case domain.TaskBlocked:
			blocked++
		}
	}
	if pending == 0 && blocked == 0 {
		n.mu.Lock()
		n.lastPushedRev = rev
		n.mu.Unlock()
		return
	}

	params := EngineUpdateParams{
		PendingTasks: pending,
		BlockedTasks: blocked,
		Summary:      n.buildSummary(pending, blocked),
	}
	if err := n.pushFunc("notifications/engine_update", params); err != nil {
		n.logger.Printf("Notifier: push failed: %v", err)
		return
	}
	n.mu.Lock()
	n.lastPushedRev = rev
	n.mu.Unlock()
}

func (n *Notifier) readSignalRevision() string {
	data, err := os.ReadFile(n.signalPath)
	if err != nil {
		return ""
	}
	return string(data)
}

func (n *Notifier) buildSummary(pending, blocked int) string {
	if pending > 0 && blocked > 0 {
		return fmt.Sprintf("%d pending task(s), %d blocked task(s)", pending, blocked)
	}
	if pending > 0 {
		return fmt.Sprintf("%d pending task(s)", pending)
	}
	return fmt.Sprintf("%d blocked task(s)", blocked)
}

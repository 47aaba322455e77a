// Taskmill MCP server.
// Stdio for a directly attached agent, HTTP for remote agents and the dashboard.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/taskmill/internal/app"
	"github.com/jaakkos/taskmill/internal/dashboard"
	"github.com/jaakkos/taskmill/internal/domain"
	"github.com/jaakkos/taskmill/internal/knowledge"
	"github.com/jaakkos/taskmill/internal/policy"
	"github.com/jaakkos/taskmill/internal/repository"
	"github.com/jaakkos/taskmill/internal/tools/engine"
)

// Version is set by -ldflags at build time.
var Version = "dev"

func main() {
	// Handle CLI subcommands before starting the MCP server.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			runStatusCommand()
			return
		case "--version", "-v", "version":
			fmt.Println("taskmill " + Version)
			return
		}
	}

	// Load config
	tmpLogger := log.New(os.Stderr, "[taskmill] ", log.LstdFlags|log.Lshortfile)
	cfg := loadConfig(tmpLogger)
	pol := policy.New(cfg)

	// Set up logging
	logger := setupLogger(pol.LogFile())
	logger.Println("Starting taskmill server...")
	logger.Printf("Log file: %s", pol.LogFile())
	logger.Printf("State file: %s", pol.StateFile())

	// State repository
	repo, err := repository.NewStateRepository(pol.StateFile())
	if err != nil {
		logger.Fatalf("State repository: %v", err)
	}
	svc := app.NewEngineService(repo, pol, logger)

	// Pattern index (FTS5, separate database). The engine keeps working
	// without it; search_patterns then reports the index as unavailable.
	patternStore, err := knowledge.NewStore(pol.KnowledgeDBPath())
	if err != nil {
		logger.Printf("Warning: pattern index init failed: %v (search disabled)", err)
	} else {
		svc.SetIndexer(patternStore)
		svc.SetSearcher(patternStore)
		// Bring the index up to date with patterns extracted before any
		// earlier crash or with a fresh index file.
		if err := svc.Query(func(state *domain.EngineState) error {
			n, err := patternStore.Reindex(state.Patterns)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Printf("Pattern index: %d pattern(s) backfilled", n)
			}
			return nil
		}); err != nil {
			logger.Printf("Warning: pattern reindex: %v", err)
		}
	}

	// Session store for push notifications (holds actual ClientSession objects)
	sessions := newSessionStore()

	// Build the MCPServer
	hooks := &server.Hooks{}
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Calling tool: %s", message.Params.Name)
		}
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		sessions.remove(session.SessionID())
		logger.Printf("Client session unregistered: %s", session.SessionID())
	})

	mcpServer := server.NewMCPServer(
		"taskmill",
		Version,
		server.WithHooks(hooks),
		server.WithResourceCapabilities(false, true), // subscribe=false, listChanged=true
	)

	engine.Register(mcpServer, svc, logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ignore SIGHUP so the server keeps running when daemonized (nohup, launchd, etc.)
	signal.Ignore(syscall.SIGHUP)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Push function for the notifier: fan out to all initialized sessions.
	pushFunc := func(method string, params any) error {
		for _, session := range sessions.all() {
			if !session.Initialized() {
				continue
			}
			notification := mcp.JSONRPCNotification{
				JSONRPC: "2.0",
				Notification: mcp.Notification{
					Method: method,
					Params: mcp.NotificationParams{AdditionalFields: map[string]any{"params": params}},
				},
			}
			ch := session.NotificationChannel()
			select {
			case ch <- notification:
			default:
				logger.Printf("Notifier: push to %s dropped (channel full)", session.SessionID())
			}
		}
		return nil
	}

	notifier := app.NewNotifier(pol.SignalFilePath(), repo, pushFunc, logger)
	svc.SetNotifier(notifier)
	go notifier.Start(ctx)

	// Background scheduler: assignment, advancement, blocker resolution,
	// stale-agent reclaim. Interval 0 disables the loop.
	var scheduler *app.Scheduler
	if pol.Engine().SchedulerIntervalSeconds > 0 {
		scheduler = app.NewScheduler(svc, logger)
		go scheduler.Start(ctx)
	} else {
		logger.Println("Scheduler disabled (scheduler_interval_seconds = 0)")
	}

	// Start HTTP server in background (for remote agents and the dashboard)
	httpShutdown := startHTTPServer(mcpServer, cfg.HTTPPort, logger, sessions, hooks, svc)

	// Run stdio server in foreground
	logger.Println("Stdio ready")
	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Printf("Stdio server stopped: %v", err)
	}

	// Stdio client disconnected -- shut everything down
	cancel()
	httpShutdown()

	if scheduler != nil {
		scheduler.Stop()
	}
	notifier.Stop()

	if patternStore != nil {
		if err := patternStore.Close(); err != nil {
			logger.Printf("Warning: close pattern index: %v", err)
		}
	}

	if c, ok := repo.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logger.Printf("Warning: close state repository: %v", err)
		}
	}

	logger.Println("Server stopped")
}

// startHTTPServer starts the HTTP server in the background. Returns a shutdown
// function. Uses net.Listen to support port 0 (auto-assign) for running
// multiple instances.
func startHTTPServer(mcpServer *server.MCPServer, port int, logger *log.Logger, sessions *sessionStore, hooks *server.Hooks, svc *app.EngineService) func() {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Fatalf("HTTP listen: %v", err)
	}
	actualPort := ln.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://localhost:%d", actualPort)

	logger.Printf("HTTP server on :%d", actualPort)
	logger.Printf("  Agents connect at: %s/mcp", baseURL)
	logger.Printf("  State API:         %s/api/state", baseURL)

	hooks.AddBeforeInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest) {
		if session := server.ClientSessionFromContext(ctx); session != nil {
			sessions.set(session.SessionID(), session)
			logger.Printf("Client session registered: %s", session.SessionID())
		}
		if message != nil {
			ci := message.Params.ClientInfo
			logger.Printf("Client: %s %s, Protocol: %s", ci.Name, ci.Version, message.Params.ProtocolVersion)
		}
	})

	sseSrv := server.NewSSEServer(mcpServer, server.WithBaseURL(baseURL))
	streamSrv := server.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/sse", sseSrv)
	mux.Handle("/sse/", sseSrv)
	mux.Handle("/message", sseSrv)
	mux.Handle("/mcp", streamSrv)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","port":%d,"sessions":%d}`, actualPort, sessions.count())
	})

	dash := dashboard.NewHandler(svc)
	dash.RegisterRoutes(mux)

	httpServer := &http.Server{Handler: mux}

	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}
}

// sessionStore holds active ClientSession objects for push notifications.
type sessionStore struct {
	mu   sync.RWMutex
	data map[string]server.ClientSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{data: make(map[string]server.ClientSession)}
}

func (ss *sessionStore) set(id string, s server.ClientSession) {
	ss.mu.Lock()
	ss.data[id] = s
	ss.mu.Unlock()
}

func (ss *sessionStore) remove(id string) {
	ss.mu.Lock()
	delete(ss.data, id)
	ss.mu.Unlock()
}

func (ss *sessionStore) all() []server.ClientSession {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make([]server.ClientSession, 0, len(ss.data))
	for _, s := range ss.data {
		out = append(out, s)
	}
	return out
}

func (ss *sessionStore) count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.data)
}

// setupLogger creates a logger that writes to a log file and optionally stderr.
// When stderr is a terminal (interactive use), logs go to both stderr and the file.
// When stderr is redirected (daemon mode via nohup), logs go only to the file
// to avoid duplicate lines since nohup already redirects stderr to the log file.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[taskmill] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[taskmill] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), "[taskmill] ", log.LstdFlags|log.Lshortfile)
}

// loadConfig loads policy configuration from TASKMILL_CONFIG or defaults.
func loadConfig(logger *log.Logger) *policy.Config {
	cfg := policy.DefaultConfig()
	if configPath := os.Getenv("TASKMILL_CONFIG"); configPath != "" {
		var err error
		cfg, err = policy.LoadConfig(configPath)
		if err != nil {
			logger.Printf("Warning: failed to load config %s: %v, using defaults", configPath, err)
			cfg = policy.DefaultConfig()
		}
	}
	return cfg
}

// runStatusCommand implements "taskmill status": a one-line pipeline summary
// for shell prompts and scripts.
func runStatusCommand() {
	logger := log.New(os.Stderr, "", 0)
	cfg := loadConfig(logger)
	pol := policy.New(cfg)

	repo, err := repository.NewStateRepository(pol.StateFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if c, ok := repo.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}()

	state, err := repo.Load()
	if err != nil {
		state = domain.NewEngineState()
	}

	pending, active, blocked := 0, 0, 0
	for _, task := range state.Tasks {
		switch task.Status {
		case domain.TaskPending:
			pending++
		case domain.TaskClaimed, domain.TaskInProgress:
			active++
		case domain.TaskBlocked:
			blocked++
		}
	}

	fmt.Printf("pending=%d active=%d blocked=%d agents=%d patterns=%d\n",
		pending, active, blocked, len(state.Agents), len(state.Patterns))
}

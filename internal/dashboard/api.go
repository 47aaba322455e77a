// Package dashboard provides a JSON API for monitoring and driving the
// task automation engine over HTTP.
package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jaakkos/taskmill/internal/app"
	"github.com/jaakkos/taskmill/internal/domain"
)

// StateSnapshot is the JSON response from /api/state.
type StateSnapshot struct {
	Timestamp    string          `json:"timestamp"`
	Tasks        []TaskSnapshot  `json:"tasks"`
	Agents       []AgentSnapshot `json:"agents"`
	PatternCount int             `json:"pattern_count"`
	BlockedCount int             `json:"blocked_count"`
}

// TaskSnapshot is a per-task summary.
type TaskSnapshot struct {
	ID              int    `json:"id"`
	Title           string `json:"title"`
	Stage           string `json:"stage"`
	Status          string `json:"status"`
	Priority        int    `json:"priority"`
	Assignee        string `json:"assignee,omitempty"`
	ProgressPercent int    `json:"progress_percent"`
	BlockedReason   string `json:"blocked_reason,omitempty"`
	StageAge        string `json:"stage_age"`
	Age             string `json:"age"`
}

// AgentSnapshot is a per-agent summary.
type AgentSnapshot struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Skills   []string `json:"skills,omitempty"`
	Workload int      `json:"workload"`
	Capacity int      `json:"capacity"`
	LastSeen string   `json:"last_seen"`
}

// Handler holds dependencies for the dashboard HTTP handlers.
type Handler struct {
	svc *app.EngineService
}

// NewHandler creates a dashboard handler.
func NewHandler(svc *app.EngineService) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes adds dashboard routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", h.handleAPIState)
	mux.HandleFunc("/api/metrics", h.handleAPIMetrics)
	mux.HandleFunc("/api/action", h.handleAPIAction)
	mux.HandleFunc("/api/reset", h.handleAPIReset)
}

func (h *Handler) handleAPIState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	now := time.Now()
	snap := StateSnapshot{Timestamp: now.Format(time.RFC3339)}
	if err := h.svc.Query(func(state *domain.EngineState) error {
		for _, t := range state.Tasks {
			snap.Tasks = append(snap.Tasks, TaskSnapshot{
				ID:              t.ID,
				Title:           t.Title,
				Stage:           string(t.Stage),
				Status:          string(t.Status),
				Priority:        t.Priority,
				Assignee:        t.AssigneeAgentID,
				ProgressPercent: t.ProgressPercent,
				BlockedReason:   t.BlockedReason,
				StageAge:        relTime(t.StageStartedAt, now),
				Age:             relTime(t.CreatedAt, now),
			})
			if t.Status == domain.TaskBlocked {
				snap.BlockedCount++
			}
		}
		for _, a := range app.ListAgents(state) {
			snap.Agents = append(snap.Agents, AgentSnapshot{
				ID:       a.ID,
				Name:     a.Name,
				Status:   string(a.Status),
				Skills:   a.Skills,
				Workload: a.CurrentWorkload,
				Capacity: a.MaxConcurrentTasks,
				LastSeen: relTime(a.LastSeen, now),
			})
		}
		snap.PatternCount = len(state.Patterns)
		return nil
	}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"` + err.Error() + `"}`))
		return
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(snap)
}

func (h *Handler) handleAPIMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	out := h.svc.Dispatch("get_metrics", nil)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

// handleAPIAction runs a named engine action. The request body is
// {"action": "...", "params": {...}}; the response is the action's result
// envelope. Action-level failures come back inside the envelope with
// success=false, not as HTTP errors.
func (h *Handler) handleAPIAction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"POST required"}`))
		return
	}

	var body struct {
		Action string         `json:"action"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid JSON body"}`))
		return
	}
	if body.Action == "" {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"action is required"}`))
		return
	}

	out := h.svc.Dispatch(body.Action, body.Params)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

// handleAPIReset clears tasks, audit log, and patterns. Agents survive by
// default; pass keep_agents=false to drop them too.
func (h *Handler) handleAPIReset(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"POST required"}`))
		return
	}

	keepAgents := r.URL.Query().Get("keep_agents") != "false"

	err := h.svc.Run(func(state *domain.EngineState) error {
		state.Tasks = []domain.Task{}
		state.ActivityLog = []domain.ActivityLogEntry{}
		state.Patterns = []domain.LearningPattern{}
		state.NextTaskID = 1
		state.NextLogID = 1

		if !keepAgents {
			state.Agents = make(map[string]*domain.Agent)
			return nil
		}
		for _, a := range state.Agents {
			if a == nil {
				continue
			}
			if a.Status == domain.AgentBusy {
				a.Status = domain.AgentIdle
			}
		}
		return nil
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"` + err.Error() + `"}`))
		return
	}

	w.Write([]byte(`{"status":"ok","message":"State has been reset"}`))
}

func relTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return formatDuration(d, "s")
	case d < time.Hour:
		return formatDuration(d, "m")
	case d < 24*time.Hour:
		return formatDuration(d, "h")
	default:
		return t.Format("Jan 2 15:04")
	}
}

func formatDuration(d time.Duration, unit string) string {
	switch unit {
	case "s":
		return itoa(int(d.Seconds())) + "s ago"
	case "m":
		return itoa(int(d.Minutes())) + "m ago"
	case "h":
		return itoa(int(d.Hours())) + "h ago"
	default:
		return d.String()
	}
}

func itoa(n int) string {
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 4)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

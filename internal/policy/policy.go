// Package policy holds configuration loading and runtime accessors for the
// task automation engine.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// GlobalStateDir returns the default global state directory (~/.config/taskmill).
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "taskmill")
}

// GlobalStateFile returns the default global state file path.
func GlobalStateFile() string {
	return filepath.Join(GlobalStateDir(), "state.sqlite")
}

// StageThreshold configures automatic advancement out of one stage: the task
// advances when either the checklist fraction or the hours-in-stage bar is
// met, provided it shows documented progress.
type StageThreshold struct {
	ChecklistFraction float64 `yaml:"checklist_fraction"`
	Hours             float64 `yaml:"hours"`
}

// ScoringConfig holds the assignment scorer weights and defaults.
// Weights should sum to 1; they are not renormalized.
type ScoringConfig struct {
	SkillWeight       float64 `yaml:"skill_weight"`
	WorkloadWeight    float64 `yaml:"workload_weight"`
	SuccessRateWeight float64 `yaml:"success_rate_weight"`
	ActivityWeight    float64 `yaml:"activity_weight"`
	DefaultMinSkill   float64 `yaml:"default_min_skill_match"`
}

// TemplateSeed defines a template shipped in configuration. Seeds are applied
// idempotently on startup: an existing template with the same name is left
// untouched.
type TemplateSeed struct {
	Name            string   `yaml:"name"`
	Category        string   `yaml:"category"`
	Description     string   `yaml:"description"`
	DefaultStage    string   `yaml:"default_stage"`
	DefaultPriority int      `yaml:"default_priority"`
	RequiredSkills  []string `yaml:"required_skills"`
	Checklist       []string `yaml:"checklist"`
	ThresholdHours  float64  `yaml:"auto_advance_threshold_hours"`
}

// EngineConfig tunes the engine components.
type EngineConfig struct {
	// BatchSize bounds how many tasks one batch invocation touches.
	BatchSize int `yaml:"batch_size"`
	// SchedulerIntervalSeconds is how often the built-in scheduler runs the
	// full chain. 0 disables the loop (external trigger only).
	SchedulerIntervalSeconds int `yaml:"scheduler_interval_seconds"`
	// StallMultiplier: a task is escalation-eligible when it has sat in its
	// stage this many times longer than the stage threshold with no progress.
	StallMultiplier float64 `yaml:"stall_multiplier"`
	// QualityGatePassScore is the 0-100 score at which the gate passes.
	QualityGatePassScore int `yaml:"quality_gate_pass_score"`

	Scoring         ScoringConfig             `yaml:"scoring"`
	StageThresholds map[string]StageThreshold `yaml:"stage_thresholds"`
	Templates       []TemplateSeed            `yaml:"templates"`
}

// Config holds engine configuration.
type Config struct {
	StateFile string `yaml:"state_file"`
	LogFile   string `yaml:"log_file"`
	HTTPPort  int    `yaml:"http_port"`

	AuditRetentionMax  int `yaml:"audit_retention_max"`
	AuditRetentionDays int `yaml:"audit_retention_days"`

	Engine EngineConfig `yaml:"engine"`
}

// DefaultConfig returns sensible defaults. The stage thresholds follow the
// reference policy: DISCUSS 50%/2h, PLAN 80%/4h, EXECUTE 100%/8h, VERIFY 80%/2h.
func DefaultConfig() *Config {
	return &Config{
		AuditRetentionMax:  5000,
		AuditRetentionDays: 90,
		Engine: EngineConfig{
			BatchSize:                10,
			SchedulerIntervalSeconds: 300,
			StallMultiplier:          2.0,
			QualityGatePassScore:     60,
			Scoring: ScoringConfig{
				SkillWeight:       0.4,
				WorkloadWeight:    0.3,
				SuccessRateWeight: 0.2,
				ActivityWeight:    0.1,
				DefaultMinSkill:   0.5,
			},
			StageThresholds: map[string]StageThreshold{
				"DISCUSS": {ChecklistFraction: 0.5, Hours: 2},
				"PLAN":    {ChecklistFraction: 0.8, Hours: 4},
				"EXECUTE": {ChecklistFraction: 1.0, Hours: 8},
				"VERIFY":  {ChecklistFraction: 0.8, Hours: 2},
			},
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero values a partial YAML file may have left behind.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Engine.BatchSize <= 0 {
		c.Engine.BatchSize = def.Engine.BatchSize
	}
	if c.Engine.StallMultiplier <= 0 {
		c.Engine.StallMultiplier = def.Engine.StallMultiplier
	}
	if c.Engine.QualityGatePassScore <= 0 {
		c.Engine.QualityGatePassScore = def.Engine.QualityGatePassScore
	}
	s := &c.Engine.Scoring
	if s.SkillWeight == 0 && s.WorkloadWeight == 0 && s.SuccessRateWeight == 0 && s.ActivityWeight == 0 {
		*s = def.Engine.Scoring
	}
	if s.DefaultMinSkill == 0 {
		s.DefaultMinSkill = def.Engine.Scoring.DefaultMinSkill
	}
	if len(c.Engine.StageThresholds) == 0 {
		c.Engine.StageThresholds = def.Engine.StageThresholds
	}
}

// Policy wraps Config with concurrency-safe accessors.
type Policy struct {
	config *Config
	mu     sync.RWMutex
}

// New creates a new Policy.
func New(cfg *Config) *Policy {
	return &Policy{config: cfg}
}

// StateFile returns the configured state file path.
// If unset, defaults to the global state file (~/.config/taskmill/state.sqlite).
func (p *Policy) StateFile() string {
	p.mu.RLock()
	sf := p.config.StateFile
	p.mu.RUnlock()

	if sf == "" {
		return GlobalStateFile()
	}
	if filepath.IsAbs(sf) {
		return sf
	}
	abs, err := filepath.Abs(sf)
	if err != nil {
		return sf
	}
	return abs
}

// SignalFilePath returns the path to the notify signal file (same directory
// as the state file). Watchers use this to detect state changes without
// relying on SQLite WAL file events.
func (p *Policy) SignalFilePath() string {
	return filepath.Join(filepath.Dir(p.StateFile()), ".taskmill-notify")
}

// KnowledgeDBPath returns the path for the FTS5 pattern index database.
// It lives alongside the state file.
func (p *Policy) KnowledgeDBPath() string {
	return filepath.Join(filepath.Dir(p.StateFile()), "patterns.db")
}

// LogFile returns the configured log file path.
// If unset, defaults to ~/.config/taskmill/taskmill.log.
// Set to "none" or "off" to disable file logging entirely.
func (p *Policy) LogFile() string {
	p.mu.RLock()
	lf := p.config.LogFile
	p.mu.RUnlock()

	if lf == "" {
		return filepath.Join(GlobalStateDir(), "taskmill.log")
	}
	return lf
}

// HTTPPort returns the configured HTTP port (0 = auto-assign).
func (p *Policy) HTTPPort() int {
	return p.config.HTTPPort
}

// AuditRetentionMax returns the max audit log entries to keep.
func (p *Policy) AuditRetentionMax() int {
	return p.config.AuditRetentionMax
}

// AuditRetentionDays returns the audit log TTL in days.
func (p *Policy) AuditRetentionDays() int {
	return p.config.AuditRetentionDays
}

// Engine returns engine tuning. Never nil after DefaultConfig/LoadConfig.
func (p *Policy) Engine() *EngineConfig {
	return &p.config.Engine
}

// StageThreshold returns the advancement threshold for a stage, falling back
// to the built-in defaults for stages missing from config.
func (p *Policy) StageThreshold(stage string) StageThreshold {
	if t, ok := p.config.Engine.StageThresholds[stage]; ok {
		return t
	}
	return DefaultConfig().Engine.StageThresholds[stage]
}

// TemplateSeeds returns the templates shipped in configuration.
func (p *Policy) TemplateSeeds() []TemplateSeed {
	return p.config.Engine.Templates
}

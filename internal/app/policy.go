package app

import "github.com/jaakkos/taskmill/internal/policy"

// Policy is the configuration port used by the application.
// Implemented by internal/policy.Policy.
type Policy interface {
	StateFile() string
	SignalFilePath() string
	AuditRetentionMax() int
	AuditRetentionDays() int
	Engine() *policy.EngineConfig
	StageThreshold(stage string) policy.StageThreshold
	TemplateSeeds() []policy.TemplateSeed
}

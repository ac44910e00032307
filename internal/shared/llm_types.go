package shared

import (
	"time"
)

// Agent names recorded with every planning service call.
const (
	AgentPlanGenerator = "PlanGenerator"
	AgentIntake        = "IntakeAssistant"
)

// TokenUsage tracks the tokens consumed by a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// AgentMeta holds operational metadata for an agent execution.
type AgentMeta struct {
	AgentName string
	Usage     TokenUsage
	Latency   time.Duration
}

// MetaRecorder persists AgentMeta; implemented by the metrics store.
type MetaRecorder interface {
	RecordMeta(meta AgentMeta) error
}

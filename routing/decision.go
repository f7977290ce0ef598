package routing

import (
	"time"

	"github.com/goblinos/overmind"
	"github.com/goblinos/overmind/autoscale"
)

// Outcome enumerates every way a routing call can end. Empty candidate
// sets are expected operating conditions, not errors.
type Outcome string

const (
	OutcomeDecision             Outcome = "decision"
	OutcomeNoProvidersAvailable Outcome = "no_providers_available"
	OutcomeNoHealthyProviders   Outcome = "no_healthy_providers"
	OutcomeRateLimitExceeded    Outcome = "rate_limit_exceeded"
)

// Request is one routing question posed to the engine.
type Request struct {
	Capability   string        `json:"capability"`
	Requirements *Requirements `json:"requirements,omitempty"`

	// Chat history, used for intent-aware local model selection.
	Messages []Message `json:"messages,omitempty"`

	// Client identity for rate limiting, e.g. "ip:10.0.0.1" or "user:42".
	ClientKey string `json:"-"`

	// Request path, for emergency endpoint detection.
	Path string `json:"-"`
}

// Decision is a successful provider selection.
type Decision struct {
	Provider *overmind.ProviderConfig `json:"provider"`
	Model    string                   `json:"model"`

	// Score of the selected provider. Nil when scoring was bypassed
	// (SLA fallback or emergency mode).
	Score *ProviderScore `json:"score,omitempty"`

	// Next-best distinct provider to try if the selected one fails.
	NextBest *ProviderScore `json:"next_best,omitempty"`

	// All scored candidates, best first.
	Candidates []ProviderScore `json:"candidates,omitempty"`

	// Set when the designated fallback provider was chosen instead of a
	// scored candidate.
	IsFallback     bool   `json:"is_fallback,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`

	// Set when load shedding bypassed normal routing.
	EmergencyMode bool `json:"emergency_mode,omitempty"`

	// Present when the local model selector ran.
	LocalChoice *ModelChoice `json:"local_choice,omitempty"`

	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Result is the full answer to one routing request.
type Result struct {
	RequestID string  `json:"request_id"`
	Outcome   Outcome `json:"outcome"`

	// Set when Outcome is OutcomeDecision.
	Decision *Decision `json:"decision,omitempty"`

	// Set when Outcome is OutcomeRateLimitExceeded.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Load-shedding level applied to this request.
	Level autoscale.Level `json:"level,omitempty"`
}

// Feedback is the caller's report of what actually happened after acting
// on a decision. Routing itself never mutates monitor state; this is the
// only write path.
type Feedback struct {
	Provider  string  `json:"provider"`
	Model     string  `json:"model"`
	Success   bool    `json:"success"`
	LatencyMs int64   `json:"latency_ms"`
	CostUSD   float64 `json:"cost_usd"`
}

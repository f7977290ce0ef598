package routing

import (
	"github.com/goblinos/overmind"
)

// Priority levels accepted in Requirements.LatencyPriority.
const (
	PriorityUltraLow = "ultra_low"
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
)

// Requirements narrows the candidate set for one routing request. Zero
// values mean "no constraint"; an absent requirement never filters
// anything out.
type Requirements struct {
	// Exact model the caller wants. Providers not serving it are filtered.
	Model string `json:"model,omitempty"`

	// Minimum context window in tokens.
	MinContextWindow int `json:"min_context_window,omitempty"`

	// Require vision support.
	VisionRequired bool `json:"vision_required,omitempty"`

	// Override for intent detection on local model selection.
	Intent string `json:"intent,omitempty"`

	// Extra context text counted toward the token estimate, e.g. retrieved
	// documents not yet part of the message history.
	Context string `json:"context,omitempty"`

	// Prefer cheaper models when the request is small.
	CostPriority bool `json:"cost_priority,omitempty"`

	// One of ultra_low, low, medium, high. Scales the performance bonus
	// and selects the SLA target.
	LatencyPriority string `json:"latency_priority,omitempty"`

	// Explicit SLA target; overrides the one derived from LatencyPriority.
	SLATargetMs float64 `json:"sla_target_ms,omitempty"`

	// Maximum acceptable cost per 1K input tokens in USD. Softens or
	// sharpens the cost penalty, it never filters.
	MaxCostUSD float64 `json:"max_cost_usd,omitempty"`

	// Job type for cost estimation.
	JobType overmind.JobType `json:"job_type,omitempty"`

	// Set by the autoscaler when load shedding forces cheap models.
	FallbackMode bool `json:"fallback_mode,omitempty"`

	// Free-form extensions carried through to the audit log.
	Extra map[string]string `json:"extra,omitempty"`
}

// Matches reports whether a provider satisfies the hard requirements.
func (r *Requirements) Matches(provider *overmind.ProviderConfig) bool {
	if r == nil {
		return true
	}
	if r.Model != "" {
		if _, ok := provider.FindModel(r.Model); !ok {
			return false
		}
	}
	if r.MinContextWindow > 0 && provider.MaxContextWindow() < r.MinContextWindow {
		return false
	}
	if r.VisionRequired && !provider.HasCapability(overmind.CapabilityVision) {
		return false
	}
	return true
}

// AuditFields flattens the requirements for the audit log.
func (r *Requirements) AuditFields() map[string]string {
	if r == nil {
		return nil
	}
	fields := make(map[string]string)
	if r.Model != "" {
		fields["model"] = r.Model
	}
	if r.LatencyPriority != "" {
		fields["latency_priority"] = r.LatencyPriority
	}
	if r.Intent != "" {
		fields["intent"] = r.Intent
	}
	if r.FallbackMode {
		fields["fallback_mode"] = "true"
	}
	for key, value := range r.Extra {
		fields[key] = value
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

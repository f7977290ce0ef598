package routing

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goblinos/overmind"
	"github.com/goblinos/overmind/audit"
	"github.com/goblinos/overmind/autoscale"
	"github.com/goblinos/overmind/config"
	"github.com/goblinos/overmind/cost"
	"github.com/goblinos/overmind/health"
	"github.com/goblinos/overmind/monitoring"
	"github.com/goblinos/overmind/registry"
	"github.com/goblinos/overmind/sla"
	"github.com/goblinos/overmind/utils/array"
)

// Share of the top candidates that must meet the SLA target before the
// designated fallback takes over.
const slaComplianceFloor = 0.5

// Providers checked when measuring SLA compliance of the candidate set.
const slaComplianceSampleSize = 3

// Fast local models preferred when the designated fallback provider kicks
// in, best first.
var fastFallbackModels = []string{ModelMistral7B, "llama3.2:3b", ModelPhi3, ModelGemma2B}

// Engine turns routing requests into decisions. All reads go against
// monitor snapshots; the engine never mutates health, SLA, or cost state
// while routing. ReportOutcome is the single feedback path.
type Engine struct {
	registry   *registry.Registry
	health     *health.Monitor
	slaMonitor *sla.Monitor
	tracker    *cost.Tracker
	autoscaler *autoscale.Controller
	auditLog   *audit.Log
	metrics    *monitoring.Metrics

	slaConfig        config.SLAConfig
	weights          config.ScoringWeights
	fallbackProvider string

	logger *zap.SugaredLogger
}

type EngineParams struct {
	Registry         *registry.Registry
	Health           *health.Monitor
	SLA              *sla.Monitor
	Tracker          *cost.Tracker
	Autoscaler       *autoscale.Controller
	AuditLog         *audit.Log
	Metrics          *monitoring.Metrics
	SLAConfig        config.SLAConfig
	Weights          config.ScoringWeights
	FallbackProvider string
	Logger           *zap.SugaredLogger
}

func NewEngine(params EngineParams) *Engine {
	return &Engine{
		registry:         params.Registry,
		health:           params.Health,
		slaMonitor:       params.SLA,
		tracker:          params.Tracker,
		autoscaler:       params.Autoscaler,
		auditLog:         params.AuditLog,
		metrics:          params.Metrics,
		slaConfig:        params.SLAConfig,
		weights:          params.Weights,
		fallbackProvider: params.FallbackProvider,
		logger:           params.Logger,
	}
}

// Route answers one routing request. The result is always one of the
// enumerated outcomes; an error return would mean the engine itself is
// broken, so there is none.
func (e *Engine) Route(ctx context.Context, request Request) Result {
	requestID := uuid.NewString()
	start := time.Now()
	defer func() {
		e.metrics.ObserveRoutingDuration(request.Capability, time.Since(start))
	}()

	admission := e.autoscaler.Admit(ctx, request.ClientKey, request.Path)
	if !admission.Allowed {
		e.logger.Warnw("request rate limited",
			"request_id", requestID, "client", request.ClientKey)
		e.metrics.RecordRateLimitDrop()
		result := Result{
			RequestID:  requestID,
			Outcome:    OutcomeRateLimitExceeded,
			RetryAfter: admission.RetryAfter,
			Level:      admission.Level,
		}
		e.recordAudit(request.Capability, request.Requirements, result)
		return result
	}

	if admission.Level == autoscale.LevelEmergency {
		result := e.routeEmergency(request, requestID)
		e.recordAudit(request.Capability, request.Requirements, result)
		return result
	}

	requirements := request.Requirements
	if admission.Level == autoscale.LevelCheapModel {
		rewritten := Requirements{}
		if requirements != nil {
			rewritten = *requirements
		}
		rewritten.Model = ModelCheapFallback
		rewritten.FallbackMode = true
		requirements = &rewritten
		e.logger.Infow("using cheap fallback model", "request_id", requestID)
	}

	result := e.routeNormal(ctx, request, requirements, requestID)
	result.Level = admission.Level
	e.recordAudit(request.Capability, requirements, result)
	return result
}

func (e *Engine) routeNormal(ctx context.Context, request Request, requirements *Requirements, requestID string) Result {
	candidates := e.registry.ByCapability(request.Capability)
	if len(candidates) == 0 {
		return Result{RequestID: requestID, Outcome: OutcomeNoProvidersAvailable}
	}

	candidates = array.Filter(candidates, func(provider *overmind.ProviderConfig) bool {
		return requirements.Matches(provider)
	})
	if len(candidates) == 0 {
		return Result{RequestID: requestID, Outcome: OutcomeNoProvidersAvailable}
	}

	snapshots := make(map[string]health.Snapshot, len(candidates))
	for _, provider := range candidates {
		snapshots[provider.ID] = e.health.GetSnapshot(provider.ID)
	}

	healthy := array.Filter(candidates, func(provider *overmind.ProviderConfig) bool {
		return snapshots[provider.ID].Status != health.StatusUnhealthy
	})
	if len(healthy) == 0 {
		return Result{RequestID: requestID, Outcome: OutcomeNoHealthyProviders}
	}

	slaTargetMs := e.slaTarget(requirements)

	if e.shouldUseFallback(healthy, requirements, slaTargetMs) {
		if decision, ok := e.fallbackDecision(request.Capability); ok {
			e.logger.Infow("routing to fallback provider",
				"request_id", requestID, "provider", decision.Provider.ID,
				"reason", decision.FallbackReason)
			return Result{RequestID: requestID, Outcome: OutcomeDecision, Decision: decision}
		}
	}

	scores := make([]ProviderScore, 0, len(healthy))
	for _, provider := range healthy {
		score := ScoreProvider(ScoreInput{
			Provider:     provider,
			Health:       snapshots[provider.ID],
			SLA:          e.providerCompliance(provider, slaTargetMs),
			SLATargetMs:  slaTargetMs,
			Capability:   request.Capability,
			Requirements: requirements,
			Weights:      e.weights,
		})
		if score.Score > 0 {
			scores = append(scores, score)
		}
	}
	if len(scores) == 0 {
		return Result{RequestID: requestID, Outcome: OutcomeNoHealthyProviders}
	}

	// Stable sort keeps registry order among equal scores, so equal inputs
	// always produce the same winner.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	decision := e.buildDecision(request, requirements, scores)
	if decision == nil {
		return Result{RequestID: requestID, Outcome: OutcomeNoProvidersAvailable}
	}
	return Result{RequestID: requestID, Outcome: OutcomeDecision, Decision: decision}
}

func (e *Engine) buildDecision(request Request, requirements *Requirements, scores []ProviderScore) *Decision {
	for position, selected := range scores {
		provider, ok := e.registry.Get(selected.ProviderID)
		if !ok {
			continue
		}

		model := ""
		if requirements != nil && requirements.Model != "" {
			model = requirements.Model
		} else if defaultModel, ok := provider.DefaultModel(request.Capability); ok {
			model = defaultModel.ID
		}
		if model == "" {
			// Provider exposes no runnable model; try the next candidate.
			continue
		}

		decision := &Decision{
			Provider:   provider,
			Model:      model,
			Score:      &scores[position],
			Candidates: scores,
		}

		for _, candidate := range scores[position+1:] {
			if candidate.ProviderID != selected.ProviderID {
				next := candidate
				decision.NextBest = &next
				break
			}
		}

		if provider.SelfHosted && len(request.Messages) > 0 {
			choice := SelectLocalModel(request.Messages, requirements)
			decision.LocalChoice = &choice
			decision.Model = choice.Model
			decision.SystemPrompt = choice.SystemPrompt
		} else {
			intent := DetectIntent(request.Messages)
			if requirements != nil && requirements.Intent != "" {
				intent = Intent(requirements.Intent)
			}
			decision.SystemPrompt = systemPromptFor(intent)
		}
		return decision
	}
	return nil
}

// slaTarget resolves the effective SLA target: an explicit requirement
// wins, otherwise the latency priority maps through the configured tiers.
func (e *Engine) slaTarget(requirements *Requirements) float64 {
	if requirements == nil {
		return 0
	}
	if requirements.SLATargetMs > 0 {
		return requirements.SLATargetMs
	}
	if requirements.LatencyPriority != "" {
		return float64(e.slaConfig.SLATargetMs(requirements.LatencyPriority))
	}
	return 0
}

// shouldUseFallback checks whether the top candidates are so far out of
// SLA that the designated fallback provider is the better answer. Only
// requests carrying an explicit SLA target qualify; a target derived from
// the latency priority shapes scoring but never short-circuits it.
func (e *Engine) shouldUseFallback(candidates []*overmind.ProviderConfig, requirements *Requirements, slaTargetMs float64) bool {
	if requirements == nil || requirements.SLATargetMs <= 0 {
		return false
	}
	if requirements.LatencyPriority == PriorityMedium || requirements.LatencyPriority == PriorityHigh {
		return false
	}

	checked := 0
	compliant := 0
	for _, provider := range candidates {
		if checked == slaComplianceSampleSize {
			break
		}
		checked++
		if e.providerCompliance(provider, slaTargetMs).Compliant {
			compliant++
		}
	}
	if checked == 0 {
		return false
	}
	rate := float64(compliant) / float64(checked)
	if rate < slaComplianceFloor {
		e.logger.Infow("sla compliance below floor, considering fallback",
			"compliance_rate", rate, "sla_target_ms", slaTargetMs)
		return true
	}
	return false
}

// providerCompliance checks the provider's lead model against the target.
func (e *Engine) providerCompliance(provider *overmind.ProviderConfig, slaTargetMs float64) sla.Compliance {
	if slaTargetMs <= 0 || len(provider.Models) == 0 {
		return sla.Compliance{}
	}
	return e.slaMonitor.CheckCompliance(provider.ID, provider.Models[0].ID, slaTargetMs)
}

// fallbackDecision routes to the designated fallback provider with its
// fastest available model.
func (e *Engine) fallbackDecision(capability string) (*Decision, bool) {
	provider, ok := e.registry.Get(e.fallbackProvider)
	if !ok || !provider.IsActive {
		return nil, false
	}

	model := ""
	for _, fast := range fastFallbackModels {
		if _, ok := provider.FindModel(fast); ok {
			model = fast
			break
		}
	}
	if model == "" {
		defaultModel, ok := provider.DefaultModel(capability)
		if !ok {
			return nil, false
		}
		model = defaultModel.ID
	}

	return &Decision{
		Provider:       provider,
		Model:          model,
		IsFallback:     true,
		FallbackReason: "latency_sla_violation",
	}, true
}

// routeEmergency serves requests while load shedding is at its hardest:
// health and auth capabilities get whatever provider advertises them, and
// everything else lands on the fallback provider's cheap model.
func (e *Engine) routeEmergency(request Request, requestID string) Result {
	capability := request.Capability
	if capability == overmind.CapabilityHealth || capability == overmind.CapabilityAuth {
		for _, provider := range e.registry.ByCapability(capability) {
			decision := &Decision{Provider: provider, EmergencyMode: true}
			if model, ok := provider.DefaultModel(capability); ok {
				decision.Model = model.ID
			}
			return Result{
				RequestID: requestID,
				Outcome:   OutcomeDecision,
				Decision:  decision,
				Level:     autoscale.LevelEmergency,
			}
		}
		return Result{
			RequestID: requestID,
			Outcome:   OutcomeNoProvidersAvailable,
			Level:     autoscale.LevelEmergency,
		}
	}

	provider, ok := e.registry.Get(e.fallbackProvider)
	if !ok || !provider.IsActive {
		return Result{
			RequestID: requestID,
			Outcome:   OutcomeNoProvidersAvailable,
			Level:     autoscale.LevelEmergency,
		}
	}
	return Result{
		RequestID: requestID,
		Outcome:   OutcomeDecision,
		Decision: &Decision{
			Provider:      provider,
			Model:         ModelCheapFallback,
			EmergencyMode: true,
		},
		Level: autoscale.LevelEmergency,
	}
}

// ReportOutcome feeds the observed result of acting on a decision back
// into the monitors. This is the only path that mutates routing state.
func (e *Engine) ReportOutcome(feedback Feedback) {
	e.health.RecordSample(feedback.Provider, feedback.Success, feedback.LatencyMs)
	if feedback.Success && feedback.LatencyMs > 0 && feedback.Model != "" {
		e.slaMonitor.RecordLatency(feedback.Provider, feedback.Model, float64(feedback.LatencyMs))
	}
	if feedback.CostUSD > 0 {
		e.tracker.RecordCost(feedback.Provider, feedback.CostUSD)
		e.metrics.AddCost(feedback.Provider, feedback.CostUSD)
	}
}

// recordAudit logs the effective requirements, including any rewrite the
// autoscaler forced, not the ones the caller sent.
func (e *Engine) recordAudit(capability string, requirements *Requirements, result Result) {
	record := audit.Record{
		RequestID:    result.RequestID,
		Capability:   capability,
		Requirements: requirements.AuditFields(),
		Outcome:      string(result.Outcome),
	}
	provider := ""
	if result.Decision != nil {
		provider = result.Decision.Provider.ID
		record.Provider = provider
		record.Model = result.Decision.Model
		record.Fallback = result.Decision.IsFallback
		record.Reason = result.Decision.FallbackReason
	}
	e.auditLog.Append(record)
	e.metrics.RecordDecision(string(result.Outcome), provider)
}

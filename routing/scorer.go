package routing

import (
	"math"

	"github.com/goblinos/overmind"
	"github.com/goblinos/overmind/config"
	"github.com/goblinos/overmind/health"
	"github.com/goblinos/overmind/sla"
	"github.com/goblinos/overmind/utils"
)

// ScoreInput is everything the scorer needs for one provider, captured as
// immutable snapshots. Scoring is a pure function of this struct, so equal
// inputs always produce equal scores.
type ScoreInput struct {
	Provider     *overmind.ProviderConfig
	Health       health.Snapshot
	SLA          sla.Compliance
	SLATargetMs  float64
	Capability   string
	Requirements *Requirements
	Weights      config.ScoringWeights
}

// ScoreBreakdown records each contribution for auditability.
type ScoreBreakdown struct {
	Base             float64 `json:"base"`
	Health           float64 `json:"health"`
	PriorityBonus    float64 `json:"priority_bonus"`
	SLA              float64 `json:"sla"`
	CostPenalty      float64 `json:"cost_penalty"`
	PerformanceBonus float64 `json:"performance_bonus"`
	CapabilityBonus  float64 `json:"capability_bonus"`
}

// ProviderScore is an immutable scored candidate.
type ProviderScore struct {
	ProviderID string         `json:"provider_id"`
	Score      float64        `json:"score"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
}

// ScoreProvider computes the routing score for one candidate, clamped to
// [0, 100]. Inputs are read only.
func ScoreProvider(input ScoreInput) ProviderScore {
	breakdown := ScoreBreakdown{Base: 50}

	healthScore := healthScoreFromSnapshot(input.Health)
	breakdown.Health = healthScore * input.Weights.Latency

	breakdown.PriorityBonus = float64(input.Provider.Priority) * 2.0

	slaScore, hasSLAData := sla.Score(input.SLA, input.SLATargetMs)
	if !hasSLAData {
		// No latency data for the pair; approximate from overall health.
		slaScore = healthScore * 0.4
	}
	if input.SLATargetMs > 0 {
		breakdown.SLA = slaScore * input.Weights.SLA
	}

	breakdown.CostPenalty = costPenaltyWithBudget(input.Provider, input.Capability, requestBudget(input.Requirements)) * input.Weights.Cost

	latencyPriority := ""
	if input.Requirements != nil {
		latencyPriority = input.Requirements.LatencyPriority
	}
	breakdown.PerformanceBonus = performanceBonus(input.Health) * latencyWeight(latencyPriority)

	breakdown.CapabilityBonus = capabilityBonus(input.Provider, input.Capability, input.Requirements)

	total := breakdown.Base +
		breakdown.Health +
		breakdown.PriorityBonus +
		breakdown.SLA -
		breakdown.CostPenalty +
		breakdown.PerformanceBonus +
		breakdown.CapabilityBonus

	return ProviderScore{
		ProviderID: input.Provider.ID,
		Score:      utils.Clamp(total, 0, 100),
		Breakdown:  breakdown,
	}
}

// healthScoreFromSnapshot combines availability and responsiveness into a
// single score in [-50, 75]. No samples means a neutral zero.
func healthScoreFromSnapshot(snapshot health.Snapshot) float64 {
	if snapshot.SampleCount == 0 {
		return 0
	}
	avgMs := snapshot.AvgLatencyMs
	if avgMs == 0 {
		// No successful samples to time; assume a middling latency.
		avgMs = 1000
	}
	responseTimeScore := math.Max(0, 25-avgMs/80)
	return (snapshot.HealthyRate-0.5)*100 + responseTimeScore
}

// performanceBonus rewards fast providers: 15 points at or under 500ms
// average, tapering to zero at 2000ms.
func performanceBonus(snapshot health.Snapshot) float64 {
	if snapshot.SampleCount == 0 || snapshot.AvgLatencyMs == 0 {
		return 0
	}
	avgMs := snapshot.AvgLatencyMs
	switch {
	case avgMs <= 500:
		return 15
	case avgMs >= 2000:
		return 0
	}
	return 15 * (2000 - avgMs) / 1500
}

func latencyWeight(latencyPriority string) float64 {
	switch latencyPriority {
	case PriorityUltraLow:
		return 2.0
	case PriorityLow:
		return 1.5
	case PriorityMedium:
		return 1.0
	case PriorityHigh:
		return 0.7
	}
	return 1.0
}

func requestBudget(requirements *Requirements) float64 {
	if requirements == nil {
		return 0
	}
	return requirements.MaxCostUSD
}

// costPenalty maps the cheapest per-1K input cost onto a penalty:
// $0.001/1K is free of penalty, $0.011/1K and up caps at 20. Providers
// with no priced model for the capability take a flat 10.
func costPenalty(provider *overmind.ProviderConfig, capability string) float64 {
	minCost, ok := provider.CheapestModelCost(capability)
	if !ok {
		return 10
	}
	return math.Min(20, (minCost-0.001)*2000)
}

// costPenaltyWithBudget sharpens the penalty when the caller sets a
// per-request cost ceiling: within budget halves the penalty, over budget
// adds up to 20 in proportion to the overrun.
func costPenaltyWithBudget(provider *overmind.ProviderConfig, capability string, budgetUSD float64) float64 {
	basePenalty := costPenalty(provider, capability)
	if budgetUSD <= 0 {
		return basePenalty
	}

	minCost, ok := provider.CheapestModelCost(capability)
	if !ok {
		return basePenalty + 10
	}
	if minCost <= budgetUSD {
		return basePenalty * 0.5
	}
	overrun := minCost / budgetUSD
	return basePenalty + math.Min(20, (overrun-1)*10)
}

// capabilityBonus grants +5 for advertising the capability and +5 more for
// serving the exact requested model.
func capabilityBonus(provider *overmind.ProviderConfig, capability string, requirements *Requirements) float64 {
	bonus := 0.0
	if provider.HasCapability(capability) {
		bonus += 5
	}
	if requirements != nil && requirements.Model != "" {
		if _, ok := provider.FindModel(requirements.Model); ok {
			bonus += 5
		}
	}
	return bonus
}

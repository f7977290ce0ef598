package cost

import (
	"github.com/goblinos/overmind"
)

// Hourly GPU rates in USD per (provider kind, gpu type). The "default" row
// covers unlisted GPU types.
var hourlyRates = map[string]map[string]float64{
	overmind.KindGCP: {
		// Self-hosted, only compute costs.
		"rtx_4090": 0.0,
		"rtx_3090": 0.0,
		"default":  0.10,
	},
	overmind.KindRunPod: {
		"rtx_4090":  0.44,
		"rtx_3090":  0.30,
		"a100_40gb": 0.79,
		"a100_80gb": 1.19,
		"default":   0.40,
	},
	overmind.KindVastAI: {
		// Spot pricing, varies.
		"rtx_4090":  0.35,
		"rtx_3090":  0.25,
		"a100_40gb": 0.70,
		"default":   0.30,
	},
}

// Sustained throughput in tokens per second per provider kind.
var throughputTokensPerSec = map[string]float64{
	overmind.KindGCP:    30,
	overmind.KindRunPod: 80,
	overmind.KindVastAI: 60,
}

const (
	defaultHourlyRate          = 0.50
	defaultThroughputTokensSec = 50
)

// Overhead multipliers per job type. Batch jobs amortize startup cost;
// training and fine-tuning pay for checkpointing and orchestration.
var jobOverheads = map[overmind.JobType]float64{
	overmind.JobInference:      1.0,
	overmind.JobBatchInference: 0.9,
	overmind.JobTraining:       1.2,
	overmind.JobFineTuning:     1.3,
}

// Estimate is a projected cost and duration for running a job on one
// provider.
type Estimate struct {
	ProviderID      string    `json:"provider_id"`
	Kind            string    `json:"kind"`
	GPUType         string    `json:"gpu_type"`
	CostUSD         float64   `json:"cost_usd"`
	DurationMinutes float64   `json:"duration_minutes"`
	Breakdown       Breakdown `json:"breakdown"`
}

// Breakdown itemizes the inputs behind an estimate for auditability.
type Breakdown struct {
	BaseCostUSD        float64 `json:"base_cost_usd"`
	HourlyRateUSD      float64 `json:"hourly_rate_usd"`
	DurationHours      float64 `json:"duration_hours"`
	OverheadMultiplier float64 `json:"overhead_multiplier"`
	Tokens             int64   `json:"tokens"`
}

// HourlyRate returns the USD per GPU-hour for the given provider kind and
// GPU type, falling back to the kind's default row and then the global
// default.
func HourlyRate(kind string, gpuType string) float64 {
	rates, ok := hourlyRates[kind]
	if !ok {
		return defaultHourlyRate
	}
	if rate, ok := rates[gpuType]; ok {
		return rate
	}
	if rate, ok := rates["default"]; ok {
		return rate
	}
	return defaultHourlyRate
}

// Throughput returns the sustained tokens per second for a provider kind.
func Throughput(kind string) float64 {
	if tps, ok := throughputTokensPerSec[kind]; ok {
		return tps
	}
	return defaultThroughputTokensSec
}

// EstimateJob projects the cost and wall-clock duration of processing the
// given token count on a provider.
func EstimateJob(providerID string, kind string, gpuType string, jobType overmind.JobType, tokens int64) Estimate {
	overhead, ok := jobOverheads[jobType]
	if !ok {
		overhead = 1.0
	}

	seconds := float64(tokens) / Throughput(kind)
	hours := seconds / 3600
	rate := HourlyRate(kind, gpuType)
	baseCost := rate * hours

	return Estimate{
		ProviderID:      providerID,
		Kind:            kind,
		GPUType:         gpuType,
		CostUSD:         baseCost * overhead,
		DurationMinutes: seconds / 60,
		Breakdown: Breakdown{
			BaseCostUSD:        baseCost,
			HourlyRateUSD:      rate,
			DurationHours:      hours,
			OverheadMultiplier: overhead,
			Tokens:             tokens,
		},
	}
}

// Cheapest returns the estimate with the lowest cost. Ties keep the
// earlier estimate.
func Cheapest(estimates []Estimate) (Estimate, bool) {
	if len(estimates) == 0 {
		return Estimate{}, false
	}
	best := estimates[0]
	for _, e := range estimates[1:] {
		if e.CostUSD < best.CostUSD {
			best = e
		}
	}
	return best, true
}

// BestValue balances cost against duration (cost*0.6 + minutes*0.4).
// When maxMinutes is positive, only estimates within the deadline compete;
// if none fit, the overall cheapest wins instead.
func BestValue(estimates []Estimate, maxMinutes float64) (Estimate, bool) {
	if len(estimates) == 0 {
		return Estimate{}, false
	}

	candidates := estimates
	if maxMinutes > 0 {
		var withinDeadline []Estimate
		for _, e := range estimates {
			if e.DurationMinutes <= maxMinutes {
				withinDeadline = append(withinDeadline, e)
			}
		}
		if len(withinDeadline) == 0 {
			return Cheapest(estimates)
		}
		candidates = withinDeadline
	}

	best := candidates[0]
	bestValue := valueScore(best)
	for _, e := range candidates[1:] {
		if score := valueScore(e); score < bestValue {
			best = e
			bestValue = score
		}
	}
	return best, true
}

func valueScore(e Estimate) float64 {
	return e.CostUSD*0.6 + e.DurationMinutes*0.4
}

package overmind

// Capability names a feature a provider supports. Requests ask for exactly
// one capability; providers advertise a set.
const (
	CapabilityChat       = "chat"
	CapabilityVision     = "vision"
	CapabilityEmbeddings = "embeddings"
	CapabilityHealth     = "health"
	CapabilityAuth       = "auth"
)

// ProviderKind classifies a provider for cost estimation. Self-hosted GCP
// instances cost almost nothing, remote GPU providers bill per GPU-hour.
const (
	KindGCP      = "gcp"
	KindRunPod   = "runpod"
	KindVastAI   = "vastai"
	KindCloudAPI = "cloud_api"
)

// JobType affects the cost overhead multiplier. Batch jobs amortize better,
// training and fine-tuning carry extra orchestration overhead.
type JobType string

const (
	JobInference      JobType = "inference"
	JobBatchInference JobType = "batch_inference"
	JobTraining       JobType = "training"
	JobFineTuning     JobType = "finetuning"
)

// Pricing holds per-1K-token costs in USD.
type Pricing struct {
	InputCostPer1K  float64 `yaml:"input_cost_per_1k" json:"input_cost_per_1k"`
	OutputCostPer1K float64 `yaml:"output_cost_per_1k" json:"output_cost_per_1k"`
}

// ModelConfig describes a single model offered by a provider. Owned by its
// ProviderConfig; it has no lifecycle of its own.
type ModelConfig struct {
	// Model identifier as the provider knows it. E.g., "gpt-4o-mini"
	ID string `yaml:"id" json:"id"`

	// Maximum context window in tokens.
	ContextWindow int `yaml:"context_window" json:"context_window"`

	Pricing Pricing `yaml:"pricing" json:"pricing"`

	// Capabilities this model supports. E.g., {"chat", "vision"}
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

// HasCapability reports whether the model advertises the given capability.
func (m *ModelConfig) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// ProviderConfig is the registry's unit of configuration for one backend
// provider. Providers are soft-disabled via IsActive, never deleted.
type ProviderConfig struct {
	// Stable identifier. E.g., "openai", "ollama_gcp"
	ID string `yaml:"id" json:"id"`

	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"display_name"`

	// Kind selects the cost table. One of KindGCP, KindRunPod, KindVastAI,
	// KindCloudAPI.
	Kind string `yaml:"kind" json:"kind"`

	// Capabilities advertised by the provider as a whole.
	Capabilities []string `yaml:"capabilities" json:"capabilities"`

	// Models in registry order. The first model is the provider default.
	Models []*ModelConfig `yaml:"models" json:"models"`

	// Base URL of the endpoint. E.g., "http://localhost:11434"
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Environment variable name for the API key. E.g., "OPENAI_API_KEY"
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	// SelfHosted providers require no credential to be eligible.
	SelfHosted bool `yaml:"self_hosted" json:"self_hosted"`

	// Priority tier. Higher tiers are preferred by the scorer.
	Priority int `yaml:"priority" json:"priority"`

	IsActive bool `yaml:"is_active" json:"is_active"`
}

// HasCapability reports whether the provider advertises the given capability.
func (p *ProviderConfig) HasCapability(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// FindModel returns the model with the given id, if present.
func (p *ProviderConfig) FindModel(id string) (*ModelConfig, bool) {
	for _, m := range p.Models {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// MaxContextWindow returns the largest context window across all models.
func (p *ProviderConfig) MaxContextWindow() int {
	max := 0
	for _, m := range p.Models {
		if m.ContextWindow > max {
			max = m.ContextWindow
		}
	}
	return max
}

// CheapestModelCost returns the lowest input cost per 1K tokens among the
// provider's models supporting the capability. The second return value is
// false when no model with pricing serves the capability.
func (p *ProviderConfig) CheapestModelCost(capability string) (float64, bool) {
	found := false
	min := 0.0
	for _, m := range p.Models {
		if !m.HasCapability(capability) {
			continue
		}
		if !found || m.Pricing.InputCostPer1K < min {
			min = m.Pricing.InputCostPer1K
			found = true
		}
	}
	return min, found
}

// DefaultModel returns the first model supporting the capability, falling
// back to the provider's first model.
func (p *ProviderConfig) DefaultModel(capability string) (*ModelConfig, bool) {
	for _, m := range p.Models {
		if m.HasCapability(capability) {
			return m, true
		}
	}
	if len(p.Models) > 0 {
		return p.Models[0], true
	}
	return nil, false
}

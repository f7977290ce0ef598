package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goblinos/overmind"
)

func TestRequirementsMatches(t *testing.T) {
	provider := &overmind.ProviderConfig{
		ID:           "openai",
		Capabilities: []string{overmind.CapabilityChat},
		Models: []*overmind.ModelConfig{
			{ID: "gpt-4o-mini", ContextWindow: 128000, Capabilities: []string{overmind.CapabilityChat}},
			{ID: "gpt-4o", ContextWindow: 128000, Capabilities: []string{overmind.CapabilityChat, overmind.CapabilityVision}},
		},
	}

	t.Run("nil requirements match everything", func(t *testing.T) {
		var requirements *Requirements
		assert.True(t, requirements.Matches(provider))
	})

	t.Run("empty requirements match everything", func(t *testing.T) {
		assert.True(t, (&Requirements{}).Matches(provider))
	})

	t.Run("model filter", func(t *testing.T) {
		assert.True(t, (&Requirements{Model: "gpt-4o"}).Matches(provider))
		assert.False(t, (&Requirements{Model: "claude-3"}).Matches(provider))
	})

	t.Run("context window filter", func(t *testing.T) {
		assert.True(t, (&Requirements{MinContextWindow: 100000}).Matches(provider))
		assert.False(t, (&Requirements{MinContextWindow: 200000}).Matches(provider))
	})

	t.Run("vision filter uses provider capabilities", func(t *testing.T) {
		assert.False(t, (&Requirements{VisionRequired: true}).Matches(provider))

		visionProvider := &overmind.ProviderConfig{
			ID:           "openai",
			Capabilities: []string{overmind.CapabilityChat, overmind.CapabilityVision},
		}
		assert.True(t, (&Requirements{VisionRequired: true}).Matches(visionProvider))
	})
}

func TestRequirementsAuditFields(t *testing.T) {
	t.Run("nil requirements flatten to nil", func(t *testing.T) {
		var requirements *Requirements
		assert.Nil(t, requirements.AuditFields())
	})

	t.Run("empty requirements flatten to nil", func(t *testing.T) {
		assert.Nil(t, (&Requirements{}).AuditFields())
	})

	t.Run("set fields are carried", func(t *testing.T) {
		requirements := &Requirements{
			Model:           "gpt-4o",
			LatencyPriority: PriorityLow,
			FallbackMode:    true,
			Extra:           map[string]string{"tenant": "acme"},
		}
		fields := requirements.AuditFields()
		assert.Equal(t, "gpt-4o", fields["model"])
		assert.Equal(t, PriorityLow, fields["latency_priority"])
		assert.Equal(t, "true", fields["fallback_mode"])
		assert.Equal(t, "acme", fields["tenant"])
	})
}

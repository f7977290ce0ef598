package config

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/goblinos/overmind"
	"github.com/goblinos/overmind/utils/env"
)

// BudgetConfig caps recorded spending. Both limits are advisory; routing
// degrades scores instead of refusing requests.
type BudgetConfig struct {
	// Daily budget in USD. E.g., 50.0
	DailyUSD float64 `yaml:"daily_usd"`

	// Monthly budget in USD. E.g., 1500.0
	MonthlyUSD float64 `yaml:"monthly_usd"`
}

// SLAConfig holds latency targets per priority tier, in milliseconds.
type SLAConfig struct {
	UltraLowMs int64 `yaml:"ultra_low_ms"`
	LowMs      int64 `yaml:"low_ms"`
	MediumMs   int64 `yaml:"medium_ms"`
	HighMs     int64 `yaml:"high_ms"`
}

// ScoringWeights balance the routing score components. They should sum to 1.
type ScoringWeights struct {
	Latency float64 `yaml:"latency"`
	Cost    float64 `yaml:"cost"`
	SLA     float64 `yaml:"sla"`
}

// AutoscaleConfig drives load-shedding decisions from the shared request
// counters.
type AutoscaleConfig struct {
	// Window for the sliding request counters. E.g., 1m
	Window string `yaml:"window"`

	// Global request count that switches routing to cheap models.
	SoftThreshold int64 `yaml:"soft_threshold"`

	// Global request count that switches routing to emergency mode.
	HardThreshold int64 `yaml:"hard_threshold"`

	// Per-client request limit within the window.
	ClientLimit int64 `yaml:"client_limit"`
}

// Config represents the full application configuration
type Config struct {
	// Valkey (open-source version of Redis) endpoint to store rate limiting
	// information. E.g., localhost:6379
	ValkeyEndpoint string `yaml:"valkey_endpoint"`

	// API key to access the Overmind admin surface. The user should provide
	// this key in the Authorization header with the Bearer scheme.
	OvermindApiKey string `yaml:"api_key"`

	// Interval between background health check rounds. E.g., 60s
	HealthCheckInterval string `yaml:"health_check_interval"`

	// Timeout applied to each individual health probe. E.g., 5s
	ProbeTimeout string `yaml:"probe_timeout"`

	// Port to listen for incoming requests.
	Port int `yaml:"port"`

	Budget    BudgetConfig    `yaml:"budget"`
	SLA       SLAConfig       `yaml:"sla"`
	Weights   ScoringWeights  `yaml:"weights"`
	Autoscale AutoscaleConfig `yaml:"autoscale"`

	// Provider ID used when SLA compliance forces a fallback. E.g., "ollama"
	FallbackProvider string `yaml:"fallback_provider"`

	// Configuration for each provider, in priority-list order.
	Providers []*overmind.ProviderConfig `yaml:"providers"`
}

// LoadConfig loads the configuration from the specified path
func LoadConfig(path string, logger *zap.SugaredLogger) (*Config, error) {
	// Setting default values
	config := Config{
		ValkeyEndpoint:      "",
		OvermindApiKey:      "",
		HealthCheckInterval: "60s",
		ProbeTimeout:        "5s",
		Port:                8080,
		Budget: BudgetConfig{
			DailyUSD:   50.0,
			MonthlyUSD: 1500.0,
		},
		SLA: SLAConfig{
			UltraLowMs: 500,
			LowMs:      1000,
			MediumMs:   2000,
			HighMs:     5000,
		},
		Weights: ScoringWeights{
			Latency: 0.3,
			Cost:    0.4,
			SLA:     0.3,
		},
		Autoscale: AutoscaleConfig{
			Window:        "1m",
			SoftThreshold: 500,
			HardThreshold: 1000,
			ClientLimit:   60,
		},
		FallbackProvider: "ollama",
	}

	// Checks if config is specified via environment variable.
	configSource := env.OptionalStringVariable("CONFIG_SOURCE", path)
	configToken := env.OptionalStringVariable("CONFIG_TOKEN", "")
	configData, err := func(configSource string, configToken string) ([]byte, error) {
		// Handle URL or local path
		if strings.HasPrefix(configSource, "http://") || strings.HasPrefix(configSource, "https://") {
			logger.Infow("Fetching remote config", "url", configSource)
			return fetchRemoteConfig(configSource, configToken)
		}
		logger.Infow("Loading local config", "path", configSource)
		return os.ReadFile(configSource)
	}(configSource, configToken)

	if err != nil {
		return nil, fmt.Errorf("failed to get config data: %v", err)
	}

	// Overrides config with the YAML data.
	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	// Overrides config with environment variables.
	// Therefore, the values from the environment variables precede the values
	// from the YAML file.
	config.ValkeyEndpoint = env.OptionalStringVariable("VALKEY_ENDPOINT", config.ValkeyEndpoint)
	config.OvermindApiKey = env.OptionalStringVariable("OVERMIND_API_KEY", config.OvermindApiKey)
	config.HealthCheckInterval = env.OptionalStringVariable("HEALTH_CHECK_INTERVAL", config.HealthCheckInterval)
	config.ProbeTimeout = env.OptionalStringVariable("PROBE_TIMEOUT", config.ProbeTimeout)
	config.Port = env.OptionalIntVariable("PORT", config.Port)
	config.Budget.DailyUSD = env.OptionalFloatVariable("DAILY_BUDGET_USD", config.Budget.DailyUSD)
	config.Budget.MonthlyUSD = env.OptionalFloatVariable("MONTHLY_BUDGET_USD", config.Budget.MonthlyUSD)
	config.FallbackProvider = env.OptionalStringVariable("FALLBACK_PROVIDER", config.FallbackProvider)

	return &config, nil
}

// SLATargetMs returns the latency target in milliseconds for a priority
// tier, or 0 when the tier is unknown.
func (c *SLAConfig) SLATargetMs(priority string) int64 {
	switch priority {
	case "ultra_low":
		return c.UltraLowMs
	case "low":
		return c.LowMs
	case "medium":
		return c.MediumMs
	case "high":
		return c.HighMs
	}
	return 0
}

func fetchRemoteConfig(url string, token string) ([]byte, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch config: HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

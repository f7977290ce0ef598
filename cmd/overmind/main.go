package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/goblinos/overmind/audit"
	"github.com/goblinos/overmind/autoscale"
	"github.com/goblinos/overmind/config"
	"github.com/goblinos/overmind/cost"
	"github.com/goblinos/overmind/health"
	"github.com/goblinos/overmind/monitoring"
	"github.com/goblinos/overmind/registry"
	"github.com/goblinos/overmind/routing"
	"github.com/goblinos/overmind/server"
	"github.com/goblinos/overmind/sla"
	"github.com/goblinos/overmind/state"
	"github.com/goblinos/overmind/utils"
)

const auditLogCapacity = 1024

// httpProber checks a provider by fetching its base URL.
type httpProber struct {
	registry *registry.Registry
	client   *http.Client
	metrics  *monitoring.Metrics
}

func (p *httpProber) Probe(ctx context.Context, providerID string) (int64, error) {
	provider, ok := p.registry.Get(providerID)
	if !ok {
		return 0, fmt.Errorf("provider %s not found", providerID)
	}
	if provider.BaseURL == "" {
		return 0, fmt.Errorf("provider %s has no base url", providerID)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.BaseURL, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	response, err := p.client.Do(request)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusInternalServerError {
		return 0, fmt.Errorf("provider %s returned status %d", providerID, response.StatusCode)
	}

	latencyMs := time.Since(start).Milliseconds()
	p.metrics.ObserveProbeLatency(providerID, latencyMs)
	return latencyMs, nil
}

func healthGaugeValue(status health.Status) float64 {
	switch status {
	case health.StatusHealthy:
		return 1
	case health.StatusDegraded:
		return 0.5
	}
	return 0
}

func main() {
	logger := utils.Must(zap.NewProduction())
	defer logger.Sync()
	sugar := logger.Sugar()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.LoadConfig(*configPath, sugar)
	if err != nil {
		sugar.Fatalw("Failed to load config", "error", err)
	}
	sugar.Infow("Loaded config", "providers", len(cfg.Providers), "port", cfg.Port)

	probeTimeout, err := time.ParseDuration(cfg.ProbeTimeout)
	if err != nil {
		sugar.Fatalw("Invalid probe timeout", "error", err)
	}
	healthCheckInterval, err := time.ParseDuration(cfg.HealthCheckInterval)
	if err != nil {
		sugar.Fatalw("Invalid health check interval", "error", err)
	}
	autoscaleWindow, err := time.ParseDuration(cfg.Autoscale.Window)
	if err != nil {
		sugar.Fatalw("Invalid autoscale window", "error", err)
	}

	var stateManager state.Manager
	if cfg.ValkeyEndpoint != "" {
		valkeyClient, err := valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{cfg.ValkeyEndpoint},
		})
		if err != nil {
			sugar.Fatalw("Failed to create Valkey client", "error", err)
		}
		defer valkeyClient.Close()
		stateManager = state.NewValkeyManager(valkeyClient)
		sugar.Infow("Using Valkey state manager", "endpoint", cfg.ValkeyEndpoint)
	} else {
		memoryManager, cleanup := state.NewMemoryManager()
		defer cleanup()
		stateManager = memoryManager
		sugar.Info("Using in-memory state manager; counters are local to this instance")
	}

	metrics, err := monitoring.NewMetrics()
	if err != nil {
		sugar.Fatalw("Failed to create metrics", "error", err)
	}

	providerRegistry := registry.NewFromConfigs(cfg.Providers, sugar)
	prober := &httpProber{
		registry: providerRegistry,
		client:   &http.Client{Timeout: probeTimeout},
		metrics:  metrics,
	}

	healthMonitor := health.NewMonitor(prober, probeTimeout, sugar)
	for _, provider := range providerRegistry.All() {
		healthMonitor.Track(provider.ID)
	}
	healthMonitor.OnStatusChange(func(providerID string, from health.Status, to health.Status) {
		sugar.Infow("Provider status changed", "provider", providerID, "from", from, "to", to)
		metrics.SetProviderHealth(providerID, healthGaugeValue(to))
	})

	slaMonitor := sla.NewMonitor(sugar)
	tracker := cost.NewTracker(cfg.Budget.DailyUSD, cfg.Budget.MonthlyUSD, sugar)
	controller := autoscale.NewController(stateManager, autoscaleWindow,
		cfg.Autoscale.SoftThreshold, cfg.Autoscale.HardThreshold, cfg.Autoscale.ClientLimit, sugar)
	auditLog := audit.NewLog(auditLogCapacity)

	engine := routing.NewEngine(routing.EngineParams{
		Registry:         providerRegistry,
		Health:           healthMonitor,
		SLA:              slaMonitor,
		Tracker:          tracker,
		Autoscaler:       controller,
		AuditLog:         auditLog,
		Metrics:          metrics,
		SLAConfig:        cfg.SLA,
		Weights:          cfg.Weights,
		FallbackProvider: cfg.FallbackProvider,
		Logger:           sugar,
	})

	apiServer := server.New(server.Params{
		Engine:     engine,
		Registry:   providerRegistry,
		Health:     healthMonitor,
		Tracker:    tracker,
		Controller: controller,
		AuditLog:   auditLog,
		Metrics:    metrics,
		Config:     cfg,
		Logger:     sugar,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopHealthLoop := healthMonitor.Start(ctx, healthCheckInterval)
	defer stopHealthLoop()

	address := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: apiServer.Handler(),
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownSignal
		sugar.Infow("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugar.Fatalw("Server forced to shutdown", "error", err)
		}
	}()

	sugar.Infow("Starting server", "address", address)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("Failed to start server", "error", err)
	}

	sugar.Infow("Server exited gracefully")
}

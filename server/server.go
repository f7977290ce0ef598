package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/goblinos/overmind"
	"github.com/goblinos/overmind/audit"
	"github.com/goblinos/overmind/autoscale"
	"github.com/goblinos/overmind/config"
	"github.com/goblinos/overmind/cost"
	"github.com/goblinos/overmind/health"
	"github.com/goblinos/overmind/monitoring"
	"github.com/goblinos/overmind/registry"
	"github.com/goblinos/overmind/routing"
)

// Server exposes the routing engine and its monitors over HTTP.
type Server struct {
	engine     *routing.Engine
	registry   *registry.Registry
	health     *health.Monitor
	tracker    *cost.Tracker
	controller *autoscale.Controller
	auditLog   *audit.Log
	metrics    *monitoring.Metrics

	apiKey string
	logger *zap.SugaredLogger
}

type Params struct {
	Engine     *routing.Engine
	Registry   *registry.Registry
	Health     *health.Monitor
	Tracker    *cost.Tracker
	Controller *autoscale.Controller
	AuditLog   *audit.Log
	Metrics    *monitoring.Metrics
	Config     *config.Config
	Logger     *zap.SugaredLogger
}

func New(params Params) *Server {
	return &Server{
		engine:     params.Engine,
		registry:   params.Registry,
		health:     params.Health,
		tracker:    params.Tracker,
		controller: params.Controller,
		auditLog:   params.AuditLog,
		metrics:    params.Metrics,
		apiKey:     params.Config.OvermindApiKey,
		logger:     params.Logger,
	}
}

// Handler builds the full route table with CORS and auth applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/v1/route", s.authenticated(s.handleRoute)).Methods(http.MethodPost)
	router.HandleFunc("/v1/feedback", s.authenticated(s.handleFeedback)).Methods(http.MethodPost)
	router.HandleFunc("/v1/providers", s.authenticated(s.handleListProviders)).Methods(http.MethodGet)
	router.HandleFunc("/v1/providers/{id}/check", s.authenticated(s.handleCheckProvider)).Methods(http.MethodPost)
	router.HandleFunc("/v1/providers/{id}/active", s.authenticated(s.handleSetActive)).Methods(http.MethodPost)
	router.HandleFunc("/v1/health/providers", s.authenticated(s.handleProviderHealth)).Methods(http.MethodGet)
	router.HandleFunc("/v1/budget", s.authenticated(s.handleBudget)).Methods(http.MethodGet)
	router.HandleFunc("/v1/costs/summary", s.authenticated(s.handleCostSummary)).Methods(http.MethodGet)
	router.HandleFunc("/v1/costs/estimate", s.authenticated(s.handleCostEstimate)).Methods(http.MethodPost)
	router.HandleFunc("/v1/audit", s.authenticated(s.handleAudit)).Methods(http.MethodGet)
	router.HandleFunc("/v1/emergency", s.authenticated(s.handleEmergency)).Methods(http.MethodPost)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		Debug:          false,
	})
	return corsMiddleware.Handler(router)
}

func (s *Server) authenticated(handler http.HandlerFunc) http.HandlerFunc {
	return func(httpResponse http.ResponseWriter, httpRequest *http.Request) {
		if s.apiKey == "" {
			handler(httpResponse, httpRequest)
			return
		}

		headerSplit := strings.Split(httpRequest.Header.Get("Authorization"), " ")
		if len(headerSplit) != 2 ||
			strings.ToLower(headerSplit[0]) != "bearer" ||
			headerSplit[1] != s.apiKey {
			http.Error(httpResponse, "Unauthorized", http.StatusUnauthorized)
			return
		}

		handler(httpResponse, httpRequest)
	}
}

func (s *Server) handleHealth(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	s.writeJSON(httpResponse, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoute(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	defer httpRequest.Body.Close()

	var request routing.Request
	if err := json.NewDecoder(httpRequest.Body).Decode(&request); err != nil {
		s.logger.Warnw("Invalid route request body", "error", err)
		http.Error(httpResponse, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.Capability == "" {
		http.Error(httpResponse, "Missing capability", http.StatusBadRequest)
		return
	}

	request.ClientKey = clientKey(httpRequest)
	request.Path = httpRequest.URL.Path

	result := s.engine.Route(httpRequest.Context(), request)
	s.logger.Infow("Routed request",
		"request_id", result.RequestID, "capability", request.Capability, "outcome", result.Outcome)

	status := http.StatusOK
	switch result.Outcome {
	case routing.OutcomeRateLimitExceeded:
		status = http.StatusTooManyRequests
		httpResponse.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter/time.Second)))
	case routing.OutcomeNoProvidersAvailable, routing.OutcomeNoHealthyProviders:
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(httpResponse, status, result)
}

func (s *Server) handleFeedback(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	defer httpRequest.Body.Close()

	var feedback routing.Feedback
	if err := json.NewDecoder(httpRequest.Body).Decode(&feedback); err != nil {
		s.logger.Warnw("Invalid feedback body", "error", err)
		http.Error(httpResponse, "Invalid request body", http.StatusBadRequest)
		return
	}
	if feedback.Provider == "" {
		http.Error(httpResponse, "Missing provider", http.StatusBadRequest)
		return
	}
	if _, ok := s.registry.Get(feedback.Provider); !ok {
		http.Error(httpResponse, "Unknown provider", http.StatusNotFound)
		return
	}

	s.engine.ReportOutcome(feedback)
	s.writeJSON(httpResponse, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleListProviders(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	s.writeJSON(httpResponse, http.StatusOK, s.registry.All())
}

func (s *Server) handleCheckProvider(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	providerID := mux.Vars(httpRequest)["id"]
	if _, ok := s.registry.Get(providerID); !ok {
		http.Error(httpResponse, "Unknown provider", http.StatusNotFound)
		return
	}

	snapshot := s.health.ForceCheck(httpRequest.Context(), providerID)
	s.writeJSON(httpResponse, http.StatusOK, snapshot)
}

func (s *Server) handleSetActive(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	defer httpRequest.Body.Close()
	providerID := mux.Vars(httpRequest)["id"]

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(httpRequest.Body).Decode(&body); err != nil {
		http.Error(httpResponse, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.registry.SetActive(providerID, body.Active); err != nil {
		http.Error(httpResponse, "Unknown provider", http.StatusNotFound)
		return
	}
	s.logger.Infow("Provider activation changed", "provider", providerID, "active", body.Active)
	s.writeJSON(httpResponse, http.StatusOK, map[string]any{"provider": providerID, "active": body.Active})
}

func (s *Server) handleProviderHealth(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	s.writeJSON(httpResponse, http.StatusOK, s.health.Snapshots())
}

func (s *Server) handleBudget(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	s.writeJSON(httpResponse, http.StatusOK, s.tracker.GetBudgetStatus())
}

func (s *Server) handleCostSummary(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	providerIDs := make([]string, 0)
	for _, provider := range s.registry.All() {
		providerIDs = append(providerIDs, provider.ID)
	}
	s.writeJSON(httpResponse, http.StatusOK, s.tracker.GetSummary(providerIDs))
}

type estimateRequest struct {
	GPUType string           `json:"gpu_type"`
	JobType overmind.JobType `json:"job_type"`
	Tokens  int64            `json:"tokens"`

	// Optional deadline. When set, the best value estimate only considers
	// providers expected to finish in time.
	MaxMinutes float64 `json:"max_minutes,omitempty"`
}

type estimateResponse struct {
	Estimates []cost.Estimate `json:"estimates"`
	Cheapest  *cost.Estimate  `json:"cheapest,omitempty"`
	BestValue *cost.Estimate  `json:"best_value,omitempty"`
}

func (s *Server) handleCostEstimate(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	defer httpRequest.Body.Close()

	var request estimateRequest
	if err := json.NewDecoder(httpRequest.Body).Decode(&request); err != nil {
		http.Error(httpResponse, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.Tokens <= 0 {
		http.Error(httpResponse, "Missing tokens", http.StatusBadRequest)
		return
	}

	response := estimateResponse{Estimates: []cost.Estimate{}}
	for _, provider := range s.registry.All() {
		if !provider.IsActive {
			continue
		}
		response.Estimates = append(response.Estimates,
			cost.EstimateJob(provider.ID, provider.Kind, request.GPUType, request.JobType, request.Tokens))
	}
	if cheapest, ok := cost.Cheapest(response.Estimates); ok {
		response.Cheapest = &cheapest
	}
	if bestValue, ok := cost.BestValue(response.Estimates, request.MaxMinutes); ok {
		response.BestValue = &bestValue
	}
	s.writeJSON(httpResponse, http.StatusOK, response)
}

func (s *Server) handleAudit(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	limit := 50
	if raw := httpRequest.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(httpResponse, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	s.writeJSON(httpResponse, http.StatusOK, s.auditLog.Recent(limit))
}

func (s *Server) handleEmergency(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	defer httpRequest.Body.Close()

	var body struct {
		Enabled    bool  `json:"enabled"`
		TTLSeconds int64 `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(httpRequest.Body).Decode(&body); err != nil {
		http.Error(httpResponse, "Invalid request body", http.StatusBadRequest)
		return
	}
	ttl := 5 * time.Minute
	if body.TTLSeconds > 0 {
		ttl = time.Duration(body.TTLSeconds) * time.Second
	}

	if err := s.controller.SetEmergencyMode(httpRequest.Context(), body.Enabled, ttl); err != nil {
		s.logger.Errorw("Failed to set emergency mode", "error", err)
		http.Error(httpResponse, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.logger.Warnw("Emergency mode changed", "enabled", body.Enabled, "ttl", ttl)
	s.writeJSON(httpResponse, http.StatusOK, map[string]any{"enabled": body.Enabled})
}

func (s *Server) writeJSON(httpResponse http.ResponseWriter, status int, payload any) {
	httpResponse.Header().Set("Content-Type", "application/json")
	httpResponse.WriteHeader(status)
	if err := json.NewEncoder(httpResponse).Encode(payload); err != nil {
		s.logger.Errorw("Failed to encode response", "error", err)
	}
}

// clientKey identifies the caller for rate limiting: explicit header first,
// then the proxy chain, then the socket address.
func clientKey(httpRequest *http.Request) string {
	if client := httpRequest.Header.Get("X-Client-Id"); client != "" {
		return "client:" + client
	}
	if forwarded := httpRequest.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return "ip:" + first
		}
	}
	host := httpRequest.RemoteAddr
	if index := strings.LastIndex(host, ":"); index > 0 {
		host = host[:index]
	}
	return "ip:" + host
}

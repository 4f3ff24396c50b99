package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grantforge/grantforge/config"
)

var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantforge_generations_total",
		Help: "Grant generation runs by outcome",
	}, []string{"status"})
	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "grantforge_generation_duration_seconds",
		Help:    "End to end grant generation duration",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	agentInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantforge_agent_invocations_total",
		Help: "Agent tool invocations by agent name and outcome",
	}, []string{"agent", "status"})
	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantforge_llm_tokens_total",
		Help: "LLM tokens consumed by model",
	}, []string{"model"})
	searchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantforge_search_requests_total",
		Help: "Web search requests by provider and outcome",
	}, []string{"provider", "status"})
)

// Telemetry tracks generation metrics and LLM spend. All record methods are
// safe for concurrent use.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds aggregate counters for the process lifetime
type Metrics struct {
	TotalGenerations      int64
	SuccessfulGenerations int64
	FailedGenerations     int64
	AverageGenerationTime time.Duration

	AgentInvocations  map[string]int64
	AgentSuccessRates map[string]float64

	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64

	SearchRequests map[string]int64
}

// CostTracker accumulates LLM costs per model and per agent
type CostTracker struct {
	ModelCosts  map[string]float64
	AgentCosts  map[string]float64
	TotalCost   float64
	TotalTokens int64
}

// GenerationEvent describes one complete grant generation run
type GenerationEvent struct {
	JobID      string
	OrgName    string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	AgentsUsed []string
	ModelsUsed []string
}

// AgentEvent describes one agent tool invocation inside a run
type AgentEvent struct {
	JobID      string
	Agent      string
	Method     string
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	ModelUsed  string
}

// SearchEvent describes one outbound web search
type SearchEvent struct {
	Provider string
	Query    string
	Duration time.Duration
	Success  bool
	Results  int
}

// NewTelemetry creates a telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			AgentInvocations:  make(map[string]int64),
			AgentSuccessRates: make(map[string]float64),
			LLMRequests:       make(map[string]int64),
			LLMTokensUsed:     make(map[string]int64),
			SearchRequests:    make(map[string]int64),
		},
		costTracker: &CostTracker{
			ModelCosts: make(map[string]float64),
			AgentCosts: make(map[string]float64),
		},
	}
}

// RecordGenerationEvent records a completed generation run
func (t *Telemetry) RecordGenerationEvent(ctx context.Context, event GenerationEvent) {
	if !t.config.Enabled {
		return
	}

	status := "success"
	if !event.Success {
		status = "failure"
	}
	generationsTotal.WithLabelValues(status).Inc()
	generationDuration.Observe(event.Duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalGenerations++
	if event.Success {
		t.metrics.SuccessfulGenerations++
	} else {
		t.metrics.FailedGenerations++
	}

	if t.metrics.TotalGenerations == 1 {
		t.metrics.AverageGenerationTime = event.Duration
	} else {
		total := t.metrics.AverageGenerationTime * time.Duration(t.metrics.TotalGenerations-1)
		t.metrics.AverageGenerationTime = (total + event.Duration) / time.Duration(t.metrics.TotalGenerations)
	}

	for _, model := range event.ModelsUsed {
		t.metrics.LLMRequests[model]++
	}

	if t.config.CostTracking {
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += event.TokensUsed
	}

	t.logger.Printf("Generation: job=%s org=%q success=%t duration=%v cost=$%.4f tokens=%d",
		event.JobID, event.OrgName, event.Success, event.Duration, event.Cost, event.TokensUsed)
}

// RecordAgentEvent records a single agent invocation
func (t *Telemetry) RecordAgentEvent(ctx context.Context, event AgentEvent) {
	if !t.config.Enabled {
		return
	}

	status := "success"
	if !event.Success {
		status = "failure"
	}
	agentInvocations.WithLabelValues(event.Agent, status).Inc()
	if event.ModelUsed != "" && event.TokensUsed > 0 {
		llmTokens.WithLabelValues(event.ModelUsed).Add(float64(event.TokensUsed))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.AgentInvocations[event.Agent]++
	successes := t.metrics.AgentSuccessRates[event.Agent] * float64(t.metrics.AgentInvocations[event.Agent]-1)
	if event.Success {
		successes += 1.0
	}
	t.metrics.AgentSuccessRates[event.Agent] = successes / float64(t.metrics.AgentInvocations[event.Agent])

	if event.ModelUsed != "" {
		t.metrics.LLMRequests[event.ModelUsed]++
		t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
	}

	if t.config.CostTracking {
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += event.TokensUsed
		t.costTracker.ModelCosts[event.ModelUsed] += event.Cost
		t.costTracker.AgentCosts[event.Agent] += event.Cost
	}
}

// RecordSearchEvent records an outbound web search
func (t *Telemetry) RecordSearchEvent(ctx context.Context, event SearchEvent) {
	if !t.config.Enabled {
		return
	}

	status := "success"
	if !event.Success {
		status = "failure"
	}
	searchRequests.WithLabelValues(event.Provider, status).Inc()

	t.mu.Lock()
	t.metrics.SearchRequests[event.Provider]++
	t.mu.Unlock()
}

// GetMetrics returns a copy of the current metrics
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.AgentInvocations = make(map[string]int64, len(t.metrics.AgentInvocations))
	metrics.AgentSuccessRates = make(map[string]float64, len(t.metrics.AgentSuccessRates))
	metrics.LLMRequests = make(map[string]int64, len(t.metrics.LLMRequests))
	metrics.LLMTokensUsed = make(map[string]int64, len(t.metrics.LLMTokensUsed))
	metrics.SearchRequests = make(map[string]int64, len(t.metrics.SearchRequests))
	for k, v := range t.metrics.AgentInvocations {
		metrics.AgentInvocations[k] = v
	}
	for k, v := range t.metrics.AgentSuccessRates {
		metrics.AgentSuccessRates[k] = v
	}
	for k, v := range t.metrics.LLMRequests {
		metrics.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokensUsed {
		metrics.LLMTokensUsed[k] = v
	}
	for k, v := range t.metrics.SearchRequests {
		metrics.SearchRequests[k] = v
	}
	return metrics
}

// CostSummary is a point-in-time snapshot of accumulated costs
type CostSummary struct {
	TotalCost   float64
	TotalTokens int64
	ModelCosts  map[string]float64
	AgentCosts  map[string]float64
}

// GetCostSummary returns a copy of the accumulated cost data
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:   t.costTracker.TotalCost,
		TotalTokens: t.costTracker.TotalTokens,
		ModelCosts:  make(map[string]float64, len(t.costTracker.ModelCosts)),
		AgentCosts:  make(map[string]float64, len(t.costTracker.AgentCosts)),
	}
	for k, v := range t.costTracker.ModelCosts {
		summary.ModelCosts[k] = v
	}
	for k, v := range t.costTracker.AgentCosts {
		summary.AgentCosts[k] = v
	}
	return summary
}

// CalculateCost computes dollar cost for a token count against per-1K rates
func (t *Telemetry) CalculateCost(inputTokens, outputTokens int64, costPer1KInput, costPer1KOutput float64) float64 {
	return float64(inputTokens)/1000.0*costPer1KInput + float64(outputTokens)/1000.0*costPer1KOutput
}

// Shutdown logs a final summary
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()
	if metrics.TotalGenerations == 0 {
		return
	}
	t.logger.Printf("Final: generations=%d/%d avg=%v cost=$%.4f tokens=%d",
		metrics.SuccessfulGenerations, metrics.TotalGenerations,
		metrics.AverageGenerationTime, costs.TotalCost, costs.TotalTokens)
}

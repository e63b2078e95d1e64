package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/saulini100/AI-Library--sub001/config"
)

// Telemetry provides monitoring and cost tracking for the companion core.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	prom        *promCollectors
	mu          sync.RWMutex
}

// Metrics holds various performance metrics
type Metrics struct {
	mu sync.RWMutex
	// Query metrics
	TotalQueries      int64
	SuccessfulQueries int64
	FailedQueries     int64
	AverageQueryTime  time.Duration

	// Agent metrics
	AgentExecutions   map[string]int64
	AgentSuccessRates map[string]float64
	AgentAverageTimes map[string]time.Duration

	// Backend metrics
	BackendRequests       map[string]int64
	BackendTokensUsed     map[string]int64
	BackendAverageLatency map[string]time.Duration

	// Cache metrics
	CacheHits   int64
	CacheMisses int64
}

// CostTracker tracks costs across backends and task types
type CostTracker struct {
	mu sync.RWMutex
	// Task costs
	TaskCosts map[string]float64 // task type -> cost

	// Backend costs
	BackendCosts map[string]float64 // backend -> cost

	// Total costs
	TotalCost   float64
	TotalTokens int64
}

// QueryEvent represents one coordinated user query from dispatch to answer.
type QueryEvent struct {
	ID          string
	Query       string
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Success     bool
	Error       string
	Cost        float64
	TokensUsed  int64
	AgentsUsed  []string
	FromCache   bool
	Confidence  float64
	BackendUsed string
}

// AgentEvent represents a single agent task execution.
type AgentEvent struct {
	ID         string
	AgentType  string
	TaskType   string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	ModelUsed  string
	Confidence float64
}

// BackendEvent represents one model-backend call, including fallbacks.
type BackendEvent struct {
	Backend   string
	TaskType  string
	Duration  time.Duration
	Success   bool
	TimedOut  bool
	Fallback  bool
	TokensIn  int64
	TokensOut int64
	Cost      float64
}

type promCollectors struct {
	queriesTotal    *prometheus.CounterVec
	agentTasksTotal *prometheus.CounterVec
	backendCalls    *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	cacheHitsTotal  prometheus.Counter
	cacheMissTotal  prometheus.Counter
	costTotal       prometheus.Counter
}

func newPromCollectors(reg prometheus.Registerer) *promCollectors {
	p := &promCollectors{
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_queries_total",
			Help: "Coordinated queries by outcome.",
		}, []string{"outcome"}),
		agentTasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_agent_tasks_total",
			Help: "Agent task executions by agent and outcome.",
		}, []string{"agent", "outcome"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_backend_calls_total",
			Help: "Model backend calls by backend and outcome.",
		}, []string{"backend", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "companion_backend_latency_seconds",
			Help:    "Model backend call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "companion_cache_hits_total",
			Help: "Response cache hits.",
		}),
		cacheMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "companion_cache_misses_total",
			Help: "Response cache misses.",
		}),
		costTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "companion_llm_cost_dollars_total",
			Help: "Accumulated backend spend in dollars.",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.queriesTotal, p.agentTasksTotal, p.backendCalls,
			p.backendLatency, p.cacheHitsTotal, p.cacheMissTotal, p.costTotal)
	}
	return p
}

// NewTelemetry creates a new telemetry instance. The registerer may be nil
// when prometheus export is not wanted, for example in tests.
func NewTelemetry(config config.TelemetryConfig, reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		config: config,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			AgentExecutions:       make(map[string]int64),
			AgentSuccessRates:     make(map[string]float64),
			AgentAverageTimes:     make(map[string]time.Duration),
			BackendRequests:       make(map[string]int64),
			BackendTokensUsed:     make(map[string]int64),
			BackendAverageLatency: make(map[string]time.Duration),
		},
		costTracker: &CostTracker{
			TaskCosts:    make(map[string]float64),
			BackendCosts: make(map[string]float64),
		},
		prom: newPromCollectors(reg),
	}

	if config.Enabled && config.PeriodicLogs {
		go t.startMetricsCollection()
	}

	return t
}

// RecordQueryEvent records a complete coordinated query.
func (t *Telemetry) RecordQueryEvent(ctx context.Context, event QueryEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalQueries++
	outcome := "success"
	if event.Success {
		t.metrics.SuccessfulQueries++
	} else {
		t.metrics.FailedQueries++
		outcome = "failure"
	}
	t.prom.queriesTotal.WithLabelValues(outcome).Inc()

	if t.metrics.TotalQueries == 1 {
		t.metrics.AverageQueryTime = event.Duration
	} else {
		total := t.metrics.AverageQueryTime * time.Duration(t.metrics.TotalQueries-1)
		t.metrics.AverageQueryTime = (total + event.Duration) / time.Duration(t.metrics.TotalQueries)
	}

	if event.FromCache {
		t.metrics.CacheHits++
		t.prom.cacheHitsTotal.Inc()
	} else {
		t.metrics.CacheMisses++
		t.prom.cacheMissTotal.Inc()
	}

	for _, agent := range event.AgentsUsed {
		t.metrics.AgentExecutions[agent]++
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed
	t.prom.costTotal.Add(event.Cost)

	t.logger.Printf("Query Event: ID=%s, Success=%t, Duration=%v, Cache=%t, Cost=$%.4f",
		event.ID, event.Success, event.Duration, event.FromCache, event.Cost)
}

// RecordAgentEvent records an agent task execution.
func (t *Telemetry) RecordAgentEvent(ctx context.Context, event AgentEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.AgentExecutions[event.AgentType]++

	currentSuccess := t.metrics.AgentSuccessRates[event.AgentType] * float64(t.metrics.AgentExecutions[event.AgentType]-1)
	if event.Success {
		currentSuccess += 1.0
	}
	currentExecutions := t.metrics.AgentExecutions[event.AgentType]
	t.metrics.AgentSuccessRates[event.AgentType] = currentSuccess / float64(currentExecutions)

	currentAvg := t.metrics.AgentAverageTimes[event.AgentType]
	if currentExecutions == 1 {
		t.metrics.AgentAverageTimes[event.AgentType] = event.Duration
	} else {
		total := currentAvg * time.Duration(currentExecutions-1)
		t.metrics.AgentAverageTimes[event.AgentType] = (total + event.Duration) / time.Duration(currentExecutions)
	}

	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	t.prom.agentTasksTotal.WithLabelValues(event.AgentType, outcome).Inc()

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed
	t.costTracker.TaskCosts[event.TaskType] += event.Cost
	if event.ModelUsed != "" {
		t.costTracker.BackendCosts[event.ModelUsed] += event.Cost
	}
	t.prom.costTotal.Add(event.Cost)

	t.logger.Printf("Agent Event: Type=%s, Task=%s, Success=%t, Duration=%v, Confidence=%.2f",
		event.AgentType, event.TaskType, event.Success, event.Duration, event.Confidence)
}

// RecordBackendEvent records one backend call, fallback attempts included.
func (t *Telemetry) RecordBackendEvent(ctx context.Context, event BackendEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.BackendRequests[event.Backend]++
	t.metrics.BackendTokensUsed[event.Backend] += event.TokensIn + event.TokensOut

	requests := t.metrics.BackendRequests[event.Backend]
	currentAvg := t.metrics.BackendAverageLatency[event.Backend]
	if requests == 1 {
		t.metrics.BackendAverageLatency[event.Backend] = event.Duration
	} else {
		total := currentAvg * time.Duration(requests-1)
		t.metrics.BackendAverageLatency[event.Backend] = (total + event.Duration) / time.Duration(requests)
	}

	outcome := "success"
	switch {
	case event.TimedOut:
		outcome = "timeout"
	case !event.Success:
		outcome = "failure"
	}
	t.prom.backendCalls.WithLabelValues(event.Backend, outcome).Inc()
	t.prom.backendLatency.WithLabelValues(event.Backend).Observe(event.Duration.Seconds())

	if t.config.CostTracking {
		t.costTracker.BackendCosts[event.Backend] += event.Cost
	}
}

// GetMetrics returns current metrics snapshot
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := Metrics{
		TotalQueries:          t.metrics.TotalQueries,
		SuccessfulQueries:     t.metrics.SuccessfulQueries,
		FailedQueries:         t.metrics.FailedQueries,
		AverageQueryTime:      t.metrics.AverageQueryTime,
		CacheHits:             t.metrics.CacheHits,
		CacheMisses:           t.metrics.CacheMisses,
		AgentExecutions:       make(map[string]int64),
		AgentSuccessRates:     make(map[string]float64),
		AgentAverageTimes:     make(map[string]time.Duration),
		BackendRequests:       make(map[string]int64),
		BackendTokensUsed:     make(map[string]int64),
		BackendAverageLatency: make(map[string]time.Duration),
	}

	for k, v := range t.metrics.AgentExecutions {
		metrics.AgentExecutions[k] = v
	}
	for k, v := range t.metrics.AgentSuccessRates {
		metrics.AgentSuccessRates[k] = v
	}
	for k, v := range t.metrics.AgentAverageTimes {
		metrics.AgentAverageTimes[k] = v
	}
	for k, v := range t.metrics.BackendRequests {
		metrics.BackendRequests[k] = v
	}
	for k, v := range t.metrics.BackendTokensUsed {
		metrics.BackendTokensUsed[k] = v
	}
	for k, v := range t.metrics.BackendAverageLatency {
		metrics.BackendAverageLatency[k] = v
	}

	return metrics
}

// GetCostSummary returns current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:    t.costTracker.TotalCost,
		TotalTokens:  t.costTracker.TotalTokens,
		TaskCosts:    make(map[string]float64),
		BackendCosts: make(map[string]float64),
	}

	for k, v := range t.costTracker.TaskCosts {
		summary.TaskCosts[k] = v
	}
	for k, v := range t.costTracker.BackendCosts {
		summary.BackendCosts[k] = v
	}

	return summary
}

// CostSummary provides a summary of costs
type CostSummary struct {
	TotalCost    float64
	TotalTokens  int64
	TaskCosts    map[string]float64
	BackendCosts map[string]float64
}

// CalculateCost calculates the dollar cost for a backend call.
func CalculateCost(inputTokens, outputTokens int64, costPer1KInput, costPer1KOutput float64) float64 {
	inputCost := float64(inputTokens) / 1000.0 * costPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * costPer1KOutput
	return inputCost + outputCost
}

// startMetricsCollection starts periodic metrics logging.
func (t *Telemetry) startMetricsCollection() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		costs := t.GetCostSummary()

		t.logger.Printf("Metrics Snapshot: Queries=%d/%d, AvgTime=%v, CacheHits=%d, TotalCost=$%.4f",
			metrics.SuccessfulQueries, metrics.TotalQueries,
			metrics.AverageQueryTime, metrics.CacheHits, costs.TotalCost)
	}
}

// Shutdown logs a final report.
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	t.logger.Printf("Final Report:")
	t.logger.Printf("  Total Queries: %d", metrics.TotalQueries)
	if metrics.TotalQueries > 0 {
		t.logger.Printf("  Success Rate: %.2f%%", float64(metrics.SuccessfulQueries)/float64(metrics.TotalQueries)*100)
	}
	t.logger.Printf("  Average Query Time: %v", metrics.AverageQueryTime)
	t.logger.Printf("  Total Cost: $%.4f", costs.TotalCost)
	t.logger.Printf("  Total Tokens: %d", costs.TotalTokens)
}

// GetPerformanceReport returns a human-readable performance report.
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	report := fmt.Sprintf(`
=== PERFORMANCE REPORT ===
Overall Metrics:
  Total Queries: %d
  Successful: %d
  Failed: %d
  Average Query Time: %v
  Cache Hits/Misses: %d/%d
  Total Cost: $%.4f
  Total Tokens: %d

Agent Performance:
`, metrics.TotalQueries, metrics.SuccessfulQueries, metrics.FailedQueries,
		metrics.AverageQueryTime, metrics.CacheHits, metrics.CacheMisses,
		costs.TotalCost, costs.TotalTokens)

	for agent, executions := range metrics.AgentExecutions {
		successRate := metrics.AgentSuccessRates[agent]
		avgTime := metrics.AgentAverageTimes[agent]
		report += fmt.Sprintf("  %s: %d executions, %.2f%% success, %v avg time\n",
			agent, executions, successRate*100, avgTime)
	}

	report += "\nBackend Usage:\n"
	for backend, requests := range metrics.BackendRequests {
		tokens := metrics.BackendTokensUsed[backend]
		cost := costs.BackendCosts[backend]
		report += fmt.Sprintf("  %s: %d requests, %d tokens, $%.4f\n",
			backend, requests, tokens, cost)
	}

	return report
}

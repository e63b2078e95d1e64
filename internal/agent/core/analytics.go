package core

import (
	"sort"
	"time"
)

// Analytics is a point-in-time view of the orchestrator's activity.
type Analytics struct {
	TotalQueries    int64                      `json:"total_queries"`
	CacheHits       int64                      `json:"cache_hits"`
	CacheHitRate    float64                    `json:"cache_hit_rate"`
	CacheSize       int                        `json:"cache_size"`
	PendingAwaits   int                        `json:"pending_awaits"`
	AgentDispatches map[string]int64           `json:"agent_dispatches"`
	TopAgents       []AgentActivity            `json:"top_agents"`
	Runtimes        map[string]RuntimeSnapshot `json:"runtimes"`
}

// AgentActivity pairs an agent with its dispatch count for ranking.
type AgentActivity struct {
	Agent      string `json:"agent"`
	Dispatches int64  `json:"dispatches"`
}

// RuntimeSnapshot summarizes one agent runtime for the analytics view.
type RuntimeSnapshot struct {
	QueueLength    int           `json:"queue_length"`
	TasksProcessed int64         `json:"tasks_processed"`
	TasksFailed    int64         `json:"tasks_failed"`
	TasksRetried   int64         `json:"tasks_retried"`
	AverageLatency time.Duration `json:"average_latency"`
}

// GetAnalytics assembles the orchestrator-wide analytics snapshot.
// The cache hit rate is computed over total queries observed, so it is
// an approximation while traffic is in flight.
func (o *Orchestrator) GetAnalytics() Analytics {
	total := o.totalQueries.Load()
	hits := o.cacheHits.Load()

	a := Analytics{
		TotalQueries:    total,
		CacheHits:       hits,
		CacheSize:       o.cache.Size(),
		PendingAwaits:   o.futures.size(),
		AgentDispatches: make(map[string]int64),
		Runtimes:        make(map[string]RuntimeSnapshot),
	}
	if total > 0 {
		a.CacheHitRate = float64(hits) / float64(total)
	}

	o.statsMu.Lock()
	for name, n := range o.agentDispatches {
		a.AgentDispatches[name] = n
	}
	o.statsMu.Unlock()

	for name, n := range a.AgentDispatches {
		a.TopAgents = append(a.TopAgents, AgentActivity{Agent: name, Dispatches: n})
	}
	sort.Slice(a.TopAgents, func(i, j int) bool {
		if a.TopAgents[i].Dispatches != a.TopAgents[j].Dispatches {
			return a.TopAgents[i].Dispatches > a.TopAgents[j].Dispatches
		}
		return a.TopAgents[i].Agent < a.TopAgents[j].Agent
	})
	if max := o.cfg.Cache.TopAgents; max > 0 && len(a.TopAgents) > max {
		a.TopAgents = a.TopAgents[:max]
	}

	o.mu.RLock()
	for name, rt := range o.agents {
		m := rt.Metrics()
		a.Runtimes[name] = RuntimeSnapshot{
			QueueLength:    m.QueueLength,
			TasksProcessed: m.TasksProcessed,
			TasksFailed:    m.TasksFailed,
			TasksRetried:   m.TasksRetried,
			AverageLatency: m.AverageLatency,
		}
	}
	o.mu.RUnlock()

	return a
}

package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/saulini100/AI-Library--sub001/config"
)

// Registry holds the backend catalog, task routing profiles and the
// runtime stats that feed reliability-aware selection.
type Registry struct {
	mu            sync.RWMutex
	profiles      map[string]Profile
	order         []string
	stats         map[string]*RuntimeStats
	taskProfiles  map[string]config.TaskProfile
	defaultName   string
	fastFallbacks []string
}

// NewRegistry builds a registry from the configured catalog.
func NewRegistry(cfg config.BackendsConfig) (*Registry, error) {
	if len(cfg.Catalog) == 0 {
		return nil, fmt.Errorf("backend catalog is empty")
	}

	r := &Registry{
		profiles:      make(map[string]Profile, len(cfg.Catalog)),
		stats:         make(map[string]*RuntimeStats, len(cfg.Catalog)),
		taskProfiles:  cfg.TaskProfiles,
		defaultName:   cfg.Default,
		fastFallbacks: cfg.FastFallbacks,
	}
	for _, b := range cfg.Catalog {
		apiName := b.APIName
		if apiName == "" {
			apiName = b.Name
		}
		r.profiles[b.Name] = Profile{
			Name:    b.Name,
			APIName: apiName,
			Capabilities: CapabilityVector{
				Speed:      b.Speed,
				Accuracy:   b.Accuracy,
				Reasoning:  b.Reasoning,
				Creativity: b.Creativity,
			},
			BaseTimeout:     b.BaseTimeout,
			MaxTokens:       b.MaxTokens,
			Temperature:     b.Temperature,
			CostPer1KInput:  b.CostPer1KInput,
			CostPer1KOutput: b.CostPer1KOutput,
		}
		r.order = append(r.order, b.Name)
		r.stats[b.Name] = &RuntimeStats{}
	}

	if _, ok := r.profiles[r.defaultName]; !ok {
		return nil, fmt.Errorf("default backend %s not in catalog", r.defaultName)
	}
	return r, nil
}

// Profile returns the profile for a backend name.
func (r *Registry) Profile(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns all backend names in catalog order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Select picks the best backend for a task type.
//
// Each candidate is scored as the requirement-weighted sum of its
// capability ratings, plus a small speed bonus so faster models win
// close calls, plus a reliability bonus once runtime stats exist.
// A task type without a routing profile falls through to the default
// backend. Ties resolve in favor of the profile's preferred order.
func (r *Registry) Select(taskType string) string {
	return r.SelectWithRequirements(taskType, nil)
}

// SelectWithRequirements scores like Select but lets the caller replace
// individual requirement weights: overrides are merged over the task
// profile's defaults axis by axis. With no profile and no overrides the
// default backend is returned.
func (r *Registry) SelectWithRequirements(taskType string, overrides map[string]float64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tp := r.taskProfiles[taskType]
	requirements := make(map[string]float64, len(tp.Requirements)+len(overrides))
	for axis, weight := range tp.Requirements {
		requirements[axis] = weight
	}
	for axis, weight := range overrides {
		requirements[axis] = weight
	}
	if len(requirements) == 0 {
		return r.defaultName
	}

	candidates := tp.Preferred
	if len(candidates) == 0 {
		candidates = r.order
	}

	best := ""
	bestScore := -1.0
	for _, name := range candidates {
		p, ok := r.profiles[name]
		if !ok {
			continue
		}
		score := 0.0
		for axis, weight := range requirements {
			score += weight * p.Capabilities.Axis(axis)
		}
		score += 0.05 * p.Capabilities.Speed
		if st := r.stats[name]; st != nil && st.TotalRequests > 0 {
			score += 0.1 * st.SuccessRate
		}
		// Strict greater-than keeps the earlier preferred entry on ties.
		if score > bestScore {
			best = name
			bestScore = score
		}
	}
	if best == "" {
		return r.defaultName
	}
	return best
}

// Timeout computes the adaptive deadline for a backend on a task type:
// the backend's base timeout scaled by the task profile's multiplier.
func (r *Registry) Timeout(backend, taskType string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[backend]
	if !ok {
		return 30 * time.Second
	}
	multiplier := 1.0
	if tp, ok := r.taskProfiles[taskType]; ok && tp.TimeoutMultiplier > 0 {
		multiplier = tp.TimeoutMultiplier
	}
	return time.Duration(float64(p.BaseTimeout) * multiplier)
}

// FastFallbacks returns the ordered fallback list for timed-out calls.
func (r *Registry) FastFallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.fastFallbacks))
	copy(out, r.fastFallbacks)
	return out
}

// RecordOutcome folds one call outcome into the backend's running stats.
// Success rate is an incremental mean over all observed requests.
func (r *Registry) RecordOutcome(backend string, success bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stats[backend]
	if !ok {
		return
	}
	st.TotalRequests++
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	n := float64(st.TotalRequests)
	st.SuccessRate = (st.SuccessRate*(n-1) + outcome) / n

	if st.TotalRequests == 1 {
		st.AverageLatency = latency
	} else {
		total := st.AverageLatency * time.Duration(st.TotalRequests-1)
		st.AverageLatency = (total + latency) / time.Duration(st.TotalRequests)
	}
}

// Stats returns a snapshot of a backend's runtime stats.
func (r *Registry) Stats(backend string) RuntimeStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.stats[backend]; ok {
		return *st
	}
	return RuntimeStats{}
}

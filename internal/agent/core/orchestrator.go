package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/saulini100/AI-Library--sub001/config"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
	"github.com/saulini100/AI-Library--sub001/internal/agent/telemetry"
)

// Orchestrator coordinates the companion's agents: it dispatches tasks,
// correlates awaited results, caches coordinated answers and fans
// high-confidence results out to related agents.
type Orchestrator struct {
	cfg       *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry
	answerer  Answerer
	patterns  StudyPatternSource
	cache     *ResponseCache
	bus       *Bus
	futures   *futureRegistry
	tracer    trace.Tracer

	mu      sync.RWMutex
	agents  map[string]*runtime.Runtime
	started bool
	stopped bool

	forwarders sync.WaitGroup

	totalQueries atomic.Int64
	cacheHits    atomic.Int64

	statsMu         sync.Mutex
	agentDispatches map[string]int64
}

// NewOrchestrator creates an orchestrator. The answerer resolves user
// queries and the pattern source enriches them; both may be nil in
// reduced setups, in which case CoordinateQuery degrades gracefully.
func NewOrchestrator(cfg *config.Config, answerer Answerer, patterns StudyPatternSource, tel *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		cfg:             cfg,
		logger:          log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		telemetry:       tel,
		answerer:        answerer,
		patterns:        patterns,
		cache:           NewResponseCache(cfg.Cache.TTL),
		bus:             NewBus(64),
		futures:         newFutureRegistry(),
		tracer:          otel.Tracer("companion-orchestrator"),
		agents:          make(map[string]*runtime.Runtime),
		agentDispatches: make(map[string]int64),
	}
}

// Bus exposes the orchestrator event bus for subscribers.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// RegisterAgent adds an agent runtime under its agent's name. When the
// orchestrator is already running the runtime is started immediately.
func (o *Orchestrator) RegisterAgent(ctx context.Context, rt *runtime.Runtime) error {
	name := rt.Agent().Name()

	o.mu.Lock()
	if _, exists := o.agents[name]; exists {
		o.mu.Unlock()
		return fmt.Errorf("agent %s already registered", name)
	}
	o.agents[name] = rt
	started := o.started
	o.mu.Unlock()

	if started {
		if err := rt.Start(ctx); err != nil {
			return err
		}
		o.forwarders.Add(1)
		go o.forward(rt)
	}

	o.logger.Printf("registered agent %s (specialties=%v)", name, rt.Agent().Specialties())
	return nil
}

// AgentNames returns the registered agent names.
func (o *Orchestrator) AgentNames() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.agents))
	for name := range o.agents {
		names = append(names, name)
	}
	return names
}

// Start brings up all registered agent runtimes and their event
// forwarders. Starting twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	agents := make([]*runtime.Runtime, 0, len(o.agents))
	for _, rt := range o.agents {
		agents = append(agents, rt)
	}
	o.mu.Unlock()

	for _, rt := range agents {
		if err := rt.Start(ctx); err != nil {
			return fmt.Errorf("start agent %s: %w", rt.Agent().Name(), err)
		}
		o.forwarders.Add(1)
		go o.forward(rt)
	}

	o.logger.Printf("started with %d agents", len(agents))
	return nil
}

// Stop halts all runtimes, drains the forwarders and closes the bus.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	agents := make([]*runtime.Runtime, 0, len(o.agents))
	for _, rt := range o.agents {
		agents = append(agents, rt)
	}
	o.mu.Unlock()

	var firstErr error
	for _, rt := range agents {
		if err := rt.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.forwarders.Wait()
	o.bus.Close()
	o.logger.Printf("stopped")
	return firstErr
}

// Dispatch submits a task to the named agent fire-and-forget. The task
// ID is generated when absent and returned to the caller.
func (o *Orchestrator) Dispatch(ctx context.Context, agentName string, task *runtime.Task) (string, error) {
	_, span := o.tracer.Start(ctx, "orchestrator.dispatch",
		trace.WithAttributes(
			attribute.String("agent", agentName),
			attribute.String("task.type", task.Type),
		))
	defer span.End()

	o.mu.RLock()
	rt, ok := o.agents[agentName]
	o.mu.RUnlock()
	if !ok {
		span.SetStatus(codes.Error, "agent not found")
		return "", fmt.Errorf("%w: %s", ErrAgentNotFound, agentName)
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if err := rt.Submit(task); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return "", fmt.Errorf("dispatch to %s: %w", agentName, err)
	}

	o.statsMu.Lock()
	o.agentDispatches[agentName]++
	o.statsMu.Unlock()

	o.bus.Publish(Event{
		Type: "task_dispatched", Agent: agentName, TaskID: task.ID,
		Payload: map[string]interface{}{"task_type": task.Type, "priority": task.Priority},
	})
	return task.ID, nil
}

// DispatchAndAwait submits a task and blocks until its terminal
// outcome, the context is done, or the timeout elapses. The future is
// registered before submission so a fast completion cannot be missed.
func (o *Orchestrator) DispatchAndAwait(ctx context.Context, agentName string, task *runtime.Task, timeout time.Duration) (*runtime.TaskResult, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if timeout <= 0 {
		timeout = o.cfg.General.DefaultTimeout
	}

	future := o.futures.register(task.ID)
	if _, err := o.Dispatch(ctx, agentName, task); err != nil {
		o.futures.cancel(task.ID)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-future:
		if out.Err != nil {
			return nil, out.Err
		}
		return out.Result, nil
	case <-ctx.Done():
		o.futures.cancel(task.ID)
		return nil, ctx.Err()
	case <-timer.C:
		o.futures.cancel(task.ID)
		return nil, fmt.Errorf("await task %s on %s: timed out after %v", task.ID, agentName, timeout)
	}
}

// forward consumes one runtime's event stream until it closes,
// resolving futures, feeding telemetry and rebroadcasting on the bus.
func (o *Orchestrator) forward(rt *runtime.Runtime) {
	defer o.forwarders.Done()

	for ev := range rt.Events() {
		switch ev.Type {
		case runtime.EventTaskCompleted:
			o.futures.resolve(ev.TaskID, taskOutcome{Result: ev.Result})
			if o.telemetry != nil && ev.Result != nil {
				o.telemetry.RecordAgentEvent(context.Background(), telemetry.AgentEvent{
					ID:         ev.TaskID,
					AgentType:  ev.Agent,
					TaskType:   ev.TaskType,
					Duration:   ev.Result.Duration,
					Success:    true,
					Cost:       ev.Result.Cost,
					TokensUsed: ev.Result.TokensUsed,
					ModelUsed:  ev.Result.ModelUsed,
					Confidence: ev.Result.Confidence,
				})
			}
			o.bus.Publish(Event{
				Type: "task_completed", Agent: ev.Agent, TaskID: ev.TaskID,
				Payload: map[string]interface{}{"task_type": ev.TaskType, "confidence": ev.Result.Confidence},
			})
			if ev.Result != nil && ev.Result.Confidence > o.cfg.Cache.ConfidenceThreshold {
				o.fanOut(ev.Agent, ev.Result)
			}
		case runtime.EventTaskFailed:
			o.futures.resolve(ev.TaskID, taskOutcome{Err: ev.Err})
			if o.telemetry != nil {
				o.telemetry.RecordAgentEvent(context.Background(), telemetry.AgentEvent{
					ID: ev.TaskID, AgentType: ev.Agent, TaskType: ev.TaskType,
					Success: false, Error: fmt.Sprint(ev.Err),
				})
			}
			o.bus.Publish(Event{
				Type: "task_failed", Agent: ev.Agent, TaskID: ev.TaskID,
				Payload: map[string]interface{}{"task_type": ev.TaskType, "error": fmt.Sprint(ev.Err)},
			})
		case runtime.EventTaskRetried:
			o.bus.Publish(Event{
				Type: "task_retried", Agent: ev.Agent, TaskID: ev.TaskID,
				Payload: map[string]interface{}{"task_type": ev.TaskType},
			})
		}
	}
}

// fanOut delivers a high-confidence result to the producing agent's
// related agents. Delivery is best-effort; a failing receiver never
// affects the original task.
func (o *Orchestrator) fanOut(producer string, result *runtime.TaskResult) {
	def, ok := o.cfg.Agents.Definitions[producer]
	if !ok {
		return
	}

	for _, name := range def.Related {
		o.mu.RLock()
		rt, ok := o.agents[name]
		o.mu.RUnlock()
		if !ok {
			continue
		}
		receiver, ok := rt.Agent().(runtime.InsightReceiver)
		if !ok {
			continue
		}
		go func(name string, receiver runtime.InsightReceiver) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := receiver.ReceiveInsight(ctx, producer, result); err != nil {
				o.logger.Printf("insight fan-out %s -> %s failed: %v", producer, name, err)
			}
		}(name, receiver)
	}
}

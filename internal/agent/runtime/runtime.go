package runtime

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saulini100/AI-Library--sub001/config"
)

const latencyWindow = 100

// Runtime hosts one agent: a priority task queue drained on a tick,
// one task in flight at a time, bounded retry on failure.
type Runtime struct {
	agent  Agent
	cfg    config.AgentConfig
	logger *log.Logger

	mu      sync.Mutex
	queue   []*Task
	started bool
	stopped bool

	isProcessing atomic.Bool
	stopCh       chan struct{}
	loopDone     sync.WaitGroup

	events chan Event

	processed       atomic.Int64
	failed          atomic.Int64
	retried         atomic.Int64
	lateCompletions atomic.Int64

	latMu     sync.Mutex
	latencies []time.Duration
}

// RuntimeMetrics is a point-in-time snapshot of a runtime's counters.
type RuntimeMetrics struct {
	Agent           string        `json:"agent"`
	QueueLength     int           `json:"queue_length"`
	IsProcessing    bool          `json:"is_processing"`
	TasksProcessed  int64         `json:"tasks_processed"`
	TasksFailed     int64         `json:"tasks_failed"`
	TasksRetried    int64         `json:"tasks_retried"`
	LateCompletions int64         `json:"late_completions"`
	AverageLatency  time.Duration `json:"average_latency"`
}

// NewRuntime wraps an agent in a runtime with the given settings.
func NewRuntime(agent Agent, cfg config.AgentConfig) *Runtime {
	return &Runtime{
		agent:  agent,
		cfg:    cfg,
		logger: log.New(log.Writer(), fmt.Sprintf("[AGENT:%s] ", agent.Name()), log.LstdFlags),
		events: make(chan Event, 128),
		stopCh: make(chan struct{}),
	}
}

// Agent returns the hosted agent.
func (r *Runtime) Agent() Agent { return r.agent }

// Events returns the runtime's event stream. The channel is closed
// after Stop completes.
func (r *Runtime) Events() <-chan Event { return r.events }

// Start initializes the agent and begins draining the queue on the
// configured tick interval. Starting twice is a no-op.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	if r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("runtime for agent %s already stopped", r.agent.Name())
	}
	r.started = true
	r.mu.Unlock()

	if err := r.agent.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize agent %s: %w", r.agent.Name(), err)
	}

	r.loopDone.Add(1)
	go r.run()

	r.logger.Printf("started (interval=%v, max_retries=%d)", r.cfg.Interval, r.cfg.MaxRetries)
	return nil
}

// Stop halts the drain loop, waits for any in-flight task, cleans up
// the agent and closes the event stream. Stopping twice is a no-op.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	wasStarted := r.started
	r.mu.Unlock()

	if wasStarted {
		close(r.stopCh)
		r.loopDone.Wait()
	}

	// The loop exits between tasks, but a timed-out handler may still
	// be winding down. Give it a moment before cleanup.
	deadline := time.Now().Add(2 * time.Second)
	for r.isProcessing.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	err := r.agent.Cleanup(ctx)
	close(r.events)
	r.logger.Printf("stopped")
	if err != nil {
		return fmt.Errorf("cleanup agent %s: %w", r.agent.Name(), err)
	}
	return nil
}

// Submit enqueues a task. The queue is kept sorted by descending
// priority with submission order preserved within a priority.
func (r *Runtime) Submit(task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return fmt.Errorf("runtime for agent %s is stopped", r.agent.Name())
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	r.queue = append(r.queue, task)
	sort.SliceStable(r.queue, func(i, j int) bool {
		return r.queue[i].Priority > r.queue[j].Priority
	})
	return nil
}

// QueueLength reports the number of pending tasks.
func (r *Runtime) QueueLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Metrics returns a snapshot of the runtime's counters.
func (r *Runtime) Metrics() RuntimeMetrics {
	r.latMu.Lock()
	var avg time.Duration
	if n := len(r.latencies); n > 0 {
		var total time.Duration
		for _, l := range r.latencies {
			total += l
		}
		avg = total / time.Duration(n)
	}
	r.latMu.Unlock()

	return RuntimeMetrics{
		Agent:           r.agent.Name(),
		QueueLength:     r.QueueLength(),
		IsProcessing:    r.isProcessing.Load(),
		TasksProcessed:  r.processed.Load(),
		TasksFailed:     r.failed.Load(),
		TasksRetried:    r.retried.Load(),
		LateCompletions: r.lateCompletions.Load(),
		AverageLatency:  avg,
	}
}

func (r *Runtime) run() {
	defer r.loopDone.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.drain()
		}
	}
}

// drain processes queued tasks one at a time until the queue is empty
// or stop is requested.
func (r *Runtime) drain() {
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		task := r.pop()
		if task == nil {
			return
		}
		r.process(task)
	}
}

func (r *Runtime) pop() *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil
	}
	task := r.queue[0]
	r.queue = r.queue[1:]
	return task
}

// requeueFront puts a retried task at the head of the queue so it runs
// before anything else waiting.
func (r *Runtime) requeueFront(task *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.queue = append([]*Task{task}, r.queue...)
}

func (r *Runtime) process(task *Task) {
	r.isProcessing.Store(true)
	defer r.isProcessing.Store(false)

	result, err := r.execute(task)
	if err == nil {
		r.processed.Add(1)
		r.recordLatency(result.Duration)
		r.emit(Event{
			Type: EventTaskCompleted, Agent: r.agent.Name(),
			TaskID: task.ID, TaskType: task.Type,
			Result: result, Timestamp: time.Now(),
		})
		return
	}

	task.RetryCount++
	if task.RetryCount <= r.cfg.MaxRetries {
		r.retried.Add(1)
		r.logger.Printf("task %s failed (attempt %d/%d), requeueing: %v",
			task.ID, task.RetryCount, r.cfg.MaxRetries+1, err)
		r.requeueFront(task)
		r.emit(Event{
			Type: EventTaskRetried, Agent: r.agent.Name(),
			TaskID: task.ID, TaskType: task.Type,
			Err: err, Timestamp: time.Now(),
		})
		return
	}

	r.failed.Add(1)
	r.logger.Printf("task %s failed permanently after %d attempts: %v",
		task.ID, task.RetryCount, err)
	r.emit(Event{
		Type: EventTaskFailed, Agent: r.agent.Name(),
		TaskID: task.ID, TaskType: task.Type,
		Err: err, Timestamp: time.Now(),
	})
}

// execute races the agent handler against the per-task deadline.
func (r *Runtime) execute(task *Task) (*TaskResult, error) {
	timeout := r.cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type outcome struct {
		result *TaskResult
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		res, err := r.agent.HandleTask(ctx, task)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		res := out.result
		if res == nil {
			res = &TaskResult{Data: map[string]interface{}{}}
		}
		res.TaskID = task.ID
		res.AgentName = r.agent.Name()
		res.Duration = time.Since(start)
		res.CompletedAt = time.Now()
		return res, nil
	case <-ctx.Done():
		// The task was already retried or failed; completions that
		// land after the deadline still count in metrics.
		go func() {
			if out := <-done; out.err == nil {
				r.lateCompletions.Add(1)
			}
		}()
		return nil, &TaskTimeoutError{TaskID: task.ID, Agent: r.agent.Name(), Timeout: timeout}
	}
}

func (r *Runtime) recordLatency(d time.Duration) {
	r.latMu.Lock()
	defer r.latMu.Unlock()
	r.latencies = append(r.latencies, d)
	if len(r.latencies) > latencyWindow {
		r.latencies = r.latencies[len(r.latencies)-latencyWindow:]
	}
}

func (r *Runtime) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.logger.Printf("event buffer full, dropping %s for task %s", ev.Type, ev.TaskID)
	}
}

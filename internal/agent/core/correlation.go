package core

import (
	"sync"

	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
)

// taskOutcome is the terminal state of an awaited task.
type taskOutcome struct {
	Result *runtime.TaskResult
	Err    error
}

// futureRegistry correlates submitted task IDs with their eventual
// outcomes. An entry is removed under the lock before its channel is
// signaled, so every future resolves at most once even when a completion
// and a failure race.
type futureRegistry struct {
	mu      sync.Mutex
	pending map[string]chan taskOutcome
}

func newFutureRegistry() *futureRegistry {
	return &futureRegistry{pending: make(map[string]chan taskOutcome)}
}

// register creates a future for a task ID. Must be called before the
// task is submitted so the outcome cannot arrive first.
func (f *futureRegistry) register(taskID string) <-chan taskOutcome {
	ch := make(chan taskOutcome, 1)
	f.mu.Lock()
	f.pending[taskID] = ch
	f.mu.Unlock()
	return ch
}

// resolve delivers the outcome for a task ID. Returns false when no
// future is waiting, for tasks dispatched fire-and-forget or already
// resolved.
func (f *futureRegistry) resolve(taskID string, out taskOutcome) bool {
	f.mu.Lock()
	ch, ok := f.pending[taskID]
	if ok {
		delete(f.pending, taskID)
	}
	f.mu.Unlock()
	if !ok {
		return false
	}
	ch <- out
	return true
}

// cancel drops a future whose caller gave up waiting.
func (f *futureRegistry) cancel(taskID string) {
	f.mu.Lock()
	delete(f.pending, taskID)
	f.mu.Unlock()
}

func (f *futureRegistry) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

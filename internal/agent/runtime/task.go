package runtime

import (
	"fmt"
	"time"
)

// Task is one unit of agent work. Higher Priority runs first; tasks at
// equal priority keep submission order.
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Priority   int                    `json:"priority"`
	Payload    map[string]interface{} `json:"payload"`
	CreatedAt  time.Time              `json:"created_at"`
	RetryCount int                    `json:"retry_count"`
}

// TaskResult is what an agent produced for one task.
type TaskResult struct {
	TaskID      string                 `json:"task_id"`
	AgentName   string                 `json:"agent_name"`
	Data        map[string]interface{} `json:"data"`
	Confidence  float64                `json:"confidence"`
	Cost        float64                `json:"cost"`
	TokensUsed  int64                  `json:"tokens_used"`
	ModelUsed   string                 `json:"model_used"`
	Duration    time.Duration          `json:"duration"`
	CompletedAt time.Time              `json:"completed_at"`
}

// TaskTimeoutError reports that a task exceeded the agent's per-task
// deadline. Timeouts count as failures for retry purposes.
type TaskTimeoutError struct {
	TaskID  string
	Agent   string
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %v on agent %s", e.TaskID, e.Timeout, e.Agent)
}

// EventType classifies runtime events.
type EventType string

const (
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskRetried   EventType = "task_retried"
)

// Event is emitted by a runtime as tasks move through their lifecycle.
// Failed events carry Err; completed events carry Result.
type Event struct {
	Type      EventType   `json:"type"`
	Agent     string      `json:"agent"`
	TaskID    string      `json:"task_id"`
	TaskType  string      `json:"task_type"`
	Result    *TaskResult `json:"result,omitempty"`
	Err       error       `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
}

package backend

import (
	"fmt"
	"time"
)

// CapabilityVector rates a backend on a 0-10 scale per axis.
type CapabilityVector struct {
	Speed      float64
	Accuracy   float64
	Reasoning  float64
	Creativity float64
}

// Axis returns the rating for a named capability axis.
func (c CapabilityVector) Axis(name string) float64 {
	switch name {
	case "speed":
		return c.Speed
	case "accuracy":
		return c.Accuracy
	case "reasoning":
		return c.Reasoning
	case "creativity":
		return c.Creativity
	default:
		return 0
	}
}

// Profile describes one interchangeable text-generation backend.
type Profile struct {
	Name            string
	APIName         string
	Capabilities    CapabilityVector
	BaseTimeout     time.Duration
	MaxTokens       int
	Temperature     float64
	CostPer1KInput  float64
	CostPer1KOutput float64
}

// RuntimeStats tracks per-backend outcomes observed since startup.
type RuntimeStats struct {
	TotalRequests  int64
	SuccessRate    float64
	AverageLatency time.Duration
}

// Result is the outcome of one executed generation, fallback included.
type Result struct {
	Text         string
	Backend      string
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Duration     time.Duration
	UsedFallback bool
}

// TimeoutError reports that a backend exceeded its adaptive deadline.
type TimeoutError struct {
	Backend  string
	TaskType string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend %s timed out after %v on task type %s", e.Backend, e.Timeout, e.TaskType)
}

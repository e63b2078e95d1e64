package agents

import (
	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
	"github.com/saulini100/AI-Library--sub001/internal/rag"
)

// NewAll creates every companion agent keyed by name.
func NewAll(exec *backend.Executor, index *rag.Index) map[string]runtime.Agent {
	return map[string]runtime.Agent{
		"text-analysis": NewTextAnalysisAgent(exec),
		"insights":      NewInsightsAgent(exec),
		"quiz":          NewQuizAgent(exec),
		"discussion":    NewDiscussionAgent(exec),
		"navigation":    NewNavigationAgent(index),
	}
}

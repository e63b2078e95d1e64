package agents

import (
	"context"
	"fmt"

	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
	"github.com/saulini100/AI-Library--sub001/internal/rag"
)

// NavigationAgent answers "where does the text say..." lookups straight
// from the passage index. No model call, so it stays fast and cheap.
type NavigationAgent struct {
	baseAgent
	index *rag.Index
}

// NewNavigationAgent creates a navigation agent over the passage index.
func NewNavigationAgent(index *rag.Index) *NavigationAgent {
	return &NavigationAgent{
		baseAgent: newBaseAgent("navigation", []string{"navigation", "lookup"}, nil),
		index:     index,
	}
}

func (a *NavigationAgent) HandleTask(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
	query := payloadString(task, "query")
	if query == "" {
		return nil, fmt.Errorf("navigation task %s has no query payload", task.ID)
	}

	var documentID int64
	switch v := task.Payload["document_id"].(type) {
	case int64:
		documentID = v
	case int:
		documentID = int64(v)
	case float64:
		documentID = int64(v)
	}

	hits, err := a.index.Search(query, documentID, 5)
	if err != nil {
		return nil, fmt.Errorf("navigation lookup: %w", err)
	}

	locations := make([]map[string]interface{}, 0, len(hits))
	for _, h := range hits {
		locations = append(locations, map[string]interface{}{
			"document_id": h.Passage.DocumentID,
			"chapter":     h.Passage.Chapter,
			"paragraph":   h.Passage.Paragraph,
			"excerpt":     h.Passage.Text,
			"score":       h.Score,
		})
	}

	confidence := 0.3
	if len(hits) > 0 {
		// Lookup confidence scales with result count, capped well below
		// the fan-out threshold: navigation results are locations, not
		// insights.
		confidence = 0.5 + 0.05*float64(len(hits))
	}

	return &runtime.TaskResult{
		Data: map[string]interface{}{
			"locations": locations,
			"matches":   len(locations),
		},
		Confidence: confidence,
	}, nil
}

package agents

import (
	"context"
	"fmt"

	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
)

// TextAnalysisAgent extracts themes, structure and summaries from
// chapter text.
type TextAnalysisAgent struct {
	baseAgent
}

// NewTextAnalysisAgent creates a text analysis agent.
func NewTextAnalysisAgent(exec *backend.Executor) *TextAnalysisAgent {
	return &TextAnalysisAgent{
		baseAgent: newBaseAgent("text-analysis", []string{"themes", "structure", "summarization"}, exec),
	}
}

// HandleTask analyzes the chapter text carried in the task payload.
// Summarization tasks route to the cheaper summarization profile.
func (a *TextAnalysisAgent) HandleTask(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
	text := payloadString(task, "text")
	if text == "" {
		return nil, fmt.Errorf("text-analysis task %s has no text payload", task.ID)
	}

	taskType := "text-analysis"
	if task.Type == "summarization" {
		taskType = "summarization"
	}

	prompt := fmt.Sprintf(`%sYou are a careful reading companion analyzing a chapter for a student.
CHAPTER TEXT:
%s

Respond ONLY as strict JSON:
{"summary": string, "themes": [string], "key_points": [string], "structure": string, "confidence": number 0..1}
`, a.languageHint(), text)

	res, err := a.exec.Execute(ctx, taskType, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("text analysis: %w", err)
	}

	var parsed struct {
		Summary    string   `json:"summary"`
		Themes     []string `json:"themes"`
		KeyPoints  []string `json:"key_points"`
		Structure  string   `json:"structure"`
		Confidence float64  `json:"confidence"`
	}
	if err := parseJSON(res.Text, &parsed); err != nil {
		parsed.Summary = res.Text
		parsed.Confidence = 0.5
	}

	return &runtime.TaskResult{
		Data: map[string]interface{}{
			"summary":    parsed.Summary,
			"themes":     parsed.Themes,
			"key_points": parsed.KeyPoints,
			"structure":  parsed.Structure,
		},
		Confidence: parsed.Confidence,
		Cost:       res.Cost,
		TokensUsed: res.InputTokens + res.OutputTokens,
		ModelUsed:  res.Backend,
	}, nil
}

package agents

import (
	"context"
	"fmt"

	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
)

// QuizAgent produces comprehension questions over chapter text.
type QuizAgent struct {
	baseAgent
}

// NewQuizAgent creates a quiz agent.
func NewQuizAgent(exec *backend.Executor) *QuizAgent {
	return &QuizAgent{
		baseAgent: newBaseAgent("quiz", []string{"quiz", "comprehension"}, exec),
	}
}

func (a *QuizAgent) HandleTask(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
	text := payloadString(task, "text")
	if text == "" {
		return nil, fmt.Errorf("quiz task %s has no text payload", task.ID)
	}

	count := 5
	if n, ok := task.Payload["count"].(int); ok && n > 0 {
		count = n
	} else if n, ok := task.Payload["count"].(float64); ok && n > 0 {
		count = int(n)
	}

	prompt := fmt.Sprintf(`%sCreate %d comprehension questions about the following chapter text.
Mix multiple-choice and open questions, from recall to interpretation.
CHAPTER TEXT:
%s

Respond ONLY as strict JSON:
{"questions": [ {"question": string, "type": "multiple_choice"|"open", "options": [string], "answer": string, "difficulty": "easy"|"medium"|"hard"} ], "confidence": number 0..1}
`, a.languageHint(), count, text)

	res, err := a.exec.Execute(ctx, "quiz-generation", prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("quiz generation: %w", err)
	}

	var parsed struct {
		Questions []struct {
			Question   string   `json:"question"`
			Type       string   `json:"type"`
			Options    []string `json:"options"`
			Answer     string   `json:"answer"`
			Difficulty string   `json:"difficulty"`
		} `json:"questions"`
		Confidence float64 `json:"confidence"`
	}
	if err := parseJSON(res.Text, &parsed); err != nil {
		return nil, fmt.Errorf("quiz generation: unparseable reply: %w", err)
	}
	if len(parsed.Questions) == 0 {
		return nil, fmt.Errorf("quiz generation: model returned no questions")
	}

	questions := make([]map[string]interface{}, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		questions = append(questions, map[string]interface{}{
			"question":   q.Question,
			"type":       q.Type,
			"options":    q.Options,
			"answer":     q.Answer,
			"difficulty": q.Difficulty,
		})
	}

	return &runtime.TaskResult{
		Data: map[string]interface{}{
			"questions":      questions,
			"question_count": len(questions),
		},
		Confidence: parsed.Confidence,
		Cost:       res.Cost,
		TokensUsed: res.InputTokens + res.OutputTokens,
		ModelUsed:  res.Backend,
	}, nil
}

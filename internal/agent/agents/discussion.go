package agents

import (
	"context"
	"fmt"

	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
)

// DiscussionAgent holds an open-ended conversation about the text,
// keeping short context from absorbed peer insights.
type DiscussionAgent struct {
	baseAgent
}

// NewDiscussionAgent creates a discussion agent.
func NewDiscussionAgent(exec *backend.Executor) *DiscussionAgent {
	return &DiscussionAgent{
		baseAgent: newBaseAgent("discussion", []string{"discussion", "questions"}, exec),
	}
}

func (a *DiscussionAgent) HandleTask(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
	message := payloadString(task, "message")
	if message == "" {
		message = payloadString(task, "query")
	}
	if message == "" {
		return nil, fmt.Errorf("discussion task %s has no message payload", task.ID)
	}

	contextText := payloadString(task, "text")
	contextSection := ""
	if contextText != "" {
		contextSection = "PASSAGE UNDER DISCUSSION:\n" + contextText + "\n\n"
	}
	peerNotes := a.recentInsights(3)
	if peerNotes != "" {
		contextSection += "BACKGROUND NOTES:\n" + peerNotes + "\n"
	}

	prompt := fmt.Sprintf(`%sYou are a thoughtful discussion partner for a reader. Engage with their message, challenge gently, and keep the conversation moving.
%sREADER: %s

Respond ONLY as strict JSON:
{"reply": string, "follow_up_questions": [string], "confidence": number 0..1}
`, a.languageHint(), contextSection, message)

	res, err := a.exec.Execute(ctx, "discussion", prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("discussion: %w", err)
	}

	var parsed struct {
		Reply             string   `json:"reply"`
		FollowUpQuestions []string `json:"follow_up_questions"`
		Confidence        float64  `json:"confidence"`
	}
	if err := parseJSON(res.Text, &parsed); err != nil {
		parsed.Reply = res.Text
		parsed.Confidence = 0.5
	}

	return &runtime.TaskResult{
		Data: map[string]interface{}{
			"reply":               parsed.Reply,
			"follow_up_questions": parsed.FollowUpQuestions,
		},
		Confidence: parsed.Confidence,
		Cost:       res.Cost,
		TokensUsed: res.InputTokens + res.OutputTokens,
		ModelUsed:  res.Backend,
	}, nil
}

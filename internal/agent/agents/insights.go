package agents

import (
	"context"
	"fmt"

	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
)

// InsightsAgent generates cross-chapter insights and the periodic
// study digest, enriched by whatever it absorbed from peers.
type InsightsAgent struct {
	baseAgent
}

// NewInsightsAgent creates an insights agent.
func NewInsightsAgent(exec *backend.Executor) *InsightsAgent {
	return &InsightsAgent{
		baseAgent: newBaseAgent("insights", []string{"insights", "connections", "study-digest"}, exec),
	}
}

func (a *InsightsAgent) HandleTask(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
	switch task.Type {
	case "study-digest":
		return a.studyDigest(ctx, task)
	default:
		return a.generateInsights(ctx, task)
	}
}

func (a *InsightsAgent) generateInsights(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
	subject := payloadString(task, "text")
	if subject == "" {
		subject = payloadString(task, "query")
	}
	if subject == "" {
		return nil, fmt.Errorf("insight task %s has no text or query payload", task.ID)
	}

	peerNotes := a.recentInsights(5)
	notesSection := ""
	if peerNotes != "" {
		notesSection = "NOTES FROM OTHER AGENTS:\n" + peerNotes + "\n"
	}

	prompt := fmt.Sprintf(`%sYou are generating study insights for a reader.
SUBJECT:
%s

%sRespond ONLY as strict JSON:
{"insights": [ {"title": string, "body": string, "connection": string} ], "confidence": number 0..1}
`, a.languageHint(), subject, notesSection)

	res, err := a.exec.Execute(ctx, "insight-generation", prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("insight generation: %w", err)
	}

	var parsed struct {
		Insights []struct {
			Title      string `json:"title"`
			Body       string `json:"body"`
			Connection string `json:"connection"`
		} `json:"insights"`
		Confidence float64 `json:"confidence"`
	}
	if err := parseJSON(res.Text, &parsed); err != nil {
		return nil, fmt.Errorf("insight generation: unparseable reply: %w", err)
	}

	insights := make([]map[string]interface{}, 0, len(parsed.Insights))
	for _, in := range parsed.Insights {
		insights = append(insights, map[string]interface{}{
			"title": in.Title, "body": in.Body, "connection": in.Connection,
		})
	}

	return &runtime.TaskResult{
		Data: map[string]interface{}{
			"insights":      insights,
			"insight_count": len(insights),
		},
		Confidence: parsed.Confidence,
		Cost:       res.Cost,
		TokensUsed: res.InputTokens + res.OutputTokens,
		ModelUsed:  res.Backend,
	}, nil
}

// studyDigest builds the scheduled recap from a user's recent activity
// summary assembled by the scheduler.
func (a *InsightsAgent) studyDigest(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
	activity := payloadString(task, "activity")
	if activity == "" {
		return nil, fmt.Errorf("study-digest task %s has no activity payload", task.ID)
	}

	prompt := fmt.Sprintf(`%sYou are preparing a short study digest for a reader based on their recent activity.
RECENT ACTIVITY:
%s

Respond ONLY as strict JSON:
{"digest": string, "suggested_next": [string], "confidence": number 0..1}
`, a.languageHint(), activity)

	res, err := a.exec.Execute(ctx, "insight-generation", prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("study digest: %w", err)
	}

	var parsed struct {
		Digest        string   `json:"digest"`
		SuggestedNext []string `json:"suggested_next"`
		Confidence    float64  `json:"confidence"`
	}
	if err := parseJSON(res.Text, &parsed); err != nil {
		parsed.Digest = res.Text
		parsed.Confidence = 0.5
	}

	return &runtime.TaskResult{
		Data: map[string]interface{}{
			"digest":         parsed.Digest,
			"suggested_next": parsed.SuggestedNext,
		},
		Confidence: parsed.Confidence,
		Cost:       res.Cost,
		TokensUsed: res.InputTokens + res.OutputTokens,
		ModelUsed:  res.Backend,
	}, nil
}

package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/saulini100/AI-Library--sub001/config"
	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/core"
)

type scriptedProvider struct {
	reply      string
	lastPrompt string
}

func (p *scriptedProvider) GenerateWithTokens(ctx context.Context, prompt, apiModel string, options map[string]interface{}) (string, int64, int64, error) {
	p.lastPrompt = prompt
	return p.reply, 120, 80, nil
}

func testEngine(t *testing.T, provider backend.LLMProvider) *Engine {
	t.Helper()
	reg, err := backend.NewRegistry(config.BackendsConfig{
		Default: "mini",
		Catalog: []config.BackendConfig{
			{Name: "mini", Speed: 7, Accuracy: 7, Reasoning: 7, BaseTimeout: 5 * time.Second, CostPer1KInput: 0.0006, CostPer1KOutput: 0.0024},
		},
		TaskProfiles: map[string]config.TaskProfile{
			answerTaskType: {Requirements: map[string]float64{"accuracy": 8}, Preferred: []string{"mini"}, TimeoutMultiplier: 1},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	index, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return NewEngine(index, backend.NewExecutor(reg, provider, nil))
}

func seedIndex(t *testing.T, index *Index) {
	t.Helper()
	passages := []Passage{
		{DocumentID: 1, Chapter: 1, Paragraph: 1, Text: "In the beginning the garden was planted eastward."},
		{DocumentID: 1, Chapter: 2, Paragraph: 4, Text: "The river went out of the garden to water it."},
		{DocumentID: 2, Chapter: 1, Paragraph: 1, Text: "A completely unrelated treatise on shipbuilding."},
	}
	for _, p := range passages {
		if err := index.Add(p); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
}

func TestIndexSearchFiltersByDocument(t *testing.T) {
	index, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	seedIndex(t, index)

	hits, err := index.Search("garden", 1, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	for _, h := range hits {
		if h.Passage.DocumentID != 1 {
			t.Errorf("hit from document %d leaked through the filter", h.Passage.DocumentID)
		}
	}

	all, err := index.Search("garden", 0, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(all) < 2 {
		t.Errorf("unfiltered search returned %d hits", len(all))
	}
}

func TestAnswerParsesStructuredReply(t *testing.T) {
	provider := &scriptedProvider{
		reply: `Here you go: {"answer": "The garden was planted eastward.", "confidence": 0.87, "related_questions": ["Where did the river flow?"], "recommendations": ["Re-read chapter 2"]}`,
	}
	engine := testEngine(t, provider)
	seedIndex(t, engine.Index())

	ans, err := engine.Answer(context.Background(), core.AnswerQuery{
		Query:      "where was the garden planted",
		UserID:     1,
		DocumentID: 1,
		Chapter:    1,
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans.Text != "The garden was planted eastward." {
		t.Errorf("answer = %q", ans.Text)
	}
	if ans.Confidence != 0.87 {
		t.Errorf("confidence = %v, want 0.87", ans.Confidence)
	}
	if len(ans.RelatedQuestions) != 1 || len(ans.Recommendations) != 1 {
		t.Errorf("related=%v recommendations=%v", ans.RelatedQuestions, ans.Recommendations)
	}
	if len(ans.Sources) == 0 {
		t.Error("expected grounded sources")
	}
	if ans.Model != "mini" {
		t.Errorf("model = %s", ans.Model)
	}
	if ans.TokensUsed != 200 {
		t.Errorf("tokens = %d, want 200", ans.TokensUsed)
	}
	if !strings.Contains(provider.lastPrompt, "garden") {
		t.Error("prompt missing retrieved passage text")
	}
}

func TestAnswerToleratesNonJSONReply(t *testing.T) {
	provider := &scriptedProvider{reply: "It was planted eastward, near a river."}
	engine := testEngine(t, provider)
	seedIndex(t, engine.Index())

	ans, err := engine.Answer(context.Background(), core.AnswerQuery{Query: "where was the garden", DocumentID: 1})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ans.Text != "It was planted eastward, near a river." {
		t.Errorf("answer = %q", ans.Text)
	}
	if ans.Confidence != 0.5 {
		t.Errorf("confidence = %v, want lenient default 0.5", ans.Confidence)
	}
}

func TestPromptMentionsLanguageAndEmptyIndex(t *testing.T) {
	provider := &scriptedProvider{reply: `{"answer": "ok", "confidence": 0.3}`}
	engine := testEngine(t, provider)

	if _, err := engine.Answer(context.Background(), core.AnswerQuery{Query: "anything", Language: "de"}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(provider.lastPrompt, "de") {
		t.Error("prompt should carry the reading language")
	}
	if !strings.Contains(provider.lastPrompt, "No matching passages") {
		t.Error("prompt should flag an empty retrieval")
	}
}

package agents

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/saulini100/AI-Library--sub001/config"
	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
	"github.com/saulini100/AI-Library--sub001/internal/rag"
)

type scriptedProvider struct {
	reply      string
	lastPrompt string
}

func (p *scriptedProvider) GenerateWithTokens(ctx context.Context, prompt, apiModel string, options map[string]interface{}) (string, int64, int64, error) {
	p.lastPrompt = prompt
	return p.reply, 100, 60, nil
}

func testExecutor(t *testing.T, provider backend.LLMProvider) *backend.Executor {
	t.Helper()
	profiles := map[string]config.TaskProfile{}
	for _, taskType := range []string{"text-analysis", "summarization", "insight-generation", "quiz-generation", "discussion"} {
		profiles[taskType] = config.TaskProfile{
			Requirements: map[string]float64{"accuracy": 5}, Preferred: []string{"mini"}, TimeoutMultiplier: 1,
		}
	}
	reg, err := backend.NewRegistry(config.BackendsConfig{
		Default:      "mini",
		Catalog:      []config.BackendConfig{{Name: "mini", Speed: 7, Accuracy: 7, BaseTimeout: 5 * time.Second}},
		TaskProfiles: profiles,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return backend.NewExecutor(reg, provider, nil)
}

func TestTextAnalysisAgent(t *testing.T) {
	provider := &scriptedProvider{
		reply: `{"summary": "A chapter about beginnings.", "themes": ["creation", "order"], "key_points": ["the garden"], "structure": "narrative", "confidence": 0.85}`,
	}
	agent := NewTextAnalysisAgent(testExecutor(t, provider))

	res, err := agent.HandleTask(context.Background(), &runtime.Task{
		ID: "t1", Type: "text-analysis",
		Payload: map[string]interface{}{"text": "In the beginning..."},
	})
	if err != nil {
		t.Fatalf("HandleTask: %v", err)
	}
	if res.Data["summary"] != "A chapter about beginnings." {
		t.Errorf("summary = %v", res.Data["summary"])
	}
	themes, _ := res.Data["themes"].([]string)
	if len(themes) != 2 {
		t.Errorf("themes = %v", res.Data["themes"])
	}
	if res.Confidence != 0.85 {
		t.Errorf("confidence = %v", res.Confidence)
	}
	if res.TokensUsed != 160 {
		t.Errorf("tokens = %d", res.TokensUsed)
	}
}

func TestTextAnalysisAgentRejectsEmptyPayload(t *testing.T) {
	agent := NewTextAnalysisAgent(testExecutor(t, &scriptedProvider{}))
	if _, err := agent.HandleTask(context.Background(), &runtime.Task{ID: "t1", Type: "text-analysis"}); err == nil {
		t.Fatal("expected error for missing text payload")
	}
}

func TestQuizAgentParsesQuestions(t *testing.T) {
	provider := &scriptedProvider{
		reply: `{"questions": [{"question": "Where was the garden?", "type": "open", "answer": "eastward", "difficulty": "easy"}], "confidence": 0.9}`,
	}
	agent := NewQuizAgent(testExecutor(t, provider))

	res, err := agent.HandleTask(context.Background(), &runtime.Task{
		ID: "q1", Type: "quiz",
		Payload: map[string]interface{}{"text": "In the beginning...", "count": 3},
	})
	if err != nil {
		t.Fatalf("HandleTask: %v", err)
	}
	if res.Data["question_count"] != 1 {
		t.Errorf("question_count = %v", res.Data["question_count"])
	}
	if !strings.Contains(provider.lastPrompt, "3 comprehension questions") {
		t.Error("prompt should carry the requested count")
	}
}

func TestQuizAgentFailsOnEmptyQuestionList(t *testing.T) {
	provider := &scriptedProvider{reply: `{"questions": [], "confidence": 0.9}`}
	agent := NewQuizAgent(testExecutor(t, provider))

	_, err := agent.HandleTask(context.Background(), &runtime.Task{
		ID: "q1", Type: "quiz", Payload: map[string]interface{}{"text": "text"},
	})
	if err == nil {
		t.Fatal("expected error so the runtime can retry")
	}
}

func TestInsightsAgentUsesAbsorbedNotes(t *testing.T) {
	provider := &scriptedProvider{
		reply: `{"insights": [{"title": "Echoes", "body": "The motif repeats.", "connection": "ch1-ch3"}], "confidence": 0.88}`,
	}
	agent := NewInsightsAgent(testExecutor(t, provider))

	err := agent.ReceiveInsight(context.Background(), "text-analysis", &runtime.TaskResult{
		Data:       map[string]interface{}{"summary": "Themes of order emerging from chaos."},
		Confidence: 0.92,
	})
	if err != nil {
		t.Fatalf("ReceiveInsight: %v", err)
	}

	res, err := agent.HandleTask(context.Background(), &runtime.Task{
		ID: "i1", Type: "insight-generation",
		Payload: map[string]interface{}{"text": "Chapter three revisits the garden."},
	})
	if err != nil {
		t.Fatalf("HandleTask: %v", err)
	}
	if res.Data["insight_count"] != 1 {
		t.Errorf("insight_count = %v", res.Data["insight_count"])
	}
	if !strings.Contains(provider.lastPrompt, "order emerging from chaos") {
		t.Error("prompt should include the absorbed peer note")
	}
}

func TestInsightsAgentStudyDigest(t *testing.T) {
	provider := &scriptedProvider{
		reply: `{"digest": "You covered two chapters this week.", "suggested_next": ["chapter 4"], "confidence": 0.8}`,
	}
	agent := NewInsightsAgent(testExecutor(t, provider))

	res, err := agent.HandleTask(context.Background(), &runtime.Task{
		ID: "d1", Type: "study-digest",
		Payload: map[string]interface{}{"activity": "read ch2, ch3; asked 4 questions"},
	})
	if err != nil {
		t.Fatalf("HandleTask: %v", err)
	}
	if res.Data["digest"] != "You covered two chapters this week." {
		t.Errorf("digest = %v", res.Data["digest"])
	}
}

func TestDiscussionAgentLanguageAware(t *testing.T) {
	provider := &scriptedProvider{
		reply: `{"reply": "Eine interessante Frage!", "follow_up_questions": ["Warum?"], "confidence": 0.75}`,
	}
	agent := NewDiscussionAgent(testExecutor(t, provider))
	agent.SetLanguage("de")

	res, err := agent.HandleTask(context.Background(), &runtime.Task{
		ID: "m1", Type: "discussion",
		Payload: map[string]interface{}{"message": "Was bedeutet der Garten?"},
	})
	if err != nil {
		t.Fatalf("HandleTask: %v", err)
	}
	if res.Data["reply"] != "Eine interessante Frage!" {
		t.Errorf("reply = %v", res.Data["reply"])
	}
	if !strings.Contains(provider.lastPrompt, "de") {
		t.Error("prompt should carry the configured language")
	}
}

func TestNavigationAgentLookup(t *testing.T) {
	index, err := rag.NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	index.Add(rag.Passage{DocumentID: 1, Chapter: 2, Paragraph: 7, Text: "The river went out of the garden."})
	index.Add(rag.Passage{DocumentID: 2, Chapter: 1, Paragraph: 1, Text: "Shipbuilding for beginners."})

	agent := NewNavigationAgent(index)
	res, err := agent.HandleTask(context.Background(), &runtime.Task{
		ID: "n1", Type: "lookup",
		Payload: map[string]interface{}{"query": "river garden", "document_id": 1},
	})
	if err != nil {
		t.Fatalf("HandleTask: %v", err)
	}
	if res.Data["matches"] != 1 {
		t.Fatalf("matches = %v, want 1", res.Data["matches"])
	}
	locations := res.Data["locations"].([]map[string]interface{})
	if locations[0]["chapter"] != 2 || locations[0]["paragraph"] != 7 {
		t.Errorf("location = %v", locations[0])
	}
	if res.Confidence > 0.8 {
		t.Errorf("confidence = %v, must stay below the fan-out threshold", res.Confidence)
	}
}

func TestNewAllWiresEveryAgent(t *testing.T) {
	index, _ := rag.NewIndex()
	all := NewAll(testExecutor(t, &scriptedProvider{}), index)

	for _, name := range []string{"text-analysis", "insights", "quiz", "discussion", "navigation"} {
		agent, ok := all[name]
		if !ok {
			t.Fatalf("agent %s missing", name)
		}
		if agent.Name() != name {
			t.Errorf("agent keyed %s reports name %s", name, agent.Name())
		}
	}
}

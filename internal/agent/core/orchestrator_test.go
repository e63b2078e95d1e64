package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saulini100/AI-Library--sub001/config"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
)

// stubAgent is a minimal scriptable agent for orchestrator tests.
type stubAgent struct {
	name   string
	handle func(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error)

	insightMu sync.Mutex
	insights  []string
	insightCh chan string
	language  string
}

func newStubAgent(name string) *stubAgent {
	return &stubAgent{name: name, insightCh: make(chan string, 8)}
}

func (a *stubAgent) Name() string                         { return a.name }
func (a *stubAgent) Specialties() []string                { return []string{a.name} }
func (a *stubAgent) Initialize(ctx context.Context) error { return nil }
func (a *stubAgent) Cleanup(ctx context.Context) error    { return nil }

func (a *stubAgent) HandleTask(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
	if a.handle != nil {
		return a.handle(ctx, task)
	}
	return &runtime.TaskResult{
		Data:       map[string]interface{}{"echo": task.Type},
		Confidence: 0.5,
	}, nil
}

func (a *stubAgent) ReceiveInsight(ctx context.Context, source string, result *runtime.TaskResult) error {
	a.insightMu.Lock()
	a.insights = append(a.insights, source)
	a.insightMu.Unlock()
	select {
	case a.insightCh <- source:
	default:
	}
	return nil
}

func (a *stubAgent) SetLanguage(lang string) {
	a.insightMu.Lock()
	a.language = lang
	a.insightMu.Unlock()
}

func (a *stubAgent) currentLanguage() string {
	a.insightMu.Lock()
	defer a.insightMu.Unlock()
	return a.language
}

// stubAnswerer returns a canned answer and counts invocations.
type stubAnswerer struct {
	answer *Answer
	err    error
	calls  atomic.Int64
}

func (s *stubAnswerer) Answer(ctx context.Context, q AnswerQuery) (*Answer, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.answer, nil
}

func orchestratorConfig() *config.Config {
	return &config.Config{
		General: config.GeneralConfig{DefaultTimeout: 5 * time.Second},
		Cache:   config.CacheConfig{TTL: time.Minute, ConfidenceThreshold: 0.8, TopAgents: 5},
		Agents: config.AgentsConfig{
			Definitions: map[string]config.AgentConfig{
				"text-analysis": {Interval: 5 * time.Millisecond, MaxRetries: 0, Timeout: time.Second, Related: []string{"insights"}},
				"insights":      {Interval: 5 * time.Millisecond, MaxRetries: 0, Timeout: time.Second},
			},
		},
	}
}

func startOrchestrator(t *testing.T, cfg *config.Config, answerer Answerer, agents ...runtime.Agent) *Orchestrator {
	t.Helper()
	orch := NewOrchestrator(cfg, answerer, nil, nil)
	ctx := context.Background()
	for _, a := range agents {
		def := cfg.Agents.Definitions[a.Name()]
		if def.Interval == 0 {
			def = config.AgentConfig{Interval: 5 * time.Millisecond, Timeout: time.Second}
		}
		if err := orch.RegisterAgent(ctx, runtime.NewRuntime(a, def)); err != nil {
			t.Fatalf("RegisterAgent(%s): %v", a.Name(), err)
		}
	}
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { orch.Stop(context.Background()) })
	return orch
}

func TestDispatchUnknownAgent(t *testing.T) {
	orch := startOrchestrator(t, orchestratorConfig(), nil)

	_, err := orch.Dispatch(context.Background(), "ghost", &runtime.Task{Type: "work"})
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("err = %v, want ErrAgentNotFound", err)
	}
}

func TestDispatchAndAwait(t *testing.T) {
	agent := newStubAgent("text-analysis")
	orch := startOrchestrator(t, orchestratorConfig(), nil, agent)

	task := &runtime.Task{Type: "summarization", Priority: 3}
	res, err := orch.DispatchAndAwait(context.Background(), "text-analysis", task, 2*time.Second)
	if err != nil {
		t.Fatalf("DispatchAndAwait: %v", err)
	}
	if res.TaskID != task.ID {
		t.Errorf("result task ID %s != %s", res.TaskID, task.ID)
	}
	if res.AgentName != "text-analysis" {
		t.Errorf("result agent = %s", res.AgentName)
	}
	if res.Data["echo"] != "summarization" {
		t.Errorf("result data = %v", res.Data)
	}
}

func TestDispatchAndAwaitPropagatesFailure(t *testing.T) {
	agent := newStubAgent("text-analysis")
	agent.handle = func(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
		return nil, fmt.Errorf("model unavailable")
	}
	orch := startOrchestrator(t, orchestratorConfig(), nil, agent)

	_, err := orch.DispatchAndAwait(context.Background(), "text-analysis", &runtime.Task{Type: "work"}, 2*time.Second)
	if err == nil {
		t.Fatal("expected failure to propagate")
	}
}

func TestDispatchAndAwaitTimeout(t *testing.T) {
	agent := newStubAgent("text-analysis")
	agent.handle = func(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	orch := startOrchestrator(t, orchestratorConfig(), nil, agent)

	_, err := orch.DispatchAndAwait(context.Background(), "text-analysis", &runtime.Task{Type: "work"}, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected await timeout")
	}
	// The abandoned future must not linger.
	if n := orch.futures.size(); n != 0 {
		t.Errorf("pending futures = %d, want 0", n)
	}
}

func TestCoordinateQueryUsesCache(t *testing.T) {
	answerer := &stubAnswerer{answer: &Answer{Text: "an answer", Confidence: 0.6}}
	orch := startOrchestrator(t, orchestratorConfig(), answerer)

	req := CoordinateRequest{Query: "what is this chapter about", UserID: 1, DocumentID: 2, Chapter: 3}

	first, err := orch.CoordinateQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	if first.FromCache {
		t.Error("first response should not come from cache")
	}

	second, err := orch.CoordinateQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if !second.FromCache {
		t.Error("second identical query should hit the cache")
	}
	if second.Answer != "an answer" {
		t.Errorf("cached answer = %q", second.Answer)
	}
	if got := answerer.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}

	// A different user misses the cache.
	req.UserID = 99
	third, _ := orch.CoordinateQuery(context.Background(), req)
	if third.FromCache {
		t.Error("different user must not share the cache entry")
	}
}

func TestCoordinateQueryPropagatesLanguage(t *testing.T) {
	answerer := &stubAnswerer{answer: &Answer{Text: "eine antwort", Confidence: 0.6}}
	agent := newStubAgent("insights")
	orch := startOrchestrator(t, orchestratorConfig(), answerer, agent)

	req := CoordinateRequest{Query: "worum geht es", UserID: 1, Language: "de"}
	if _, err := orch.CoordinateQuery(context.Background(), req); err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := agent.currentLanguage(); got != "de" {
		t.Errorf("agent language = %q, want de", got)
	}
}

func TestCoordinateQueryFansOutAlongRelatedSet(t *testing.T) {
	answerer := &stubAnswerer{answer: &Answer{Text: "a strong answer", Confidence: 0.95}}
	related := newStubAgent("insights")
	unrelated := newStubAgent("quiz")
	orch := startOrchestrator(t, orchestratorConfig(), answerer, related, unrelated)

	req := CoordinateRequest{Query: "what are the themes", UserID: 1, Agent: "text-analysis"}
	if _, err := orch.CoordinateQuery(context.Background(), req); err != nil {
		t.Fatalf("query: %v", err)
	}

	select {
	case source := <-related.insightCh:
		if source != "coordinator" {
			t.Errorf("insight source = %q, want coordinator", source)
		}
	case <-time.After(time.Second):
		t.Fatal("related agent never received the answer insight")
	}

	select {
	case <-unrelated.insightCh:
		t.Fatal("agent outside the related set received the insight")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinateQueryWithoutAgentDoesNotFanOut(t *testing.T) {
	answerer := &stubAnswerer{answer: &Answer{Text: "a strong answer", Confidence: 0.95}}
	agent := newStubAgent("insights")
	orch := startOrchestrator(t, orchestratorConfig(), answerer, agent)

	req := CoordinateRequest{Query: "what are the themes", UserID: 1}
	if _, err := orch.CoordinateQuery(context.Background(), req); err != nil {
		t.Fatalf("query: %v", err)
	}

	select {
	case <-agent.insightCh:
		t.Fatal("query without a target agent must not fan out")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinateQueryFallsBackOnEngineError(t *testing.T) {
	answerer := &stubAnswerer{err: fmt.Errorf("index offline")}
	orch := startOrchestrator(t, orchestratorConfig(), answerer)

	resp, err := orch.CoordinateQuery(context.Background(), CoordinateRequest{Query: "anything", UserID: 1})
	if err != nil {
		t.Fatalf("expected graceful fallback, got %v", err)
	}
	if resp.Confidence >= 0.5 {
		t.Errorf("fallback confidence = %v, want low", resp.Confidence)
	}
	if resp.Answer == "" {
		t.Error("fallback answer must not be empty")
	}
}

func TestHighConfidenceResultFansOutToRelatedAgents(t *testing.T) {
	producer := newStubAgent("text-analysis")
	producer.handle = func(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
		return &runtime.TaskResult{
			Data:       map[string]interface{}{"themes": []string{"hope"}},
			Confidence: 0.95,
		}, nil
	}
	related := newStubAgent("insights")
	orch := startOrchestrator(t, orchestratorConfig(), nil, producer, related)

	if _, err := orch.DispatchAndAwait(context.Background(), "text-analysis", &runtime.Task{Type: "themes"}, 2*time.Second); err != nil {
		t.Fatalf("DispatchAndAwait: %v", err)
	}

	select {
	case source := <-related.insightCh:
		if source != "text-analysis" {
			t.Errorf("insight source = %s, want text-analysis", source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("related agent never received the insight")
	}
}

func TestLowConfidenceResultDoesNotFanOut(t *testing.T) {
	producer := newStubAgent("text-analysis")
	producer.handle = func(ctx context.Context, task *runtime.Task) (*runtime.TaskResult, error) {
		return &runtime.TaskResult{Confidence: 0.4}, nil
	}
	related := newStubAgent("insights")
	orch := startOrchestrator(t, orchestratorConfig(), nil, producer, related)

	if _, err := orch.DispatchAndAwait(context.Background(), "text-analysis", &runtime.Task{Type: "themes"}, 2*time.Second); err != nil {
		t.Fatalf("DispatchAndAwait: %v", err)
	}

	select {
	case <-related.insightCh:
		t.Fatal("low-confidence result must not fan out")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGetAnalytics(t *testing.T) {
	answerer := &stubAnswerer{answer: &Answer{Text: "a", Confidence: 0.6}}
	agent := newStubAgent("text-analysis")
	orch := startOrchestrator(t, orchestratorConfig(), answerer, agent)

	req := CoordinateRequest{Query: "q", UserID: 1}
	orch.CoordinateQuery(context.Background(), req)
	orch.CoordinateQuery(context.Background(), req)
	if _, err := orch.DispatchAndAwait(context.Background(), "text-analysis", &runtime.Task{Type: "work"}, 2*time.Second); err != nil {
		t.Fatalf("DispatchAndAwait: %v", err)
	}

	a := orch.GetAnalytics()
	if a.TotalQueries != 2 {
		t.Errorf("total queries = %d, want 2", a.TotalQueries)
	}
	if a.CacheHits != 1 {
		t.Errorf("cache hits = %d, want 1", a.CacheHits)
	}
	if a.CacheHitRate != 0.5 {
		t.Errorf("cache hit rate = %v, want 0.5", a.CacheHitRate)
	}
	if a.AgentDispatches["text-analysis"] != 1 {
		t.Errorf("dispatches = %v", a.AgentDispatches)
	}
	if len(a.TopAgents) != 1 || a.TopAgents[0].Agent != "text-analysis" {
		t.Errorf("top agents = %v", a.TopAgents)
	}
	rt, ok := a.Runtimes["text-analysis"]
	if !ok || rt.TasksProcessed != 1 {
		t.Errorf("runtime snapshot = %+v", rt)
	}
}

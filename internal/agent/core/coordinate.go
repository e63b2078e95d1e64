package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
	"github.com/saulini100/AI-Library--sub001/internal/agent/telemetry"
)

const fallbackAnswer = "I could not find a confident answer to that in your current reading. " +
	"Try rephrasing the question or pointing me at a specific chapter."

// CoordinateQuery resolves one user query: enrich with study patterns,
// consult the response cache, ask the answer engine, cache the result
// and fan high-confidence answers out to interested agents.
//
// The method never fails the user for engine errors; it degrades to a
// low-confidence fallback answer instead.
func (o *Orchestrator) CoordinateQuery(ctx context.Context, req CoordinateRequest) (*QueryResponse, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.coordinate_query",
		trace.WithAttributes(
			attribute.Int64("user.id", req.UserID),
			attribute.Int64("document.id", req.DocumentID),
			attribute.Int("chapter", req.Chapter),
		))
	defer span.End()

	start := time.Now()
	queryID := uuid.NewString()
	o.totalQueries.Add(1)

	key := CacheKey(req.Query, req.UserID, req.DocumentID, req.Chapter, req.Agent)
	if cached, ok := o.cache.Get(key); ok {
		o.cacheHits.Add(1)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		cached.FromCache = true
		cached.Duration = time.Since(start)
		o.recordQuery(ctx, queryID, req, &cached, true, nil)
		return &cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	if req.Language != "" {
		o.propagateLanguage(req.Language)
	}
	patterns := o.studyPatterns(ctx, req.UserID)

	if o.answerer == nil {
		resp := o.fallbackResponse(start)
		o.recordQuery(ctx, queryID, req, resp, false, nil)
		return resp, nil
	}

	answer, err := o.answerer.Answer(ctx, AnswerQuery{
		Query:         req.Query,
		UserID:        req.UserID,
		DocumentID:    req.DocumentID,
		Chapter:       req.Chapter,
		Language:      req.Language,
		StudyPatterns: patterns,
	})
	if err != nil {
		o.logger.Printf("answer engine failed for query %s: %v", queryID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer engine failed")
		resp := o.fallbackResponse(start)
		o.recordQuery(ctx, queryID, req, resp, false, err)
		return resp, nil
	}

	resp := &QueryResponse{
		Answer:           answer.Text,
		Sources:          answer.Sources,
		Confidence:       answer.Confidence,
		RelatedQuestions: answer.RelatedQuestions,
		Recommendations:  answer.Recommendations,
		Model:            answer.Model,
		Duration:         time.Since(start),
		CreatedAt:        time.Now(),
	}

	o.cache.Put(key, *resp)

	if answer.Confidence > o.cfg.Cache.ConfidenceThreshold {
		o.fanOutAnswer(req, answer)
	}

	o.recordQuery(ctx, queryID, req, resp, false, nil)
	span.SetAttributes(attribute.Float64("answer.confidence", answer.Confidence))
	return resp, nil
}

// studyPatterns fetches the user's study behavior, tolerating failures.
func (o *Orchestrator) studyPatterns(ctx context.Context, userID int64) map[string]interface{} {
	if o.patterns == nil || userID == 0 {
		return nil
	}
	patterns, err := o.patterns.GetStudyPatterns(ctx, userID)
	if err != nil {
		o.logger.Printf("study patterns unavailable for user %d: %v", userID, err)
		return nil
	}
	return patterns
}

func (o *Orchestrator) fallbackResponse(start time.Time) *QueryResponse {
	return &QueryResponse{
		Answer:     fallbackAnswer,
		Confidence: 0.2,
		Duration:   time.Since(start),
		CreatedAt:  time.Now(),
	}
}

// propagateLanguage tells every language-aware agent which language the
// user is currently working in, so later fan-out and direct tasks
// produce output the user can read.
func (o *Orchestrator) propagateLanguage(lang string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, rt := range o.agents {
		if ta, ok := rt.Agent().(runtime.TranslationAware); ok {
			ta.SetLanguage(lang)
		}
	}
}

// fanOutAnswer shares a high-confidence coordinated answer with the
// agents related to the one the query was aimed at. The adjacency is
// the same static Related table the task-completion path uses; a query
// without a configured agent fans out nowhere. Best-effort only.
func (o *Orchestrator) fanOutAnswer(req CoordinateRequest, answer *Answer) {
	def, ok := o.cfg.Agents.Definitions[req.Agent]
	if !ok {
		return
	}

	result := &runtime.TaskResult{
		TaskID:    uuid.NewString(),
		AgentName: "coordinator",
		Data: map[string]interface{}{
			"query":       req.Query,
			"answer":      answer.Text,
			"document_id": req.DocumentID,
			"chapter":     req.Chapter,
			"user_id":     req.UserID,
		},
		Confidence:  answer.Confidence,
		ModelUsed:   answer.Model,
		CompletedAt: time.Now(),
	}

	for _, name := range def.Related {
		o.mu.RLock()
		rt, ok := o.agents[name]
		o.mu.RUnlock()
		if !ok {
			continue
		}
		recv, ok := rt.Agent().(runtime.InsightReceiver)
		if !ok {
			continue
		}
		go func(name string, recv runtime.InsightReceiver) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := recv.ReceiveInsight(ctx, "coordinator", result); err != nil {
				o.logger.Printf("answer fan-out to %s failed: %v", name, err)
			}
		}(name, recv)
	}
}

func (o *Orchestrator) recordQuery(ctx context.Context, id string, req CoordinateRequest, resp *QueryResponse, fromCache bool, err error) {
	if o.telemetry == nil {
		return
	}
	ev := telemetry.QueryEvent{
		ID:         id,
		Query:      req.Query,
		Duration:   resp.Duration,
		Success:    err == nil,
		FromCache:  fromCache,
		Confidence: resp.Confidence,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	o.telemetry.RecordQueryEvent(ctx, ev)
}

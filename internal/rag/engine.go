package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/core"
)

const answerTaskType = "retrieval-answer"

// Engine answers user queries by retrieving document passages and
// asking a model backend to ground its answer in them.
type Engine struct {
	index  *Index
	exec   *backend.Executor
	logger *log.Logger
}

// NewEngine creates an answer engine over an index and executor.
func NewEngine(index *Index, exec *backend.Executor) *Engine {
	return &Engine{
		index:  index,
		exec:   exec,
		logger: log.New(log.Writer(), "[RAG] ", log.LstdFlags),
	}
}

// Index exposes the underlying passage index for ingestion.
func (e *Engine) Index() *Index { return e.index }

// Answer implements core.Answerer.
func (e *Engine) Answer(ctx context.Context, q core.AnswerQuery) (*core.Answer, error) {
	hits, err := e.index.Search(q.Query, q.DocumentID, 6)
	if err != nil {
		return nil, fmt.Errorf("passage search: %w", err)
	}

	prompt := e.buildPrompt(q, hits)
	res, err := e.exec.Execute(ctx, answerTaskType, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	var parsed struct {
		Answer           string   `json:"answer"`
		Confidence       float64  `json:"confidence"`
		RelatedQuestions []string `json:"related_questions"`
		Recommendations  []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(res.Text)), &parsed); err != nil || parsed.Answer == "" {
		// Lenient handling for models that ignore the JSON contract.
		parsed.Answer = strings.TrimSpace(res.Text)
		parsed.Confidence = 0.5
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}

	answer := &core.Answer{
		Text:             parsed.Answer,
		Confidence:       parsed.Confidence,
		RelatedQuestions: parsed.RelatedQuestions,
		Recommendations:  parsed.Recommendations,
		Model:            res.Backend,
		Cost:             res.Cost,
		TokensUsed:       res.InputTokens + res.OutputTokens,
	}
	for _, hit := range hits {
		answer.Sources = append(answer.Sources, core.SourceRef{
			DocumentID: hit.Passage.DocumentID,
			Chapter:    hit.Passage.Chapter,
			Paragraph:  hit.Passage.Paragraph,
			Excerpt:    snippet(hit.Passage.Text),
			Score:      hit.Score,
		})
	}
	return answer, nil
}

func (e *Engine) buildPrompt(q core.AnswerQuery, hits []Hit) string {
	var b strings.Builder
	b.WriteString("You are a reading companion answering a question about a document the user is studying.\n")
	if q.Language != "" && q.Language != "en" {
		fmt.Fprintf(&b, "Answer in the user's language: %s.\n", q.Language)
	}
	if len(q.StudyPatterns) > 0 {
		if focus, ok := q.StudyPatterns["focus_topics"]; ok {
			fmt.Fprintf(&b, "The user has recently focused on: %v.\n", focus)
		}
	}
	fmt.Fprintf(&b, "\nQUESTION: %s\n", q.Query)
	if q.Chapter > 0 {
		fmt.Fprintf(&b, "The user is currently reading chapter %d.\n", q.Chapter)
	}

	if len(hits) > 0 {
		b.WriteString("\nRELEVANT PASSAGES:\n")
		for _, hit := range hits {
			fmt.Fprintf(&b, "- [ch %d, para %d] %s\n", hit.Passage.Chapter, hit.Passage.Paragraph, snippet(hit.Passage.Text))
		}
	} else {
		b.WriteString("\nNo matching passages were found; answer from general knowledge and say so, with low confidence.\n")
	}

	b.WriteString(`
Respond ONLY as strict JSON:
{"answer": string, "confidence": number 0..1, "related_questions": [string], "recommendations": [string]}
`)
	return b.String()
}

func snippet(s string) string {
	const max = 400
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// extractFirstJSON finds the first top-level JSON object in a string.
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}

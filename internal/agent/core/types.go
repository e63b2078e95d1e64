package core

import (
	"context"
	"errors"
	"time"
)

// ErrAgentNotFound is returned when dispatching to an unregistered agent.
var ErrAgentNotFound = errors.New("agent not found")

// CoordinateRequest is one user query entering the companion.
type CoordinateRequest struct {
	Query      string `json:"query"`
	UserID     int64  `json:"user_id"`
	DocumentID int64  `json:"document_id"`
	Chapter    int    `json:"chapter"`
	Language   string `json:"language"`
	Agent      string `json:"agent"`
}

// QueryResponse is the coordinated answer returned to the user.
type QueryResponse struct {
	Answer           string        `json:"answer"`
	Sources          []SourceRef   `json:"sources,omitempty"`
	Confidence       float64       `json:"confidence"`
	RelatedQuestions []string      `json:"related_questions,omitempty"`
	Recommendations  []string      `json:"recommendations,omitempty"`
	Model            string        `json:"model,omitempty"`
	FromCache        bool          `json:"from_cache"`
	Duration         time.Duration `json:"duration"`
	CreatedAt        time.Time     `json:"created_at"`
}

// SourceRef points at a passage that grounded an answer.
type SourceRef struct {
	DocumentID int64   `json:"document_id"`
	Chapter    int     `json:"chapter"`
	Paragraph  int     `json:"paragraph"`
	Excerpt    string  `json:"excerpt"`
	Score      float64 `json:"score"`
}

// AnswerQuery is the retrieval request handed to the answer engine.
type AnswerQuery struct {
	Query         string
	UserID        int64
	DocumentID    int64
	Chapter       int
	Language      string
	StudyPatterns map[string]interface{}
}

// Answer is what the answer engine produced for one query.
type Answer struct {
	Text             string
	Sources          []SourceRef
	Confidence       float64
	RelatedQuestions []string
	Recommendations  []string
	Model            string
	Cost             float64
	TokensUsed       int64
}

// Answerer resolves user queries against indexed document content.
type Answerer interface {
	Answer(ctx context.Context, q AnswerQuery) (*Answer, error)
}

// StudyPatternSource supplies per-user study behavior used to enrich
// queries. Implementations are best-effort; errors are tolerated.
type StudyPatternSource interface {
	GetStudyPatterns(ctx context.Context, userID int64) (map[string]interface{}, error)
}

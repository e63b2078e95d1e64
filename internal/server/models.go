package server

// HTTPError is the uniform error body returned by the API.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query      string `json:"query"`
	DocumentID int64  `json:"document_id"`
	Chapter    int    `json:"chapter"`
	Language   string `json:"language"`
	Agent      string `json:"agent,omitempty"`
}

// DispatchRequest enqueues a task on a named agent without waiting.
type DispatchRequest struct {
	Agent    string                 `json:"agent"`
	Type     string                 `json:"type"`
	Priority int                    `json:"priority"`
	Payload  map[string]interface{} `json:"payload"`
}

// AskRequest dispatches a task and waits for its result.
type AskRequest struct {
	Agent          string                 `json:"agent"`
	Type           string                 `json:"type"`
	Priority       int                    `json:"priority"`
	Payload        map[string]interface{} `json:"payload"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
}

// PassageUpload is one paragraph in a document upload.
type PassageUpload struct {
	Chapter   int    `json:"chapter"`
	Paragraph int    `json:"paragraph"`
	Text      string `json:"text"`
}

// CreateDocumentRequest uploads a document with its passages.
type CreateDocumentRequest struct {
	Title    string          `json:"title"`
	Language string          `json:"language"`
	Passages []PassageUpload `json:"passages"`
}

type AnnotationRequest struct {
	Chapter   int    `json:"chapter"`
	Paragraph int    `json:"paragraph"`
	Note      string `json:"note"`
}

type BookmarkRequest struct {
	Chapter int    `json:"chapter"`
	Title   string `json:"title"`
}

// ReadingSessionRequest records one reading span.
type ReadingSessionRequest struct {
	Chapter         int   `json:"chapter"`
	DurationSeconds int64 `json:"duration_seconds"`
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/saulini100/AI-Library--sub001/config"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the Postgres connection for the companion's persistence.
type Store struct {
	DB *sql.DB
}

// User is a registered reader.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Document is one uploaded reading document.
type Document struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Chapters  int       `json:"chapters"`
	CreatedAt time.Time `json:"created_at"`
}

// Passage is one stored paragraph of a document.
type Passage struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Chapter    int    `json:"chapter"`
	Paragraph  int    `json:"paragraph"`
	Text       string `json:"text"`
}

// Annotation is a user note anchored to a passage.
type Annotation struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	DocumentID int64     `json:"document_id"`
	Chapter    int       `json:"chapter"`
	Paragraph  int       `json:"paragraph"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

// Bookmark marks a position in a document.
type Bookmark struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	DocumentID int64     `json:"document_id"`
	Chapter    int       `json:"chapter"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
}

// New constructs the Store from configuration and verifies connectivity.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	return NewWithDSN(ctx, cfg.DSN())
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error { return s.DB.Close() }

// CreateUser inserts a user and returns its ID.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, created_at) VALUES ($1, $2, NOW()) RETURNING id`,
		email, passwordHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail looks a user up for login.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateDocument inserts a document shell; passages are added after.
func (s *Store) CreateDocument(ctx context.Context, userID int64, title, language string) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO documents (user_id, title, language, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id`,
		userID, title, language).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create document: %w", err)
	}
	return id, nil
}

// GetDocument fetches one document with its chapter count.
func (s *Store) GetDocument(ctx context.Context, id int64) (Document, error) {
	var d Document
	err := s.DB.QueryRowContext(ctx, `
SELECT d.id, d.user_id, d.title, d.language, d.created_at,
       COALESCE(MAX(p.chapter), 0)
FROM documents d
LEFT JOIN passages p ON p.document_id = d.id
WHERE d.id = $1
GROUP BY d.id`, id).Scan(&d.ID, &d.UserID, &d.Title, &d.Language, &d.CreatedAt, &d.Chapters)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns a user's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, userID int64) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, title, language, created_at FROM documents WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.Title, &d.Language, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddPassage stores one paragraph of a document.
func (s *Store) AddPassage(ctx context.Context, p Passage) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO passages (document_id, chapter, paragraph, text) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.DocumentID, p.Chapter, p.Paragraph, p.Text).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add passage: %w", err)
	}
	return id, nil
}

// ListPassages returns a document's passages in reading order. Used to
// rebuild the in-memory search index on startup.
func (s *Store) ListPassages(ctx context.Context, documentID int64) ([]Passage, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, document_id, chapter, paragraph, text FROM passages WHERE document_id = $1 ORDER BY chapter, paragraph`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("list passages: %w", err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Chapter, &p.Paragraph, &p.Text); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AllDocumentIDs lists every document for index warm-up.
func (s *Store) AllDocumentIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list document ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CreateAnnotation stores a user note.
func (s *Store) CreateAnnotation(ctx context.Context, a Annotation) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO annotations (user_id, document_id, chapter, paragraph, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id`,
		a.UserID, a.DocumentID, a.Chapter, a.Paragraph, a.Note).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create annotation: %w", err)
	}
	return id, nil
}

// ListAnnotations returns a user's notes on a document.
func (s *Store) ListAnnotations(ctx context.Context, userID, documentID int64) ([]Annotation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, document_id, chapter, paragraph, note, created_at
		 FROM annotations WHERE user_id = $1 AND document_id = $2 ORDER BY chapter, paragraph`,
		userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(&a.ID, &a.UserID, &a.DocumentID, &a.Chapter, &a.Paragraph, &a.Note, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateBookmark stores a bookmark.
func (s *Store) CreateBookmark(ctx context.Context, b Bookmark) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO bookmarks (user_id, document_id, chapter, title, created_at)
		 VALUES ($1, $2, $3, $4, NOW()) RETURNING id`,
		b.UserID, b.DocumentID, b.Chapter, b.Title).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create bookmark: %w", err)
	}
	return id, nil
}

// ListBookmarks returns a user's bookmarks on a document.
func (s *Store) ListBookmarks(ctx context.Context, userID, documentID int64) ([]Bookmark, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, document_id, chapter, title, created_at
		 FROM bookmarks WHERE user_id = $1 AND document_id = $2 ORDER BY created_at DESC`,
		userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.DocumentID, &b.Chapter, &b.Title, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RecordReadingSession logs one reading span for study patterns.
func (s *Store) RecordReadingSession(ctx context.Context, userID, documentID int64, chapter int, duration time.Duration) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO reading_sessions (user_id, document_id, chapter, duration_seconds, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		userID, documentID, chapter, int64(duration.Seconds()))
	if err != nil {
		return fmt.Errorf("record reading session: %w", err)
	}
	return nil
}

// LogQuery persists one coordinated query and its outcome.
func (s *Store) LogQuery(ctx context.Context, userID int64, query, answer string, confidence float64, fromCache bool) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO query_log (user_id, query, answer, confidence, from_cache, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		userID, query, answer, confidence, fromCache)
	if err != nil {
		return fmt.Errorf("log query: %w", err)
	}
	return nil
}

// GetStudyPatterns aggregates a user's recent behavior into the shape
// the orchestrator feeds into query prompts. Implements
// core.StudyPatternSource.
func (s *Store) GetStudyPatterns(ctx context.Context, userID int64) (map[string]interface{}, error) {
	patterns := map[string]interface{}{}

	var minutes sql.NullFloat64
	err := s.DB.QueryRowContext(ctx,
		`SELECT SUM(duration_seconds) / 60.0 FROM reading_sessions
		 WHERE user_id = $1 AND created_at > NOW() - INTERVAL '7 days'`,
		userID).Scan(&minutes)
	if err != nil {
		return nil, fmt.Errorf("study patterns: %w", err)
	}
	if minutes.Valid {
		patterns["reading_minutes_7d"] = minutes.Float64
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT chapter FROM reading_sessions
		 WHERE user_id = $1 AND created_at > NOW() - INTERVAL '7 days'
		 ORDER BY chapter`, userID)
	if err != nil {
		return nil, fmt.Errorf("study patterns: %w", err)
	}
	defer rows.Close()
	var chapters []int
	for rows.Next() {
		var ch int
		if err := rows.Scan(&ch); err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chapters) > 0 {
		patterns["recent_chapters"] = chapters
	}

	qrows, err := s.DB.QueryContext(ctx,
		`SELECT query FROM query_log WHERE user_id = $1 ORDER BY created_at DESC LIMIT 5`, userID)
	if err != nil {
		return nil, fmt.Errorf("study patterns: %w", err)
	}
	defer qrows.Close()
	var topics []string
	for qrows.Next() {
		var q string
		if err := qrows.Scan(&q); err != nil {
			return nil, err
		}
		topics = append(topics, q)
	}
	if err := qrows.Err(); err != nil {
		return nil, err
	}
	if len(topics) > 0 {
		patterns["focus_topics"] = topics
	}

	return patterns, nil
}

// RecentlyActiveUsers returns user IDs with reading activity since the
// cutoff, for the study-digest scheduler.
func (s *Store) RecentlyActiveUsers(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM reading_sessions WHERE created_at > $1 ORDER BY user_id`, since)
	if err != nil {
		return nil, fmt.Errorf("recently active users: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecentActivitySummary renders a compact text description of a user's
// activity since the cutoff, consumed by the study-digest agent.
func (s *Store) RecentActivitySummary(ctx context.Context, userID int64, since time.Time) (string, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT d.title, rs.chapter, SUM(rs.duration_seconds)
FROM reading_sessions rs
JOIN documents d ON d.id = rs.document_id
WHERE rs.user_id = $1 AND rs.created_at > $2
GROUP BY d.title, rs.chapter
ORDER BY d.title, rs.chapter`, userID, since)
	if err != nil {
		return "", fmt.Errorf("activity summary: %w", err)
	}
	defer rows.Close()

	summary := ""
	for rows.Next() {
		var title string
		var chapter int
		var seconds int64
		if err := rows.Scan(&title, &chapter, &seconds); err != nil {
			return "", err
		}
		summary += fmt.Sprintf("read %q chapter %d for %d minutes\n", title, chapter, seconds/60)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if summary == "" {
		summary = "no recorded reading activity\n"
	}
	return summary, nil
}

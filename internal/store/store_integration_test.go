package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saulini100/AI-Library--sub001/internal/server"
	"github.com/saulini100/AI-Library--sub001/internal/store"
)

func startPostgres(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "companion",
			"POSTGRES_PASSWORD": "companion",
			"POSTGRES_DB":       "companion",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(1).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get mapped port: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get host: %v", err)
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", "companion", "companion", host, port.Port(), "companion")
	return pg, dsn
}

func findMigrationsDir(t *testing.T) string {
	t.Helper()
	cwd, _ := os.Getwd()
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(cwd, "migrations")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return "file://" + candidate
		}
		cwd = filepath.Dir(cwd)
	}
	t.Fatalf("could not locate migrations directory from test cwd")
	return ""
}

func newStore(t *testing.T, ctx context.Context, dsn string) *store.Store {
	t.Helper()
	migDir := findMigrationsDir(t)
	var migErr error
	for i := 0; i < 6; i++ {
		migErr = server.Migrate(migDir, dsn, "up", 0)
		if migErr == nil {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}
	if migErr != nil {
		t.Fatalf("migrate up failed after retries: %v", migErr)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store new failed: %v", err)
	}
	return st
}

func TestDocumentsAndPassagesFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg, dsn := startPostgres(t, ctx)
	defer func() { _ = pg.Terminate(ctx) }()

	st := newStore(t, ctx, dsn)
	defer st.Close()

	userID, err := st.CreateUser(ctx, "alice@example.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := st.GetUserByEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("get user: %v", err)
	}
	if _, err := st.GetUserByEmail(ctx, "nobody@example.com"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	docID, err := st.CreateDocument(ctx, userID, "Walden", "en")
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	for ch := 1; ch <= 2; ch++ {
		for para := 1; para <= 3; para++ {
			_, err := st.AddPassage(ctx, store.Passage{
				DocumentID: docID, Chapter: ch, Paragraph: para,
				Text: fmt.Sprintf("chapter %d paragraph %d", ch, para),
			})
			if err != nil {
				t.Fatalf("add passage: %v", err)
			}
		}
	}

	doc, err := st.GetDocument(ctx, docID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Chapters != 2 {
		t.Fatalf("expected 2 chapters, got %d", doc.Chapters)
	}

	passages, err := st.ListPassages(ctx, docID)
	if err != nil {
		t.Fatalf("list passages: %v", err)
	}
	if len(passages) != 6 {
		t.Fatalf("expected 6 passages, got %d", len(passages))
	}
	if passages[0].Chapter != 1 || passages[0].Paragraph != 1 {
		t.Fatalf("expected reading order, got ch %d para %d first", passages[0].Chapter, passages[0].Paragraph)
	}

	docs, err := st.ListDocuments(ctx, userID)
	if err != nil || len(docs) != 1 {
		t.Fatalf("list documents: %v (%d)", err, len(docs))
	}
}

func TestStudyPatternsAndActivity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg, dsn := startPostgres(t, ctx)
	defer func() { _ = pg.Terminate(ctx) }()

	st := newStore(t, ctx, dsn)
	defer st.Close()

	userID, err := st.CreateUser(ctx, "bob@example.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	docID, err := st.CreateDocument(ctx, userID, "Meditations", "en")
	if err != nil {
		t.Fatalf("create document: %v", err)
	}

	if err := st.RecordReadingSession(ctx, userID, docID, 3, 20*time.Minute); err != nil {
		t.Fatalf("record session: %v", err)
	}
	if err := st.RecordReadingSession(ctx, userID, docID, 4, 10*time.Minute); err != nil {
		t.Fatalf("record session: %v", err)
	}
	if err := st.LogQuery(ctx, userID, "what is stoicism", "an answer", 0.9, false); err != nil {
		t.Fatalf("log query: %v", err)
	}

	patterns, err := st.GetStudyPatterns(ctx, userID)
	if err != nil {
		t.Fatalf("study patterns: %v", err)
	}
	if _, ok := patterns["recent_chapters"]; !ok {
		t.Fatalf("expected recent_chapters in patterns: %v", patterns)
	}
	topics, ok := patterns["focus_topics"].([]string)
	if !ok || len(topics) != 1 || topics[0] != "what is stoicism" {
		t.Fatalf("unexpected focus_topics: %v", patterns["focus_topics"])
	}

	active, err := st.RecentlyActiveUsers(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("recently active: %v", err)
	}
	if len(active) != 1 || active[0] != userID {
		t.Fatalf("expected [%d], got %v", userID, active)
	}

	summary, err := st.RecentActivitySummary(ctx, userID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("activity summary: %v", err)
	}
	if summary == "" || summary == "no recorded reading activity\n" {
		t.Fatalf("expected non-empty summary, got %q", summary)
	}
}

func TestAnnotationsAndBookmarks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg, dsn := startPostgres(t, ctx)
	defer func() { _ = pg.Terminate(ctx) }()

	st := newStore(t, ctx, dsn)
	defer st.Close()

	userID, err := st.CreateUser(ctx, "carol@example.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	docID, err := st.CreateDocument(ctx, userID, "Essays", "en")
	if err != nil {
		t.Fatalf("create document: %v", err)
	}

	if _, err := st.CreateAnnotation(ctx, store.Annotation{
		UserID: userID, DocumentID: docID, Chapter: 1, Paragraph: 2, Note: "important",
	}); err != nil {
		t.Fatalf("create annotation: %v", err)
	}
	notes, err := st.ListAnnotations(ctx, userID, docID)
	if err != nil || len(notes) != 1 || notes[0].Note != "important" {
		t.Fatalf("list annotations: %v (%v)", err, notes)
	}

	if _, err := st.CreateBookmark(ctx, store.Bookmark{
		UserID: userID, DocumentID: docID, Chapter: 2, Title: "resume here",
	}); err != nil {
		t.Fatalf("create bookmark: %v", err)
	}
	marks, err := st.ListBookmarks(ctx, userID, docID)
	if err != nil || len(marks) != 1 || marks[0].Title != "resume here" {
		t.Fatalf("list bookmarks: %v (%v)", err, marks)
	}
}

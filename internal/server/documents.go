package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/saulini100/AI-Library--sub001/internal/rag"
	"github.com/saulini100/AI-Library--sub001/internal/store"
)

// DocumentsHandler serves document upload, browsing, annotations,
// bookmarks and reading sessions. Uploaded passages are persisted and
// indexed for retrieval in the same request.
type DocumentsHandler struct {
	Store    *store.Store
	Index    *rag.Index
	Patterns *store.PatternCache
}

func (h *DocumentsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/annotations", h.createAnnotation)
	g.GET("/:id/annotations", h.listAnnotations)
	g.POST("/:id/bookmarks", h.createBookmark)
	g.GET("/:id/bookmarks", h.listBookmarks)
	g.POST("/:id/sessions", h.recordSession)
}

func (h *DocumentsHandler) create(c echo.Context) error {
	var req CreateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" || len(req.Passages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "title and passages are required")
	}
	if req.Language == "" {
		req.Language = "en"
	}
	ctx := c.Request().Context()
	docID, err := h.Store.CreateDocument(ctx, userID(c), req.Title, req.Language)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for _, p := range req.Passages {
		if p.Text == "" {
			continue
		}
		if _, err := h.Store.AddPassage(ctx, store.Passage{
			DocumentID: docID,
			Chapter:    p.Chapter,
			Paragraph:  p.Paragraph,
			Text:       p.Text,
		}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if err := h.Index.Add(rag.Passage{
			DocumentID: docID,
			Chapter:    p.Chapter,
			Paragraph:  p.Paragraph,
			Text:       p.Text,
		}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, map[string]int64{"id": docID})
}

func (h *DocumentsHandler) list(c echo.Context) error {
	docs, err := h.Store.ListDocuments(c.Request().Context(), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *DocumentsHandler) get(c echo.Context) error {
	id, err := docParam(c)
	if err != nil {
		return err
	}
	doc, err := h.Store.GetDocument(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if doc.UserID != userID(c) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *DocumentsHandler) createAnnotation(c echo.Context) error {
	id, err := docParam(c)
	if err != nil {
		return err
	}
	var req AnnotationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Note == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "note is required")
	}
	annID, err := h.Store.CreateAnnotation(c.Request().Context(), store.Annotation{
		UserID:     userID(c),
		DocumentID: id,
		Chapter:    req.Chapter,
		Paragraph:  req.Paragraph,
		Note:       req.Note,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]int64{"id": annID})
}

func (h *DocumentsHandler) listAnnotations(c echo.Context) error {
	id, err := docParam(c)
	if err != nil {
		return err
	}
	notes, err := h.Store.ListAnnotations(c.Request().Context(), userID(c), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if notes == nil {
		notes = []store.Annotation{}
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *DocumentsHandler) createBookmark(c echo.Context) error {
	id, err := docParam(c)
	if err != nil {
		return err
	}
	var req BookmarkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	bmID, err := h.Store.CreateBookmark(c.Request().Context(), store.Bookmark{
		UserID:     userID(c),
		DocumentID: id,
		Chapter:    req.Chapter,
		Title:      req.Title,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]int64{"id": bmID})
}

func (h *DocumentsHandler) listBookmarks(c echo.Context) error {
	id, err := docParam(c)
	if err != nil {
		return err
	}
	marks, err := h.Store.ListBookmarks(c.Request().Context(), userID(c), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if marks == nil {
		marks = []store.Bookmark{}
	}
	return c.JSON(http.StatusOK, marks)
}

func (h *DocumentsHandler) recordSession(c echo.Context) error {
	id, err := docParam(c)
	if err != nil {
		return err
	}
	var req ReadingSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DurationSeconds <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "duration_seconds must be positive")
	}
	uid := userID(c)
	ctx := c.Request().Context()
	if err := h.Store.RecordReadingSession(ctx, uid, id, req.Chapter, time.Duration(req.DurationSeconds)*time.Second); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Patterns != nil {
		h.Patterns.Invalidate(ctx, uid)
	}
	return c.NoContent(http.StatusCreated)
}

func docParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	return id, nil
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/saulini100/AI-Library--sub001/internal/agent/core"
	"github.com/saulini100/AI-Library--sub001/internal/store"
)

// QueryHandler routes user questions through the orchestrator.
type QueryHandler struct {
	Orch  *core.Orchestrator
	Store *store.Store
}

func (h *QueryHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.POST("", h.query)
}

func (h *QueryHandler) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	uid := userID(c)
	resp, err := h.Orch.CoordinateQuery(c.Request().Context(), core.CoordinateRequest{
		Query:      req.Query,
		UserID:     uid,
		DocumentID: req.DocumentID,
		Chapter:    req.Chapter,
		Language:   req.Language,
		Agent:      req.Agent,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.Store != nil {
		// best effort, the answer is already on its way out
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = h.Store.LogQuery(ctx, uid, req.Query, resp.Answer, resp.Confidence, resp.FromCache)
		}()
	}
	return c.JSON(http.StatusOK, resp)
}

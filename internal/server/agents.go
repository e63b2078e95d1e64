package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/saulini100/AI-Library--sub001/internal/agent/core"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
	"github.com/saulini100/AI-Library--sub001/internal/agent/telemetry"
)

// AgentsHandler exposes direct access to the agent pool: fire-and-forget
// dispatch, blocking ask, runtime status and a live event stream.
type AgentsHandler struct {
	Orch      *core.Orchestrator
	Telemetry *telemetry.Telemetry
}

func (h *AgentsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.POST("/dispatch", h.dispatch)
	g.POST("/ask", h.ask)
	g.GET("/status", h.status)
	g.GET("/events", h.events)
}

func (h *AgentsHandler) dispatch(c echo.Context) error {
	var req DispatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Agent == "" || req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent and type are required")
	}
	task := &runtime.Task{
		Type:     req.Type,
		Priority: req.Priority,
		Payload:  req.Payload,
	}
	taskID, err := h.Orch.Dispatch(c.Request().Context(), req.Agent, task)
	if errors.Is(err, core.ErrAgentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (h *AgentsHandler) ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Agent == "" || req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent and type are required")
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	task := &runtime.Task{
		Type:     req.Type,
		Priority: req.Priority,
		Payload:  req.Payload,
	}
	result, err := h.Orch.DispatchAndAwait(c.Request().Context(), req.Agent, task, timeout)
	if errors.Is(err, core.ErrAgentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *AgentsHandler) status(c echo.Context) error {
	analytics := h.Orch.GetAnalytics()
	return c.JSON(http.StatusOK, analytics.Runtimes)
}

// events streams orchestrator events as server-sent events until the
// client disconnects.
func (h *AgentsHandler) events(c echo.Context) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	events, cancel := h.Orch.Bus().Subscribe()
	defer cancel()

	ctx := c.Request().Context()
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if _, err := fmt.Fprint(resp, ": keepalive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

// AnalyticsHandler reports orchestrator and model usage analytics.
type AnalyticsHandler struct {
	Orch      *core.Orchestrator
	Telemetry *telemetry.Telemetry
}

func (h *AnalyticsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.GET("", h.analytics)
	g.GET("/costs", h.costs)
}

func (h *AnalyticsHandler) analytics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Orch.GetAnalytics())
}

func (h *AnalyticsHandler) costs(c echo.Context) error {
	if h.Telemetry == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "telemetry disabled")
	}
	return c.JSON(http.StatusOK, h.Telemetry.GetCostSummary())
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/saulini100/AI-Library--sub001/config"
	"github.com/saulini100/AI-Library--sub001/internal/agent/core"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
	"github.com/saulini100/AI-Library--sub001/internal/agent/telemetry"
)

func startTestOrchestrator(t *testing.T) (*core.Orchestrator, *digestAgent) {
	t.Helper()
	cfg := schedulerTestConfig()
	tel := telemetry.NewTelemetry(config.TelemetryConfig{}, nil)
	orch := core.NewOrchestrator(cfg, nil, nil, tel)
	agent := &digestAgent{}
	ctx := context.Background()
	if err := orch.RegisterAgent(ctx, runtime.NewRuntime(agent, cfg.Agents.Definitions["insights"])); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = orch.Stop(context.Background()) })
	return orch, agent
}

func TestDispatchHandlerAcceptsTask(t *testing.T) {
	e := echo.New()
	orch, _ := startTestOrchestrator(t)
	handler := &AgentsHandler{Orch: orch}

	req := httptest.NewRequest(http.MethodPost, "/api/agents/dispatch",
		strings.NewReader(`{"agent":"insights","type":"insight-generation","priority":3,"payload":{"text":"a passage"}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := handler.dispatch(e.NewContext(req, rec)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["task_id"] == "" {
		t.Fatalf("expected task_id in response")
	}
}

func TestDispatchHandlerUnknownAgent(t *testing.T) {
	e := echo.New()
	orch, _ := startTestOrchestrator(t)
	handler := &AgentsHandler{Orch: orch}

	req := httptest.NewRequest(http.MethodPost, "/api/agents/dispatch",
		strings.NewReader(`{"agent":"nonexistent","type":"insight-generation"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := handler.dispatch(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestAskHandlerReturnsResult(t *testing.T) {
	e := echo.New()
	orch, _ := startTestOrchestrator(t)
	handler := &AgentsHandler{Orch: orch}

	req := httptest.NewRequest(http.MethodPost, "/api/agents/ask",
		strings.NewReader(`{"agent":"insights","type":"insight-generation","payload":{"text":"a passage"}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := handler.ask(e.NewContext(req, rec)); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result runtime.TaskResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.AgentName != "insights" {
		t.Fatalf("expected result from insights, got %q", result.AgentName)
	}
}

func TestStatusHandlerListsRuntimes(t *testing.T) {
	e := echo.New()
	orch, _ := startTestOrchestrator(t)
	handler := &AgentsHandler{Orch: orch}

	req := httptest.NewRequest(http.MethodGet, "/api/agents/status", nil)
	rec := httptest.NewRecorder()

	if err := handler.status(e.NewContext(req, rec)); err != nil {
		t.Fatalf("status: %v", err)
	}
	var snapshots map[string]core.RuntimeSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := snapshots["insights"]; !ok {
		t.Fatalf("expected insights runtime in status, got %v", snapshots)
	}
}

package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/saulini100/AI-Library--sub001/config"
	"github.com/saulini100/AI-Library--sub001/internal/agent/agents"
	"github.com/saulini100/AI-Library--sub001/internal/agent/backend"
	"github.com/saulini100/AI-Library--sub001/internal/agent/core"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
	"github.com/saulini100/AI-Library--sub001/internal/agent/telemetry"
	"github.com/saulini100/AI-Library--sub001/internal/rag"
	"github.com/saulini100/AI-Library--sub001/internal/store"
)

// Run wires the whole companion together and serves HTTP on addr. An
// empty addr falls back to the configured listen address.
func Run(configPath, addr string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	promReg := prometheus.NewRegistry()
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Storage.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.Host != "" {
		rdb, err = store.ConnectRedis(ctx, cfg.Storage.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	} else {
		log.Printf("redis not configured, pattern cache and scheduler locks run in-process")
	}
	patterns := store.NewPatternCache(rdb, st, cfg.Storage.Redis.PatternTTL)

	tel := telemetry.NewTelemetry(cfg.Telemetry, promReg)
	defer tel.Shutdown()

	provider, err := backend.NewLLMProvider(cfg.Backends.Provider)
	if err != nil {
		return err
	}
	registry, err := backend.NewRegistry(cfg.Backends)
	if err != nil {
		return err
	}
	exec := backend.NewExecutor(registry, provider, tel)

	index, err := rag.NewIndex()
	if err != nil {
		return err
	}
	if err := warmIndex(ctx, st, index); err != nil {
		return fmt.Errorf("index warm-up: %w", err)
	}
	engine := rag.NewEngine(index, exec)

	orch := core.NewOrchestrator(cfg, engine, patterns, tel)
	for name, agent := range agents.NewAll(exec, index) {
		agentCfg, ok := cfg.Agents.Definitions[name]
		if !ok {
			return fmt.Errorf("agent %s has no configuration", name)
		}
		if err := orch.RegisterAgent(ctx, runtime.NewRuntime(agent, agentCfg)); err != nil {
			return err
		}
	}
	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = orch.Stop(context.Background()) }()

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret or AILIBRARY_JWT_SECRET)")
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	dh := &DocumentsHandler{Store: st, Index: index, Patterns: patterns}
	dh.Register(api.Group("/documents"), auth.Secret)

	qh := &QueryHandler{Orch: orch, Store: st}
	qh.Register(api.Group("/query"), auth.Secret)

	ah := &AgentsHandler{Orch: orch, Telemetry: tel}
	ah.Register(api.Group("/agents"), auth.Secret)

	anh := &AnalyticsHandler{Orch: orch, Telemetry: tel}
	anh.Register(api.Group("/analytics"), auth.Secret)

	if cfg.Scheduler.Enabled {
		sched := NewDigestScheduler(cfg.Scheduler, st, store.NewLocker(rdb), orch)
		sched.Start()
		defer sched.Stop()
	}

	if addr == "" {
		addr = cfg.Server.Listen
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// warmIndex rebuilds the in-memory search index from stored passages.
func warmIndex(ctx context.Context, st *store.Store, index *rag.Index) error {
	docIDs, err := st.AllDocumentIDs(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, docID := range docIDs {
		passages, err := st.ListPassages(ctx, docID)
		if err != nil {
			return err
		}
		for _, p := range passages {
			if err := index.Add(rag.Passage{
				DocumentID: p.DocumentID,
				Chapter:    p.Chapter,
				Paragraph:  p.Paragraph,
				Text:       p.Text,
			}); err != nil {
				return err
			}
			total++
		}
	}
	if total > 0 {
		log.Printf("indexed %d passages across %d documents", total, len(docIDs))
	}
	return nil
}

package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/saulini100/AI-Library--sub001/internal/agent/telemetry"
)

// Executor runs generations against the registry's backends with
// adaptive timeouts and a single fast-fallback retry on timeout.
type Executor struct {
	registry  *Registry
	provider  LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewExecutor creates an executor over the given registry and provider.
func NewExecutor(registry *Registry, provider LLMProvider, tel *telemetry.Telemetry) *Executor {
	return &Executor{
		registry:  registry,
		provider:  provider,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[BACKEND] ", log.LstdFlags),
	}
}

// Registry exposes the underlying registry for stats and routing queries.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute selects a backend for the task type and runs the prompt.
// A timed-out call is retried exactly once on the first fast fallback
// that differs from the failed backend, with its own timeout reduced
// to 80 percent. Non-timeout failures are returned as-is.
//
// An options["timeout"] time.Duration replaces the adaptive timeout
// for both the primary and the fallback attempt.
func (e *Executor) Execute(ctx context.Context, taskType, prompt string, options map[string]interface{}) (Result, error) {
	explicit, options := popTimeout(options)

	primary := e.registry.Select(taskType)
	timeout := e.registry.Timeout(primary, taskType)
	if explicit > 0 {
		timeout = explicit
	}

	res, err := e.attempt(ctx, primary, taskType, prompt, options, timeout, false)
	if err == nil {
		return res, nil
	}

	var te *TimeoutError
	if !errors.As(err, &te) {
		return Result{}, err
	}

	fallback := ""
	for _, name := range e.registry.FastFallbacks() {
		if name != primary {
			fallback = name
			break
		}
	}
	if fallback == "" {
		return Result{}, err
	}

	e.logger.Printf("backend %s timed out on %s, falling back to %s", primary, taskType, fallback)

	reduced := time.Duration(float64(e.registry.Timeout(fallback, taskType)) * 0.8)
	if explicit > 0 {
		reduced = explicit
	}
	res, ferr := e.attempt(ctx, fallback, taskType, prompt, options, reduced, true)
	if ferr != nil {
		return Result{}, fmt.Errorf("fallback %s after timeout on %s: %w", fallback, primary, ferr)
	}
	return res, nil
}

// popTimeout strips a caller-supplied timeout from the option set so it
// never reaches the provider. Unrecognized value types are ignored.
func popTimeout(options map[string]interface{}) (time.Duration, map[string]interface{}) {
	raw, ok := options["timeout"]
	if !ok {
		return 0, options
	}
	stripped := make(map[string]interface{}, len(options)-1)
	for k, v := range options {
		if k == "timeout" {
			continue
		}
		stripped[k] = v
	}
	d, _ := raw.(time.Duration)
	return d, stripped
}

func (e *Executor) attempt(ctx context.Context, name, taskType, prompt string, options map[string]interface{}, timeout time.Duration, isFallback bool) (Result, error) {
	profile, ok := e.registry.Profile(name)
	if !ok {
		return Result{}, fmt.Errorf("backend %s not in catalog", name)
	}

	opts := make(map[string]interface{}, len(options)+2)
	for k, v := range options {
		opts[k] = v
	}
	if _, ok := opts["temperature"]; !ok {
		opts["temperature"] = profile.Temperature
	}
	if _, ok := opts["max_tokens"]; !ok && profile.MaxTokens > 0 {
		opts["max_tokens"] = profile.MaxTokens
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	text, inTok, outTok, err := e.provider.GenerateWithTokens(attemptCtx, prompt, profile.APIName, opts)
	elapsed := time.Since(start)

	timedOut := err != nil && attemptCtx.Err() == context.DeadlineExceeded
	e.registry.RecordOutcome(name, err == nil, elapsed)

	cost := telemetry.CalculateCost(inTok, outTok, profile.CostPer1KInput, profile.CostPer1KOutput)
	if e.telemetry != nil {
		e.telemetry.RecordBackendEvent(ctx, telemetry.BackendEvent{
			Backend:   name,
			TaskType:  taskType,
			Duration:  elapsed,
			Success:   err == nil,
			TimedOut:  timedOut,
			Fallback:  isFallback,
			TokensIn:  inTok,
			TokensOut: outTok,
			Cost:      cost,
		})
	}

	if timedOut {
		return Result{}, &TimeoutError{Backend: name, TaskType: taskType, Timeout: timeout}
	}
	if err != nil {
		return Result{}, fmt.Errorf("backend %s: %w", name, err)
	}

	return Result{
		Text:         text,
		Backend:      name,
		InputTokens:  inTok,
		OutputTokens: outTok,
		Cost:         cost,
		Duration:     elapsed,
		UsedFallback: isFallback,
	}, nil
}

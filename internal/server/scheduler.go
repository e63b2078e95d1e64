package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/saulini100/AI-Library--sub001/config"
	"github.com/saulini100/AI-Library--sub001/internal/agent/core"
	"github.com/saulini100/AI-Library--sub001/internal/agent/runtime"
	"github.com/saulini100/AI-Library--sub001/internal/store"
)

// DigestScheduler periodically dispatches study-digest tasks for
// recently active readers. A distributed lock keeps multiple instances
// from producing duplicate digests.
type DigestScheduler struct {
	Cfg    config.SchedulerConfig
	Store  *store.Store
	Locker *store.Locker
	Orch   *core.Orchestrator

	logger  *log.Logger
	stop    chan struct{}
	mu      sync.Mutex
	lastRun time.Time
}

func NewDigestScheduler(cfg config.SchedulerConfig, st *store.Store, locker *store.Locker, orch *core.Orchestrator) *DigestScheduler {
	return &DigestScheduler{
		Cfg:    cfg,
		Store:  st,
		Locker: locker,
		Orch:   orch,
		logger: log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		stop:   make(chan struct{}),
	}
}

func (s *DigestScheduler) Start() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			select {
			case <-s.stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick(time.Now())
			}
		}
	}()
}

func (s *DigestScheduler) Stop() {
	close(s.stop)
}

func (s *DigestScheduler) tick(now time.Time) {
	s.mu.Lock()
	last := s.lastRun
	due := isDue(s.Cfg.CronSpec, last, now)
	if due {
		s.lastRun = now
	}
	s.mu.Unlock()
	if !due {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ok, err := s.Locker.Acquire(ctx, "study-digest", 30*time.Minute)
	if err != nil {
		s.logger.Printf("digest lock: %v", err)
		return
	}
	if !ok {
		return
	}

	lookback := time.Duration(s.Cfg.LookbackHours) * time.Hour
	since := now.Add(-lookback)
	users, err := s.Store.RecentlyActiveUsers(ctx, since)
	if err != nil {
		s.logger.Printf("digest users: %v", err)
		return
	}
	s.logger.Printf("dispatching study digests for %d users", len(users))
	for _, uid := range users {
		activity, err := s.Store.RecentActivitySummary(ctx, uid, since)
		if err != nil {
			s.logger.Printf("digest activity for user %d: %v", uid, err)
			continue
		}
		task := &runtime.Task{
			Type: "study-digest",
			Payload: map[string]interface{}{
				"user_id":  uid,
				"activity": activity,
			},
		}
		if _, err := s.Orch.Dispatch(ctx, s.Cfg.Agent, task); err != nil {
			s.logger.Printf("digest dispatch for user %d: %v", uid, err)
		}
	}
}

// isDue determines whether a job with cronSpec should run now given its
// last run time. Supports "@daily", "@hourly" and 5-field cron specs.
func isDue(cronSpec string, last, now time.Time) bool {
	switch cronSpec {
	case "@daily":
		return last.IsZero() || now.Sub(last) >= 24*time.Hour
	case "@hourly":
		return last.IsZero() || now.Sub(last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// invalid spec behaves as @daily
			return last.IsZero() || now.Sub(last) >= 24*time.Hour
		}
		if last.IsZero() {
			return true
		}
		return !expr.Next(last).After(now)
	}
}

// Package executions exposes the application-level execution service: it
// validates requests, throttles callers, drives the scratch pipeline, and
// records run history.
package executions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/app/storage"
	"github.com/dasudiy/scratchpadsharp/internal/scratch"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/runner"
	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

// ErrRateLimited is returned when a caller exceeds its execution budget.
var ErrRateLimited = errors.New("execution rate limit exceeded")

// Service coordinates executions for API callers.
type Service struct {
	pipeline *scratch.Pipeline
	store    storage.ExecutionStore
	log      *logger.Logger

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	burst     int

	defaults execution.Config
}

// New constructs the execution service. The store may be nil, in which case
// history is not recorded.
func New(pipeline *scratch.Pipeline, store storage.ExecutionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("executions")
	}
	return &Service{
		pipeline:  pipeline,
		store:     store,
		log:       log,
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Inf,
	}
}

// WithRateLimit throttles each caller key to perSecond executions with the
// given burst.
func (s *Service) WithRateLimit(perSecond float64, burst int) *Service {
	s.limiterMu.Lock()
	s.rateLimit = rate.Limit(perSecond)
	s.burst = burst
	s.limiters = make(map[string]*rate.Limiter)
	s.limiterMu.Unlock()
	return s
}

// WithDefaults sets server-side defaults merged into every request. Request
// values win; only unset fields fall back.
func (s *Service) WithDefaults(cfg execution.Config) *Service {
	s.defaults = cfg
	return s
}

// Run executes one request on behalf of callerKey and returns both the live
// result and the persisted record.
func (s *Service) Run(ctx context.Context, callerKey string, req execution.Request, obs runner.Observers) (execution.Result, execution.Record, error) {
	if req.Source == "" {
		return execution.Result{}, execution.Record{}, fmt.Errorf("source is required")
	}
	if !s.allow(callerKey) {
		return execution.Result{}, execution.Record{}, ErrRateLimited
	}

	cfg := req.Config
	if cfg.Timeout <= 0 {
		cfg.Timeout = s.defaults.Timeout
	}
	if len(cfg.DefaultImports) == 0 {
		cfg.DefaultImports = s.defaults.DefaultImports
	}
	if cfg.ConnectionString == "" {
		cfg.ConnectionString = s.defaults.ConnectionString
	}

	res, err := s.pipeline.Execute(ctx, req.Source, cfg, obs)
	if err != nil {
		return execution.Result{}, execution.Record{}, err
	}

	rec := execution.Record{
		Source:      req.Source,
		Success:     res.Success,
		Output:      res.Output,
		Error:       res.Error,
		Diagnostics: res.Diagnostics,
		Duration:    res.Duration,
		CreatedAt:   time.Now().UTC(),
	}
	if s.store != nil {
		saved, err := s.store.SaveExecution(ctx, rec)
		if err != nil {
			// History is best-effort; the run already happened.
			s.log.WithError(err).Warn("failed to record execution")
		} else {
			rec = saved
		}
	}

	s.log.WithField("execution_id", rec.ID).
		WithField("success", res.Success).
		Info("execution completed")
	return res, rec, nil
}

// Get returns one recorded execution.
func (s *Service) Get(ctx context.Context, id string) (execution.Record, error) {
	if s.store == nil {
		return execution.Record{}, storage.ErrNotFound
	}
	return s.store.GetExecution(ctx, id)
}

// List returns recent executions, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]execution.Record, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListExecutions(ctx, limit)
}

func (s *Service) allow(key string) bool {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	if s.rateLimit == rate.Inf {
		return true
	}
	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.rateLimit, s.burst)
		s.limiters[key] = limiter
	}
	return limiter.Allow()
}

// Package sweep runs the expiration sweep on a cron schedule.
package sweep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Expirer transitions stale open jobs to expired.
type Expirer interface {
	ExpireJobs(ctx context.Context) (int, error)
}

// Result describes one sweep run.
type Result struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Expired   int           `json:"expired"`
	Error     string        `json:"error,omitempty"`
}

// Scheduler owns the cron runner for the sweep.
type Scheduler struct {
	expirer Expirer
	logger  *slog.Logger
	cron    *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	running int
	last    *Result
}

func New(expirer Expirer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		expirer: expirer,
		logger:  logger,
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: 5 * time.Minute,
	}
}

// ParseSchedule validates a cron spec. Seconds are optional.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start registers the sweep under spec and starts the cron runner.
func (s *Scheduler) Start(spec string) error {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunOnce(ctx)
	}))
	s.cron.Start()
	s.logger.Info("sweep scheduled", "schedule", spec, "next", schedule.Next(time.Now()))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce sweeps immediately and records the result.
func (s *Scheduler) RunOnce(ctx context.Context) Result {
	res := Result{StartedAt: time.Now()}
	s.mu.Lock()
	s.running++
	s.mu.Unlock()

	n, err := s.expirer.ExpireJobs(ctx)
	res.Duration = time.Since(res.StartedAt)
	res.Expired = n
	if err != nil {
		res.Error = err.Error()
		s.logger.ErrorContext(ctx, "sweep failed", "error", err)
	} else {
		s.logger.InfoContext(ctx, "sweep finished", "expired", n, "duration", res.Duration)
	}

	s.mu.Lock()
	s.running--
	s.last = &res
	s.mu.Unlock()
	return res
}

// Last returns the most recent run, nil before the first one.
func (s *Scheduler) Last() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// Running reports whether any sweep, scheduled or manual, is in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running > 0
}

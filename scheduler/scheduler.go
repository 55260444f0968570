package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

type job struct {
	cancel    context.CancelFunc
	recurring bool
}

// Scheduler runs named background tasks: recurring tickers (challenge
// sweep, leaderboard refresh) and one-shot delays. A panic in a task is
// logged and does not kill its loop.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*job
	root   context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// New creates a Scheduler. Stop cancels every registered task.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[string]*job),
		root:   ctx,
		cancel: cancel,
		logger: logger,
	}
}

func (s *Scheduler) run(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	fn()
}

// register replaces any existing job with the same name. Caller holds no lock.
func (s *Scheduler) register(name string, recurring bool) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.root.Done():
		return nil, false
	default:
	}
	if old, ok := s.jobs[name]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(s.root)
	s.jobs[name] = &job{cancel: cancel, recurring: recurring}
	return ctx, true
}

func (s *Scheduler) unregister(name string) {
	s.mu.Lock()
	delete(s.jobs, name)
	s.mu.Unlock()
}

// AddTicker runs fn every interval until the job is removed or the
// scheduler stops. Registering the same name again replaces the old job.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	ctx, ok := s.register(name, true)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(name, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered",
		zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay. Registering the same name again
// cancels the pending run.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	ctx, ok := s.register(name, false)
	if !ok {
		return
	}
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.run(name, fn)
			s.unregister(name)
		case <-ctx.Done():
		}
	}()
}

// Remove cancels the named job. Unknown names are a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		j.cancel()
		delete(s.jobs, name)
	}
}

// Stop cancels every job. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.cancel()
}

// ListTickers returns the names of the registered recurring jobs, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name, j := range s.jobs {
		if j.recurring {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

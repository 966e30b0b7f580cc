package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/josephlewis42/magpie/internal/metrics"
)

// Task is a periodic job.
type Task func(ctx context.Context) error

type scheduledTask struct {
	name     string
	interval time.Duration
	fn       Task
	lastRun  time.Time
	running  bool
}

// Scheduler runs tasks periodically. A task that is still running when it
// comes due again is not started a second time.
type Scheduler struct {
	logger *zap.Logger
	tick   time.Duration
	now    func() time.Time

	mu    sync.Mutex
	tasks []*scheduledTask
	wg    sync.WaitGroup
}

// NewScheduler creates a Scheduler that checks for due tasks every tick.
func NewScheduler(tick time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{logger: logger.Named("scheduler"), tick: tick, now: time.Now}
}

// Every registers fn to run every interval. Tasks registered before Run
// starts are due on the first tick.
func (s *Scheduler) Every(name string, interval time.Duration, fn Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &scheduledTask{name: name, interval: interval, fn: fn})
}

// Run wakes every tick and starts due tasks until ctx is cancelled, then
// waits for running tasks to finish.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.launchDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.launchDue(ctx)
		}
	}
}

func (s *Scheduler) launchDue(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, t := range s.tasks {
		if t.running {
			continue
		}
		if !t.lastRun.IsZero() && now.Sub(t.lastRun) < t.interval {
			continue
		}
		t.running = true
		t.lastRun = now
		s.wg.Add(1)
		go s.runTask(ctx, t)
	}
}

func (s *Scheduler) runTask(ctx context.Context, t *scheduledTask) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", zap.String("task", t.name), zap.Any("panic", r))
			metrics.RecordError("task")
		}
		s.mu.Lock()
		t.running = false
		s.mu.Unlock()
	}()

	s.logger.Debug("running task", zap.String("task", t.name))
	if err := t.fn(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("task failed", zap.String("task", t.name), zap.Error(err))
		metrics.RecordError("task")
	}
}

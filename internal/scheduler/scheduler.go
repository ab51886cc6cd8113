package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = 3 * time.Hour

// ErrStopped is returned when a stopped scheduler is started or rescheduled.
var ErrStopped = errors.New("scheduler stopped")

// Task is the work run on every tick. The context is not cancelled by Stop;
// a running task is allowed to finish.
type Task func(ctx context.Context)

// Scheduler runs a single task periodically. Runs never overlap.
type Scheduler struct {
	name   string
	task   Task
	logger *zap.Logger

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	job       *gocron.Job
	interval  time.Duration
	started   bool
	stopped   bool

	// halted is read by run without taking mu, which Stop holds while
	// waiting for the running task.
	halted atomic.Bool
	// runMu is held for the duration of a task run.
	runMu sync.Mutex
}

// New creates a new Scheduler.
func New(name string, interval time.Duration, task Task, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		name:      name,
		task:      task,
		logger:    logger.Named("scheduler").With(zap.String("job", name)),
		scheduler: s,
		interval:  normalize(interval),
	}
}

func normalize(interval time.Duration) time.Duration {
	if interval <= 0 {
		return DefaultInterval
	}
	return interval
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately. Calling Start again is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	job, err := s.scheduler.Every(s.interval).Do(s.run)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", s.name, err)
	}
	s.job = job
	s.scheduler.StartAsync()
	s.started = true

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Reschedule changes the period. It takes effect from the next cycle and
// does not trigger a run of its own. Before Start it only sets the interval.
func (s *Scheduler) Reschedule(interval time.Duration) error {
	interval = normalize(interval)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if interval == s.interval {
		return nil
	}
	if !s.started {
		s.interval = interval
		return nil
	}

	job, err := s.scheduler.Job(s.job).Every(interval).Update()
	if err != nil {
		return fmt.Errorf("reschedule %s: %w", s.name, err)
	}
	s.job = job
	s.interval = interval

	s.logger.Info("scheduler rescheduled", zap.Duration("interval", interval))
	return nil
}

// Stop cancels future runs and waits for a running task to finish. No task
// is invoked after Stop returns. Stop is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.halted.Store(true)
	if s.started {
		s.scheduler.Stop()
	}
	// Wait out a run the scheduler may have already handed off.
	s.runMu.Lock()
	s.runMu.Unlock()
	s.logger.Info("scheduler stopped")
}

// Interval returns the current period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// run keeps a panicking task from taking the schedule down with it.
func (s *Scheduler) run() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	if s.halted.Load() {
		return
	}
	s.logger.Debug("running scheduled task")
	s.task(context.Background())
}

// Package scheduler runs named background tasks at fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultMinSleep is the shortest pause between two runs of a task.
const DefaultMinSleep = time.Second

type task struct {
	name     string
	interval time.Duration
	delayed  bool
	fn       func(ctx context.Context) error
}

// Scheduler runs each task in its own loop. A run that takes longer than
// the interval is followed by a short pause instead of a full one.
type Scheduler struct {
	tasks    []task
	log      *slog.Logger
	minSleep time.Duration
}

// New creates an empty Scheduler.
func New(log *slog.Logger) *Scheduler {
	return &Scheduler{
		log:      log,
		minSleep: DefaultMinSleep,
	}
}

// Add registers a task that runs right away and then every interval.
// Must be called before Run.
func (s *Scheduler) Add(name string, interval time.Duration, fn func(ctx context.Context) error) {
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
}

// AddDelayed registers a task whose first run happens after one interval.
func (s *Scheduler) AddDelayed(name string, interval time.Duration, fn func(ctx context.Context) error) {
	s.tasks = append(s.tasks, task{name: name, interval: interval, delayed: true, fn: fn})
}

// Run starts all tasks and blocks until ctx is cancelled and every loop
// has returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range s.tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			s.loop(ctx, t)
		}(t)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	log := s.log.With("task", t.name)
	log.Info("task started", "interval", t.interval)

	if t.delayed && !sleep(ctx, t.interval) {
		return
	}
	for {
		start := time.Now()
		if err := s.runOnce(ctx, t); err != nil {
			taskRuns.WithLabelValues(t.name, "error").Inc()
			log.Error("task failed", "error", err)
		} else {
			taskRuns.WithLabelValues(t.name, "ok").Inc()
		}
		elapsed := time.Since(start)
		taskDuration.WithLabelValues(t.name).Observe(elapsed.Seconds())

		if !sleep(ctx, s.nextSleep(t.interval, elapsed)) {
			log.Info("task stopped")
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.fn(ctx)
}

func (s *Scheduler) nextSleep(interval, elapsed time.Duration) time.Duration {
	return max(s.minSleep, interval-elapsed)
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

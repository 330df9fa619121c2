// internal/app/system/tasks/runner.go
package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownJob is returned by RunOnce for a name that was never registered.
var ErrUnknownJob = errors.New("tasks: unknown job")

// Job is a background task run on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration // <= 0 runs the job once at start
	Timeout  time.Duration // per-run deadline; <= 0 means none
	Run      func(ctx context.Context) error
}

// Runner manages background job execution.
type Runner struct {
	logger   *zap.Logger
	jobs     []Job
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	running  atomic.Int32
	inFlight sync.Map // job name -> struct{}
}

// New creates a new task runner.
func New(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Register adds a job. Jobs registered after Start are not scheduled.
func (r *Runner) Register(job Job) {
	r.jobs = append(r.jobs, job)
}

// Names returns the registered job names in registration order.
func (r *Runner) Names() []string {
	out := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Name)
	}
	return out
}

// Start runs every registered job immediately and then on its interval.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, job)
	}

	r.logger.Info("background task runner started",
		zap.Strings("jobs", r.Names()))
}

// Stop cancels all jobs and waits for them within ctx's deadline. Returns
// ctx.Err() when jobs are still running at the deadline.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("background task runner stopped gracefully")
		return nil
	case <-ctx.Done():
		var stillRunning []string
		r.inFlight.Range(func(key, _ any) bool {
			stillRunning = append(stillRunning, key.(string))
			return true
		})
		r.logger.Warn("background task runner shutdown timed out",
			zap.Strings("jobs_still_running", stillRunning),
			zap.Int32("running_count", r.running.Load()))
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	r.execute(ctx, job)
	if job.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			r.execute(ctx, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job Job) {
	r.running.Add(1)
	r.inFlight.Store(job.Name, struct{}{})
	defer func() {
		r.running.Add(-1)
		r.inFlight.Delete(job.Name)
	}()

	start := time.Now()
	err := runWithTimeout(ctx, job)
	took := time.Since(start)

	switch {
	case err == nil:
		r.logger.Debug("job completed", zap.String("job", job.Name), zap.Duration("took", took))
	case ctx.Err() != nil:
		r.logger.Debug("job cancelled during shutdown", zap.String("job", job.Name), zap.Duration("took", took))
	default:
		r.logger.Error("job failed", zap.String("job", job.Name), zap.Duration("took", took), zap.Error(err))
	}
}

func runWithTimeout(ctx context.Context, job Job) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	return job.Run(ctx)
}

// RunOnce executes the named job immediately, outside the schedule.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name == name {
			return runWithTimeout(ctx, job)
		}
	}
	return ErrUnknownJob
}

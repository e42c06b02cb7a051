// Package schedule runs reconciliation passes and download snapshots on cron
// schedules.
//
// Every job is wrapped with cron.SkipIfStillRunning: a tick that fires while
// the previous run of the same job is still going is dropped. This is what
// keeps reconciliation passes for a project from overlapping.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// JobFunc is one unit of scheduled work.
type JobFunc func(ctx context.Context) error

// Scheduler owns a cron instance and the context its jobs run under.
type Scheduler struct {
	cron    *cron.Cron
	logger  *log.Logger
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Options configures a Scheduler.
type Options struct {
	// Timeout bounds a single job run. Zero means no limit.
	Timeout  time.Duration
	Location *time.Location // default UTC
	Logger   *log.Logger
}

// New creates a stopped Scheduler.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger:  opts.Logger,
		timeout: opts.Timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.cron = cron.New(
		cron.WithLocation(opts.Location),
		cron.WithLogger(cronLogger{opts.Logger}),
		cron.WithChain(cron.Recover(cronLogger{opts.Logger})),
	)
	return s
}

// Add registers job under name with a standard cron spec ("5 0 * * *",
// "@hourly", "@every 30m").
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger})).Then(cron.FuncJob(func() {
		s.run(name, job)
	}))
	_, err := s.cron.AddJob(spec, wrapped)
	if err != nil {
		return err
	}
	s.logger.Debug("scheduled job", "job", name, "spec", spec)
	return nil
}

// RunNow runs job once in the calling goroutine, outside the cron.
func (s *Scheduler) RunNow(name string, job JobFunc) {
	s.run(name, job)
}

func (s *Scheduler) run(name string, job JobFunc) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "err", err, "duration", time.Since(start).Round(time.Millisecond))
		return
	}
	s.logger.Debug("job finished", "job", name, "duration", time.Since(start).Round(time.Millisecond))
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running jobs and returns a context that is
// done when they have returned.
func (s *Scheduler) Stop() context.Context {
	done := s.cron.Stop()
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	return done
}

// Entries returns the next run time of every job, in registration order.
func (s *Scheduler) Entries() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Next
	}
	return out
}

// cronLogger adapts charmbracelet/log to cron.Logger.
type cronLogger struct{ l *log.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}

// Package scheduler triggers ingestion runs on a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"FeedIngestor/internal/ports"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronScheduler runs a job on a standard five-field cron expression in a fixed timezone.
// A tick that fires while the previous job is still running is skipped.
type CronScheduler struct {
	mu         sync.Mutex
	spec       string
	schedule   cron.Schedule
	location   *time.Location
	runOnStart bool
	logger     *slog.Logger
	cron       *cron.Cron
	// startup tracks the run-on-start job, which cron itself does not see.
	startup sync.WaitGroup
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates the expression up front.
func NewCronScheduler(spec string, location *time.Location, runOnStart bool, logger *slog.Logger) (*CronScheduler, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CronScheduler{
		spec:       spec,
		schedule:   schedule,
		location:   location,
		runOnStart: runOnStart,
		logger:     logger.With("component", "scheduler"),
	}, nil
}

// Next reports the first activation strictly after t.
func (c *CronScheduler) Next(t time.Time) time.Time {
	return c.schedule.Next(t.In(c.location))
}

// Start registers the job and starts the cron loop. Calling Start twice is a no-op.
// The loop runs until Stop; ctx is not watched here so that Stop alone decides when
// in-flight jobs have finished.
func (c *CronScheduler) Start(_ context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	log := cronLogger{logger: c.logger}
	cr := cron.New(
		cron.WithLocation(c.location),
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		cron.WithLogger(log),
	)
	if _, err := cr.AddFunc(c.spec, func() { job(time.Now().In(c.location)) }); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	cr.Start()
	c.cron = cr

	c.logger.Info("scheduler started", "cron", c.spec, "timezone", c.location.String(), "next", c.Next(time.Now()))

	if c.runOnStart {
		c.startup.Add(1)
		go func() {
			defer c.startup.Done()
			job(time.Now().In(c.location))
		}()
	}
	return nil
}

// Stop halts the cron loop and waits for running jobs, including the run-on-start
// job, until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()
	if cr == nil {
		return nil
	}

	cronDone := cr.Stop()
	startupDone := make(chan struct{})
	go func() {
		c.startup.Wait()
		close(startupDone)
	}()

	for _, done := range []<-chan struct{}{cronDone.Done(), startupDone} {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("wait for running job: %w", ctx.Err())
		}
	}
	c.logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

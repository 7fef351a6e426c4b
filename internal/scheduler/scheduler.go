// Package scheduler runs the daily routine reminders.
//
// Jobs are registered with cron expressions on a robfig/cron scheduler.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// Option configures a Scheduler.
type Option func(*opts)

type opts struct {
	location *time.Location
}

// WithLocation evaluates cron expressions in loc instead of the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(o *opts) { o.location = loc }
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler(options ...Option) *Scheduler {
	cfg := opts{location: time.Local}
	for _, opt := range options {
		opt(&cfg)
	}
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.location),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) (cron.EntryID, error) {
	return s.cron.AddFunc(expr, task)
}

// Remove unschedules a job. Unknown IDs are ignored.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Next returns the next run time of a job, or the zero time if it is unknown.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

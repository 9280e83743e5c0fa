package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Cron runs a job each time a five-field cron expression matches, evaluated
// in a fixed time zone.
type Cron struct {
	name string
	expr string
	loc  *time.Location
	job  func(context.Context)
	log  *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewCron(name, expr string, loc *time.Location, job func(context.Context), log *slog.Logger) (*Cron, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression %q for %s", expr, name)
	}
	if job == nil {
		return nil, fmt.Errorf("job must not be nil for %s", name)
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cron{
		name:  name,
		expr:  expr,
		loc:   loc,
		job:   job,
		log:   log.With("job", name),
		now:   time.Now,
		after: time.After,
	}, nil
}

// Next returns the first match strictly after t.
func (c *Cron) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(c.expr, t.In(c.loc), false)
}

// Run blocks until ctx is done, running the job at every match. A job
// that overruns the next match delays it rather than overlapping.
func (c *Cron) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		next, err := c.Next(c.now())
		if err != nil {
			return fmt.Errorf("computing next run of %s: %w", c.name, err)
		}
		c.log.Info("cron job scheduled", "expr", c.expr, "next", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return nil
		case <-c.after(next.Sub(c.now())):
		}

		start := time.Now()
		if runSafely(ctx, c.log, c.job) {
			c.log.Info("cron job completed", "duration_ms", time.Since(start).Milliseconds())
		}
	}
	return nil
}

package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"UpdatesDigest/internal/ports"
)

// CronScheduler fires a job at every instant matched by a cron expression,
// evaluated in the configured location.
type CronScheduler struct {
	spec string
	expr *cronexpr.Expression
	loc  *time.Location

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler parses spec. Five-field, six-field (with year) and
// seven-field (with seconds) forms as well as @daily style macros are accepted.
func NewCronScheduler(spec string, loc *time.Location) (*CronScheduler, error) {
	spec = strings.TrimSpace(spec)
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{spec: spec, expr: expr, loc: loc}, nil
}

// Next returns the first trigger strictly after t, or the zero time when the
// expression never fires again.
func (c *CronScheduler) Next(t time.Time) time.Time {
	return c.expr.Next(t.In(c.loc))
}

// Start launches the timer loop. Jobs run sequentially on the loop goroutine,
// so a slow run delays rather than overlaps the next one.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(ctx, job, c.stop, c.done)
	return nil
}

func (c *CronScheduler) loop(ctx context.Context, job func(time.Time), stop, done chan struct{}) {
	defer close(done)
	for {
		next := c.Next(time.Now())
		if next.IsZero() {
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			job(next)
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// Stop halts the loop and waits for an in-flight job until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

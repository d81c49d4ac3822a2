// Package host drives the dispatcher: it delivers queued notifications and
// produces the periodic ticks the picker and simulated effectors run on.
package host

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/applekraken/internal/logging"
)

// ErrTickBudgetExhausted is returned by Simulate when done never reports
// true within the allowed number of ticks.
var ErrTickBudgetExhausted = errors.New("host: tick budget exhausted")

// errFinished stops the run group once the done condition holds.
var errFinished = errors.New("host: finished")

// Dispatcher is the part of bus.Dispatcher the driver needs.
type Dispatcher interface {
	Tick(delta time.Duration, at time.Time)
	Flush() int
	Sync() int
	Run(ctx context.Context) error
}

// Driver owns the tick cadence.
type Driver struct {
	d        Dispatcher
	interval time.Duration
	log      logging.Logger
	now      func() time.Time
}

// NewDriver returns a driver ticking d every interval.
func NewDriver(d Dispatcher, interval time.Duration, log logging.Logger) *Driver {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Driver{
		d:        d,
		interval: interval,
		log:      logging.OrNoOp(log),
		now:      time.Now,
	}
}

// Interval returns the tick period.
func (dr *Driver) Interval() time.Duration { return dr.interval }

// Run ticks in real time until ctx is done.
func (dr *Driver) Run(ctx context.Context) error {
	return dr.RunUntil(ctx, nil)
}

// RunUntil ticks in real time until ctx is done or done reports true after a
// tick has been delivered. A nil done never finishes on its own. It returns
// nil on either exit.
func (dr *Driver) RunUntil(ctx context.Context, done func() bool) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dr.d.Run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(dr.interval)
		defer ticker.Stop()
		last := dr.now()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				now := dr.now()
				dr.d.Tick(now.Sub(last), now)
				last = now
				// Sync waits out a flush running in d.Run, so done sees
				// this tick's effects.
				dr.d.Sync()
				if done != nil && done() {
					dr.log.Debug("host: done condition met")
					return errFinished
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, errFinished) {
		return nil
	}
	return err
}

// Simulate ticks synchronously with a fixed delta, flushing after every
// tick, until done reports true. It never sleeps, so a simulated minute
// runs in microseconds. It fails with ErrTickBudgetExhausted after
// maxTicks ticks.
func (dr *Driver) Simulate(ctx context.Context, delta time.Duration, maxTicks int, done func() bool) (int, error) {
	dr.d.Flush()
	at := dr.now()
	for i := 0; i < maxTicks; i++ {
		if done() {
			return i, nil
		}
		if err := ctx.Err(); err != nil {
			return i, err
		}
		at = at.Add(delta)
		dr.d.Tick(delta, at)
		dr.d.Flush()
	}
	if done() {
		return maxTicks, nil
	}
	return maxTicks, ErrTickBudgetExhausted
}

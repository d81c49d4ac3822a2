package host

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/applekraken/internal/bus"
	"github.com/dusk-indust/applekraken/internal/config"
	"github.com/dusk-indust/applekraken/internal/logging"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
	"github.com/dusk-indust/applekraken/internal/world"
)

// System is a simulated orchard, one effector and the picker driving it,
// all wired to one dispatcher.
type System struct {
	Config   *config.Config
	Orchard  *world.Orchard
	Bus      *bus.Dispatcher
	Effector *world.SimEffector
	Picker   *orchestrator.Picker
	Driver   *Driver

	log    logging.Logger
	effSub *bus.Subscription
}

// SystemOptions configures NewSystem.
type SystemOptions struct {
	Logger    logging.Logger
	Observers []orchestrator.Observer
}

// NewSystem builds a System from a validated config. The effector is
// subscribed to ticks immediately; the picker is subscribed by Start.
func NewSystem(cfg *config.Config, opts SystemOptions) (*System, error) {
	log := logging.OrNoOp(opts.Logger)

	orchard, err := world.NewOrchard(cfg.Apples()...)
	if err != nil {
		return nil, fmt.Errorf("build orchard: %w", err)
	}

	d := bus.New(log)
	eff := world.NewSimEffector(cfg.EffectorConfig(log), orchard, d)

	picker, err := orchestrator.New(orchestrator.Options{
		Effector:      eff,
		Environment:   orchard,
		Dispatcher:    d,
		GatheringArea: cfg.Area(),
		Logger:        log,
		Observers:     opts.Observers,
	})
	if err != nil {
		return nil, err
	}

	return &System{
		Config:   cfg,
		Orchard:  orchard,
		Bus:      d,
		Effector: eff,
		Picker:   picker,
		Driver:   NewDriver(d, cfg.TickInterval, log),
		log:      log,
		effSub:   d.ConnectTick(eff),
	}, nil
}

// Start starts the picker lifecycle.
func (s *System) Start(ctx context.Context) error {
	return s.Picker.Start(ctx)
}

// Stop detaches the picker and the effector from the dispatcher.
func (s *System) Stop() {
	s.Picker.Stop()
	s.effSub.Disconnect()
}

// Done reports whether the current operation has finished.
func (s *System) Done() bool {
	return s.Picker.State() == orchestrator.StateDone
}

// RunOperation starts an operation and ticks in real time until it is done
// or ctx ends.
func (s *System) RunOperation(ctx context.Context) error {
	if err := s.Picker.StartAutomatedOperation(ctx); err != nil {
		return err
	}
	return s.Driver.RunUntil(ctx, s.Done)
}

// SimulateOperation starts an operation and runs it to completion on
// simulated time, ticking by the configured interval.
func (s *System) SimulateOperation(ctx context.Context, maxTicks int) (int, error) {
	if err := s.Picker.StartAutomatedOperation(ctx); err != nil {
		return 0, err
	}
	return s.Driver.Simulate(ctx, s.Driver.Interval(), maxTicks, s.Done)
}

// TicksFor estimates how many ticks an operation over n apples needs in
// the worst case, with headroom.
func (s *System) TicksFor(n int) int {
	e := s.Config.Effector
	per := e.PrepareTime + e.PickTime + e.RetrieveTime + 2*s.Driver.Interval()
	total := time.Duration(n+1) * per
	return int(total/s.Driver.Interval())*2 + 10
}

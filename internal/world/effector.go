package world

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dusk-indust/applekraken/internal/bus"
	"github.com/dusk-indust/applekraken/internal/geometry"
	"github.com/dusk-indust/applekraken/internal/logging"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

// ErrCommandRejected is returned when a command does not fit the effector's
// current state.
var ErrCommandRejected = errors.New("world: command rejected")

// Compile-time interface checks.
var (
	_ orchestrator.Effector = (*SimEffector)(nil)
	_ bus.TickHandler       = (*SimEffector)(nil)
)

// Failure reasons reported by the simulated effector.
const (
	ReasonOutOfReach = "out of reach"
	ReasonMissing    = "apple missing"
	ReasonSlipped    = "apple slipped"
)

// Publisher is the part of the dispatcher an effector reports through.
type Publisher interface {
	Publish(bus.Notification)
}

// EffectorConfig describes a simulated effector.
type EffectorConfig struct {
	ID    string
	Reach geometry.Obb

	// Durations of each motion, counted down by ticks. Zero completes on
	// the next tick.
	PrepareTime  time.Duration
	PickTime     time.Duration
	RetrieveTime time.Duration

	// FailureRate is the chance in [0,1] that a pick slips.
	FailureRate float64
	Seed        uint64

	// FailTargets forces a failure with the given reason for specific
	// apples.
	FailTargets map[orchestrator.TargetID]string

	Logger logging.Logger
}

type motion int

const (
	motionNone motion = iota
	motionPrepare
	motionPick
	motionRetrieve
)

// SimEffector is a time-stepped effector. Commands start a motion; OnTick
// counts it down and publishes the outcome when it ends. It never calls the
// picker directly.
type SimEffector struct {
	mu      sync.Mutex
	cfg     EffectorConfig
	orchard *Orchard
	pub     Publisher
	log     logging.Logger
	rng     *rand.Rand

	state     orchestrator.EffectorState
	motion    motion
	remaining time.Duration
	task      orchestrator.PickAppleTask
	failWith  string
	holding   bool
}

// NewSimEffector returns an idle effector working on orchard.
func NewSimEffector(cfg EffectorConfig, orchard *Orchard, pub Publisher) *SimEffector {
	return &SimEffector{
		cfg:     cfg,
		orchard: orchard,
		pub:     pub,
		log:     logging.OrNoOp(cfg.Logger),
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)),
		state:   orchestrator.EffectorIdle,
	}
}

// ID returns the address notifications are published under.
func (e *SimEffector) ID() string { return e.cfg.ID }

// ReachArea returns the configured reach volume.
func (e *SimEffector) ReachArea() geometry.Obb { return e.cfg.Reach }

// State returns the current effector state.
func (e *SimEffector) State() orchestrator.EffectorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PrepareForPicking starts moving an idle arm into picking posture. A ready
// arm answers again straight away.
func (e *SimEffector) PrepareForPicking(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.state == orchestrator.EffectorReadyForPicking:
		e.publish(bus.KindReadyForPicking, "")
		return nil
	case e.state != orchestrator.EffectorIdle || e.motion != motionNone:
		return fmt.Errorf("%w: prepare while %s", ErrCommandRejected, e.state)
	}
	e.start(motionPrepare, e.cfg.PrepareTime)
	return nil
}

// PickApple starts reaching for task.Target. Whether the pick will succeed
// is decided here and reported when the motion ends.
func (e *SimEffector) PickApple(ctx context.Context, task orchestrator.PickAppleTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != orchestrator.EffectorReadyForPicking {
		return fmt.Errorf("%w: pick while %s", ErrCommandRejected, e.state)
	}
	e.task = task
	e.failWith = e.judge(task.Target)
	e.state = orchestrator.EffectorPicking
	e.start(motionPick, e.cfg.PickTime)
	e.log.Debug("effector picking", "effector", e.cfg.ID, "target", task.Target)
	return nil
}

// FinishPicking starts bringing a picked apple back.
func (e *SimEffector) FinishPicking(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != orchestrator.EffectorPicking || !e.holding || e.motion != motionNone {
		return fmt.Errorf("%w: finish while %s", ErrCommandRejected, e.state)
	}
	e.state = orchestrator.EffectorRetrieving
	e.start(motionRetrieve, e.cfg.RetrieveTime)
	return nil
}

// OnTick advances the current motion by delta.
func (e *SimEffector) OnTick(delta time.Duration, _ time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.motion == motionNone {
		return
	}
	e.remaining -= delta
	if e.remaining > 0 {
		return
	}
	done := e.motion
	e.motion = motionNone
	e.remaining = 0

	switch done {
	case motionPrepare:
		e.state = orchestrator.EffectorReadyForPicking
		e.publish(bus.KindReadyForPicking, "")
	case motionPick:
		if e.failWith != "" {
			reason := e.failWith
			e.reset()
			e.publish(bus.KindPickingFailed, reason)
			return
		}
		e.holding = true
		e.publish(bus.KindApplePicked, "")
	case motionRetrieve:
		target := e.task.Target
		e.reset()
		if err := e.orchard.Harvest(target); err != nil {
			e.publish(bus.KindPickingFailed, ReasonMissing)
			return
		}
		e.log.Debug("effector retrieved", "effector", e.cfg.ID, "target", target)
		e.publish(bus.KindAppleRetrieved, "")
	}
}

// judge decides the outcome of picking target. Empty means success.
func (e *SimEffector) judge(target orchestrator.TargetID) string {
	if reason, ok := e.cfg.FailTargets[target]; ok {
		return reason
	}
	pos, ok := e.orchard.Position(target)
	if !ok {
		return ReasonMissing
	}
	if !e.cfg.Reach.IsZero() && !e.cfg.Reach.Contains(pos) {
		return ReasonOutOfReach
	}
	if e.cfg.FailureRate > 0 && e.rng.Float64() < e.cfg.FailureRate {
		return ReasonSlipped
	}
	return ""
}

func (e *SimEffector) start(m motion, d time.Duration) {
	e.motion = m
	e.remaining = d
}

// reset returns the arm to picking posture with empty hands.
func (e *SimEffector) reset() {
	e.state = orchestrator.EffectorReadyForPicking
	e.task = orchestrator.PickAppleTask{}
	e.failWith = ""
	e.holding = false
}

func (e *SimEffector) publish(kind bus.Kind, reason string) {
	e.pub.Publish(bus.Notification{Effector: e.cfg.ID, Kind: kind, Reason: reason})
}

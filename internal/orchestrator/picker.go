package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/applekraken/internal/bus"
	"github.com/dusk-indust/applekraken/internal/geometry"
	"github.com/dusk-indust/applekraken/internal/logging"
)

// Compile-time interface checks.
var (
	_ Controller              = (*Picker)(nil)
	_ bus.NotificationHandler = (*Picker)(nil)
	_ bus.TickHandler         = (*Picker)(nil)
)

// Picker is the orchestration state machine. Every entry point takes the
// same mutex, so a Picker is safe under a multi-threaded host as well as a
// serialized one. Effector commands are issued with the mutex held; an
// effector reports back only through the dispatcher, which queues.
type Picker struct {
	mu     sync.Mutex
	opts   Options
	log    logging.Logger
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	subs   []*bus.Subscription

	started   bool
	state     State
	queue     TaskQueue
	area      geometry.Obb
	preparing bool

	operationID string
	startedAt   time.Time
	elapsed     time.Duration
	succeeded   int
	failed      int
	lastFailure string
}

// New validates opts and returns an idle, unstarted Picker.
func New(opts Options) (*Picker, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Picker{
		opts:  opts,
		log:   logging.OrNoOp(opts.Logger),
		now:   now,
		state: StateIdle,
	}, nil
}

// Start subscribes the picker to the effector's notifications and to ticks
// and resolves the gathering area. ctx bounds every effector command issued
// from a notification or tick. On error nothing stays subscribed.
func (p *Picker) Start(ctx context.Context) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	area := p.opts.GatheringArea
	if area.IsZero() {
		area = p.opts.Effector.ReachArea()
	}
	if err := area.Validate(); err != nil {
		return fmt.Errorf("gathering area: %w", err)
	}

	var subs []*bus.Subscription
	defer func() {
		if err != nil {
			for _, s := range subs {
				s.Disconnect()
			}
		}
	}()
	subs = append(subs, p.opts.Dispatcher.ConnectNotifications(p.opts.Effector.ID(), p))
	subs = append(subs, p.opts.Dispatcher.ConnectTick(p))

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.subs = subs
	p.area = area
	p.started = true
	p.log.Info("picker started", "effector", p.opts.Effector.ID(), "area", area.String())
	return nil
}

// Stop releases every subscription. An operation still in flight is
// abandoned and the picker returns to idle. Stop is idempotent.
func (p *Picker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	for _, s := range p.subs {
		s.Disconnect()
	}
	p.subs = nil
	p.cancel()
	p.started = false
	p.preparing = false

	if p.state.Active() {
		p.log.Warn("picker stopped with operation in flight",
			"operation", p.operationID, "state", p.state, "remaining", p.queue.Len())
		p.lastFailure = "stopped"
		p.state = StateIdle
	}
	p.log.Info("picker stopped", "effector", p.opts.Effector.ID())
}

// StartAutomatedOperation discovers apples in the gathering area and starts
// picking them in discovery order. It fails with ErrOperationInProgress
// unless the picker is Idle or Done.
func (p *Picker) StartAutomatedOperation(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrNotStarted
	}
	if p.state.Active() {
		return fmt.Errorf("%w: state %s", ErrOperationInProgress, p.state)
	}
	if es := p.opts.Effector.State(); es.Busy() {
		return fmt.Errorf("%w: effector %s", ErrEffectorBusy, es)
	}

	prev := p.state
	if !p.transition(StateAwaitingDiscovery) {
		return fmt.Errorf("%w: state %s", ErrOperationInProgress, p.state)
	}

	targets, err := p.opts.Environment.QueryApplesInBox(ctx, p.area)
	if err != nil {
		p.state = prev
		return fmt.Errorf("query apples: %w", err)
	}

	p.queue.Populate(targets)
	p.operationID = uuid.NewString()
	p.startedAt = p.now()
	p.elapsed = 0
	p.succeeded, p.failed = 0, 0
	p.lastFailure = ""
	p.preparing = false

	p.log.Info("operation started", "operation", p.operationID, "apples", len(targets))
	p.emit(EventOperationStarted, PickAppleTask{}, "")

	if p.queue.IsEmpty() {
		p.finishLocked()
		return nil
	}
	p.transition(StateDispatching)
	p.pumpLocked()
	return nil
}

// ReportProgress returns the share of tasks removed from the queue. It
// reads exactly 1 only once the operation is Done.
func (p *Picker) ReportProgress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressLocked()
}

func (p *Picker) progressLocked() float64 {
	initial := p.queue.InitialCount()
	if initial == 0 {
		if p.state == StateDone {
			return 1
		}
		return 0
	}
	if p.state == StateDone {
		return 1
	}
	removed := initial - p.queue.Len()
	if removed >= initial {
		// Queue is empty but the machine has not settled yet.
		removed = initial - 1
	}
	return float64(removed) / float64(initial)
}

// State returns the current orchestration state.
func (p *Picker) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Snapshot returns a copy of the session.
func (p *Picker) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		OperationID:   p.operationID,
		State:         p.state,
		EffectorState: p.opts.Effector.State(),
		InitialCount:  p.queue.InitialCount(),
		Remaining:     p.queue.Len(),
		Succeeded:     p.succeeded,
		Failed:        p.failed,
		Pending:       p.queue.Targets(),
		Progress:      p.progressLocked(),
		LastFailure:   p.lastFailure,
		StartedAt:     p.startedAt,
		Elapsed:       p.elapsed,
	}
	if p.state == StateWaitingForPick || p.state == StateWaitingForRetrieval {
		if head, err := p.queue.Front(); err == nil {
			s.InFlight = head.Target
		}
	}
	return s
}

// EffectorReadyForPicking dispatches the head task when one is pending.
func (p *Picker) EffectorReadyForPicking() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.preparing = false
	if p.state != StateDispatching || p.queue.IsEmpty() {
		p.log.Debug("ready notification ignored", "state", p.state)
		return
	}
	p.dispatchLocked()
}

// ApplePicked moves the in-flight task on to retrieval.
func (p *Picker) ApplePicked() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateWaitingForPick {
		p.log.Warn("apple picked notification out of context", "state", p.state)
		return
	}
	head, err := p.queue.Front()
	if err != nil {
		p.log.Error("apple picked with empty queue", "error", err)
		return
	}
	p.transition(StateWaitingForRetrieval)
	p.emit(EventApplePicked, head, "")

	if err := p.opts.Effector.FinishPicking(p.ctx); err != nil {
		p.failHeadLocked(fmt.Sprintf("retrieve command rejected: %v", err))
	}
}

// AppleRetrieved completes the in-flight task.
func (p *Picker) AppleRetrieved() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateWaitingForRetrieval {
		p.log.Warn("apple retrieved notification out of context", "state", p.state)
		return
	}
	head, err := p.queue.Front()
	if err != nil {
		p.log.Error("apple retrieved with empty queue", "error", err)
		return
	}
	if err := p.queue.Pop(); err != nil {
		p.log.Error("pop failed", "error", err)
		return
	}
	p.succeeded++
	p.log.Info("apple retrieved", "operation", p.operationID, "target", head.Target, "remaining", p.queue.Len())
	p.emit(EventTaskSucceeded, head, "")
	p.afterPopLocked()
}

// PickingFailed abandons the in-flight task and moves on to the next one.
func (p *Picker) PickingFailed(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateWaitingForPick && p.state != StateWaitingForRetrieval {
		p.log.Warn("picking failed notification out of context", "state", p.state, "reason", reason)
		return
	}
	p.failHeadLocked(reason)
}

// OnTick accounts elapsed time and polls the effector when a task is
// waiting to be dispatched.
func (p *Picker) OnTick(delta time.Duration, _ time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Active() {
		p.elapsed += delta
	}
	if p.state == StateDispatching {
		p.pumpLocked()
	}
}

// pumpLocked moves a Dispatching picker forward: finish when nothing is
// left, dispatch when the effector is ready, otherwise ask it to prepare.
func (p *Picker) pumpLocked() {
	if p.state != StateDispatching {
		return
	}
	if p.queue.IsEmpty() {
		p.finishLocked()
		return
	}
	switch p.opts.Effector.State() {
	case EffectorReadyForPicking:
		p.dispatchLocked()
	case EffectorIdle:
		if p.preparing {
			return
		}
		p.preparing = true
		if err := p.opts.Effector.PrepareForPicking(p.ctx); err != nil {
			p.preparing = false
			p.log.Warn("prepare for picking rejected", "error", err)
		}
	}
}

func (p *Picker) dispatchLocked() {
	head, err := p.queue.Front()
	if err != nil {
		p.log.Error("dispatch with empty queue", "error", err)
		return
	}
	if !p.transition(StateWaitingForPick) {
		return
	}
	p.log.Debug("dispatching task", "operation", p.operationID, "target", head.Target, "sequence", head.Sequence)
	p.emit(EventTaskDispatched, head, "")

	if err := p.opts.Effector.PickApple(p.ctx, head); err != nil {
		p.failHeadLocked(fmt.Sprintf("pick command rejected: %v", err))
	}
}

// failHeadLocked drops the head task without retry.
func (p *Picker) failHeadLocked(reason string) {
	head, err := p.queue.Front()
	if err != nil {
		p.log.Error("failure with empty queue", "error", err, "reason", reason)
		return
	}
	if err := p.queue.Pop(); err != nil {
		p.log.Error("pop failed", "error", err)
		return
	}
	p.failed++
	p.lastFailure = reason
	p.log.Warn("picking failed", "operation", p.operationID, "target", head.Target, "reason", reason)
	p.emit(EventTaskFailed, head, reason)
	p.afterPopLocked()
}

func (p *Picker) afterPopLocked() {
	if p.queue.IsEmpty() {
		p.finishLocked()
		return
	}
	p.transition(StateDispatching)
	p.pumpLocked()
}

func (p *Picker) finishLocked() {
	if !p.transition(StateDone) {
		return
	}
	p.log.Info("operation done", "operation", p.operationID,
		"succeeded", p.succeeded, "failed", p.failed, "elapsed", p.elapsed)
	p.emit(EventOperationDone, PickAppleTask{}, "")
}

// transition moves to next if the table allows it. Refused moves are logged
// and leave the state untouched.
func (p *Picker) transition(next State) bool {
	if err := ValidateTransition(p.state, next); err != nil {
		p.log.Error("refusing state change", "error", err)
		return false
	}
	p.state = next
	return true
}

func (p *Picker) emit(kind EventKind, task PickAppleTask, reason string) {
	if len(p.opts.Observers) == 0 {
		return
	}
	ev := Event{
		Kind:        kind,
		OperationID: p.operationID,
		Task:        task,
		Reason:      reason,
		State:       p.state,
		Progress:    p.progressLocked(),
		Remaining:   p.queue.Len(),
		Initial:     p.queue.InitialCount(),
		At:          p.now(),
	}
	for _, o := range p.opts.Observers {
		o.Observe(ev)
	}
}

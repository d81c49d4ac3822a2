// Package bus is the process-local event dispatcher that connects effectors,
// the tick driver and the picker.
//
// Publish and Tick only enqueue. Flush delivers queued items one at a time in
// FIFO order and at most one Flush runs at any moment, so handlers are never
// invoked concurrently with each other or with themselves. A handler that
// publishes during delivery gets its item queued behind the current one.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/applekraken/internal/logging"
)

// Kind identifies an effector notification.
type Kind string

const (
	KindReadyForPicking Kind = "effector_ready_for_picking"
	KindApplePicked     Kind = "apple_picked"
	KindAppleRetrieved  Kind = "apple_retrieved"
	KindPickingFailed   Kind = "picking_failed"
)

// Notification is an asynchronous outcome reported by an effector.
type Notification struct {
	ID       string
	Effector string // address; handlers subscribe per effector
	Kind     Kind
	Reason   string // PickingFailed only
	At       time.Time
}

// NotificationHandler receives effector notifications.
type NotificationHandler interface {
	EffectorReadyForPicking()
	ApplePicked()
	AppleRetrieved()
	PickingFailed(reason string)
}

// TickHandler receives periodic ticks from the host.
type TickHandler interface {
	OnTick(delta time.Duration, at time.Time)
}

// AnyEffector subscribes a NotificationHandler to every effector address.
const AnyEffector = ""

type entry struct {
	id      uint64
	address string
	notify  NotificationHandler
	tick    TickHandler
	closed  atomic.Bool
}

type item struct {
	notification *Notification
	delta        time.Duration
	at           time.Time
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	mu      sync.Mutex
	nextID  uint64
	entries []*entry
	pending []item

	flushMu sync.Mutex
	signal  chan struct{}
	log     logging.Logger
	now     func() time.Time
}

// New creates an empty Dispatcher. A nil logger discards output.
func New(log logging.Logger) *Dispatcher {
	return &Dispatcher{
		signal: make(chan struct{}, 1),
		log:    logging.OrNoOp(log),
		now:    time.Now,
	}
}

// Subscription is a handle returned by the Connect methods.
type Subscription struct {
	d *Dispatcher
	e *entry
}

// Disconnect stops delivery to the handler. It is safe to call more than once
// and from inside a handler.
func (s *Subscription) Disconnect() {
	if s == nil || s.e == nil {
		return
	}
	if s.e.closed.Swap(true) {
		return
	}
	s.d.remove(s.e.id)
}

// ConnectNotifications subscribes h to notifications published for effector.
// Use AnyEffector to observe every effector.
func (d *Dispatcher) ConnectNotifications(effector string, h NotificationHandler) *Subscription {
	return d.add(&entry{address: effector, notify: h})
}

// ConnectTick subscribes h to ticks.
func (d *Dispatcher) ConnectTick(h TickHandler) *Subscription {
	return d.add(&entry{tick: h})
}

func (d *Dispatcher) add(e *entry) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	e.id = d.nextID
	d.entries = append(d.entries, e)
	return &Subscription{d: d, e: e}
}

func (d *Dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.id == id {
			d.entries = append(d.entries[:i:i], d.entries[i+1:]...)
			return
		}
	}
}

// Publish enqueues n. ID and At are filled in when empty.
func (d *Dispatcher) Publish(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = d.now()
	}
	d.enqueue(item{notification: &n})
}

// Tick enqueues a tick for every tick handler.
func (d *Dispatcher) Tick(delta time.Duration, at time.Time) {
	d.enqueue(item{delta: delta, at: at})
}

func (d *Dispatcher) enqueue(it item) {
	d.mu.Lock()
	d.pending = append(d.pending, it)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued, undelivered items.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush delivers queued items until the queue is empty and returns how many
// were delivered. If another Flush is already running it returns 0 at once;
// the running Flush picks up whatever was queued, including items enqueued
// while it was releasing the lock.
func (d *Dispatcher) Flush() int {
	delivered := 0
	for d.flushMu.TryLock() {
		delivered += d.drainLocked()
		d.flushMu.Unlock()
		if d.Pending() == 0 {
			break
		}
	}
	return delivered
}

// Sync waits for a running Flush to finish and then delivers whatever is
// still queued, so every item enqueued before the call has been delivered
// when it returns. Handlers must not call it.
func (d *Dispatcher) Sync() int {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()
	return d.drainLocked()
}

// drainLocked delivers until the queue is empty. flushMu must be held.
func (d *Dispatcher) drainLocked() int {
	delivered := 0
	for {
		it, targets, ok := d.next()
		if !ok {
			return delivered
		}
		d.deliver(it, targets)
		delivered++
	}
}

// next pops the head item and snapshots the handlers it should reach.
func (d *Dispatcher) next() (item, []*entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return item{}, nil, false
	}
	it := d.pending[0]
	d.pending[0] = item{}
	d.pending = d.pending[1:]

	var targets []*entry
	for _, e := range d.entries {
		if it.notification == nil {
			if e.tick != nil {
				targets = append(targets, e)
			}
			continue
		}
		if e.notify != nil && (e.address == AnyEffector || e.address == it.notification.Effector) {
			targets = append(targets, e)
		}
	}
	return it, targets, true
}

func (d *Dispatcher) deliver(it item, targets []*entry) {
	for _, e := range targets {
		if e.closed.Load() {
			continue
		}
		if it.notification == nil {
			e.tick.OnTick(it.delta, it.at)
			continue
		}
		n := it.notification
		switch n.Kind {
		case KindReadyForPicking:
			e.notify.EffectorReadyForPicking()
		case KindApplePicked:
			e.notify.ApplePicked()
		case KindAppleRetrieved:
			e.notify.AppleRetrieved()
		case KindPickingFailed:
			e.notify.PickingFailed(n.Reason)
		default:
			d.log.Warn("bus: dropping notification of unknown kind", "kind", n.Kind, "effector", n.Effector)
			return
		}
	}
}

// Run flushes whenever something is enqueued until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.signal:
			d.Flush()
		}
	}
}

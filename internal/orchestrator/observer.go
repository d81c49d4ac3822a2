package orchestrator

import "time"

// EventKind classifies picker events.
type EventKind string

const (
	EventOperationStarted EventKind = "operation_started"
	EventTaskDispatched   EventKind = "task_dispatched"
	EventApplePicked      EventKind = "apple_picked"
	EventTaskSucceeded    EventKind = "task_succeeded"
	EventTaskFailed       EventKind = "task_failed"
	EventOperationDone    EventKind = "operation_done"
)

// Event describes something that happened during an operation.
type Event struct {
	Kind        EventKind
	OperationID string
	Task        PickAppleTask // zero for operation-level events
	Reason      string        // task_failed only
	// State is the picker state when the event was emitted. Task outcome
	// events carry the waiting state of the task that just ended; the move
	// to the next task or to done shows up in the event that follows.
	State       State
	Progress    float64
	Remaining   int
	Initial     int
	At          time.Time
}

// Observer receives picker events. Observe is called with the picker lock
// held, so implementations must return quickly and must not call back into
// the picker.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Package orchestrator drives a single effector through the pick/retrieve
// cycle for every apple found in a gathering area. The Picker owns a FIFO
// task queue and a state machine that advances on effector notifications
// and host ticks.
package orchestrator

import (
	"context"
	"time"
)

// State is the orchestration state of a Picker.
type State string

const (
	StateIdle                State = "idle"
	StateAwaitingDiscovery   State = "awaiting_discovery"
	StateDispatching         State = "dispatching"
	StateWaitingForPick      State = "waiting_for_pick"
	StateWaitingForRetrieval State = "waiting_for_retrieval"
	StateDone                State = "done"
)

func (s State) String() string { return string(s) }

// Active reports whether an operation is in flight.
func (s State) Active() bool {
	return s != StateIdle && s != StateDone
}

// AllStates returns every state in lifecycle order.
func AllStates() []State {
	return []State{
		StateIdle,
		StateAwaitingDiscovery,
		StateDispatching,
		StateWaitingForPick,
		StateWaitingForRetrieval,
		StateDone,
	}
}

// Snapshot is a point-in-time copy of the session held by a Picker.
type Snapshot struct {
	OperationID   string
	State         State
	EffectorState EffectorState
	InitialCount  int
	Remaining     int
	Succeeded     int
	Failed        int
	InFlight      TargetID // empty unless waiting on the effector
	Pending       []TargetID
	Progress      float64
	LastFailure   string
	StartedAt     time.Time
	Elapsed       time.Duration
}

// Controller is the request surface other packages drive a picker through.
type Controller interface {
	// StartAutomatedOperation discovers apples and begins picking them.
	StartAutomatedOperation(ctx context.Context) error

	// ReportProgress returns completion in [0,1].
	ReportProgress() float64

	// Snapshot returns the current session state.
	Snapshot() Snapshot
}

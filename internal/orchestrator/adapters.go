package orchestrator

import (
	"context"

	"github.com/dusk-indust/applekraken/internal/bus"
	"github.com/dusk-indust/applekraken/internal/geometry"
)

// EffectorState is the state reported by an effector. The picker never sets
// it; it only reads it and reacts to notifications.
type EffectorState string

const (
	EffectorIdle            EffectorState = "idle"
	EffectorReadyForPicking EffectorState = "ready_for_picking"
	EffectorPicking         EffectorState = "picking"
	EffectorRetrieving      EffectorState = "retrieving"
)

// Busy reports whether the effector is mid pick or retrieve.
func (s EffectorState) Busy() bool {
	return s == EffectorPicking || s == EffectorRetrieving
}

// EnvironmentQuerier finds pickable apples in a volume.
type EnvironmentQuerier interface {
	// QueryApplesInBox returns the apples currently inside box, in
	// discovery order.
	QueryApplesInBox(ctx context.Context, box geometry.Obb) ([]TargetID, error)
}

// Effector is the command side of the mechanical unit. Outcomes come back
// asynchronously as bus notifications addressed to ID(); implementations
// must never call back into the picker from inside a command.
type Effector interface {
	ID() string
	State() EffectorState
	// ReachArea is the volume the effector can reach. It is the default
	// gathering area.
	ReachArea() geometry.Obb
	// PrepareForPicking moves an idle effector to ReadyForPicking and is
	// answered with EffectorReadyForPicking.
	PrepareForPicking(ctx context.Context) error
	// PickApple starts picking task.Target and is answered with ApplePicked
	// or PickingFailed.
	PickApple(ctx context.Context, task PickAppleTask) error
	// FinishPicking starts retrieving the picked apple and is answered with
	// AppleRetrieved or PickingFailed.
	FinishPicking(ctx context.Context) error
}

// Dispatcher is the subscription side of the event bus.
type Dispatcher interface {
	ConnectNotifications(effector string, h bus.NotificationHandler) *bus.Subscription
	ConnectTick(h bus.TickHandler) *bus.Subscription
}

package orchestrator

import (
	"fmt"
	"time"

	"github.com/dusk-indust/applekraken/internal/geometry"
	"github.com/dusk-indust/applekraken/internal/logging"
)

// Options holds the collaborators and settings of a Picker.
type Options struct {
	// Effector is the unit being driven. Required.
	Effector Effector

	// Environment discovers apples. Required.
	Environment EnvironmentQuerier

	// Dispatcher delivers notifications and ticks. Required.
	Dispatcher Dispatcher

	// GatheringArea is where apples are searched for. When zero the
	// effector's reach area is used.
	GatheringArea geometry.Obb

	// Logger defaults to a no-op logger.
	Logger logging.Logger

	// Observers receive every picker event in order.
	Observers []Observer

	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) validate() error {
	switch {
	case o.Effector == nil:
		return fmt.Errorf("%w: effector", ErrMissingDependency)
	case o.Environment == nil:
		return fmt.Errorf("%w: environment", ErrMissingDependency)
	case o.Dispatcher == nil:
		return fmt.Errorf("%w: dispatcher", ErrMissingDependency)
	}
	return nil
}

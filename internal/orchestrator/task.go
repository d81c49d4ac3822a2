package orchestrator

import (
	"github.com/google/uuid"
)

// TargetID is an opaque handle to an apple in the external world.
type TargetID string

// PickAppleTask is the work item "pick and retrieve this one apple".
type PickAppleTask struct {
	ID       string
	Target   TargetID
	Sequence int // position in discovery order, 0-based
}

// IsZero reports whether t is the zero task.
func (t PickAppleTask) IsZero() bool {
	return t.ID == "" && t.Target == ""
}

func newTask(target TargetID, seq int) PickAppleTask {
	return PickAppleTask{
		ID:       uuid.NewString(),
		Target:   target,
		Sequence: seq,
	}
}

package orchestrator

import "errors"

var (
	// ErrEmptyQueue is an internal invariant failure: Front or Pop on an
	// empty queue. Normal notification flow never reaches it.
	ErrEmptyQueue = errors.New("orchestrator: task queue is empty")

	// ErrOperationInProgress rejects StartAutomatedOperation while an
	// operation is still running.
	ErrOperationInProgress = errors.New("orchestrator: operation in progress")

	// ErrNotStarted is returned when the picker lifecycle was not started.
	ErrNotStarted = errors.New("orchestrator: picker not started")

	// ErrAlreadyStarted is returned by a second Start without Stop.
	ErrAlreadyStarted = errors.New("orchestrator: picker already started")

	// ErrEffectorBusy is returned when the effector is mid pick or retrieve.
	ErrEffectorBusy = errors.New("orchestrator: effector busy")

	// ErrMissingDependency is returned by New when an adapter is nil.
	ErrMissingDependency = errors.New("orchestrator: missing dependency")
)

package orchestrator

import (
	"fmt"
	"sync"
)

// ProgressEvent is a display-oriented view of a picker event.
type ProgressEvent struct {
	OperationID string
	Target      TargetID
	Status      ProgressStatus
	Message     string
	Progress    float64
}

// ProgressStatus is the state of one pick task.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// ProgressReporter emits progress events through a buffered channel. It is an
// Observer, so it can be passed straight into Options.Observers.
type ProgressReporter struct {
	mu     sync.Mutex
	closed bool
	ch     chan ProgressEvent
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of size 64.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		ch: make(chan ProgressEvent, 64),
	}
}

// Emit sends a progress event in a non-blocking fashion.
// If the channel is full or closed, the event is silently dropped.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.closed {
		return
	}
	select {
	case pr.ch <- event:
	default:
	}
}

// Observe converts picker events into progress events.
func (pr *ProgressReporter) Observe(ev Event) {
	pe := ProgressEvent{
		OperationID: ev.OperationID,
		Target:      ev.Task.Target,
		Progress:    ev.Progress,
	}
	switch ev.Kind {
	case EventTaskDispatched:
		pe.Status = ProgressWorking
		pe.Message = "picking"
	case EventApplePicked:
		pe.Status = ProgressWorking
		pe.Message = "retrieving"
	case EventTaskSucceeded:
		pe.Status = ProgressComplete
	case EventTaskFailed:
		pe.Status = ProgressFailed
		pe.Message = ev.Reason
	default:
		return
	}
	pr.Emit(pe)
}

// Subscribe returns a read-only channel for consuming progress events.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close closes the progress event channel. Later calls are no-ops.
func (pr *ProgressReporter) Close() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.closed {
		return
	}
	pr.closed = true
	close(pr.ch)
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	switch event.Status {
	case ProgressPending:
		return fmt.Sprintf("  ○ %s (pending)", event.Target)
	case ProgressWorking:
		if event.Message != "" {
			return fmt.Sprintf("  ● %s %s...", event.Target, event.Message)
		}
		return fmt.Sprintf("  ● %s...", event.Target)
	case ProgressComplete:
		return fmt.Sprintf("  ✓ %s retrieved", event.Target)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", event.Target, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", event.Target)
	}
}

// FormatOperationHeader formats an operation header for display.
// Returns: "[{name}] Operation {id}: {n} apples"
func FormatOperationHeader(name, operationID string, apples int) string {
	return fmt.Sprintf("[%s] Operation %s: %d apples", name, operationID, apples)
}

package orchestrator

// TaskQueue is the FIFO of pending pick tasks for one operation. It is not
// safe for concurrent use; the Picker guards it with its own mutex.
type TaskQueue struct {
	tasks   []PickAppleTask
	initial int
}

// Populate replaces the queue content with one task per target, preserving
// order, and records the initial task count.
func (q *TaskQueue) Populate(targets []TargetID) {
	q.tasks = make([]PickAppleTask, 0, len(targets))
	for i, target := range targets {
		q.tasks = append(q.tasks, newTask(target, i))
	}
	q.initial = len(targets)
}

// Front returns the head task without removing it.
func (q *TaskQueue) Front() (PickAppleTask, error) {
	if len(q.tasks) == 0 {
		return PickAppleTask{}, ErrEmptyQueue
	}
	return q.tasks[0], nil
}

// Pop removes the head task. On an empty queue it returns ErrEmptyQueue and
// changes nothing.
func (q *TaskQueue) Pop() error {
	if len(q.tasks) == 0 {
		return ErrEmptyQueue
	}
	q.tasks[0] = PickAppleTask{}
	q.tasks = q.tasks[1:]
	return nil
}

// IsEmpty reports whether no tasks remain.
func (q *TaskQueue) IsEmpty() bool { return len(q.tasks) == 0 }

// Len returns the number of remaining tasks.
func (q *TaskQueue) Len() int { return len(q.tasks) }

// InitialCount returns the task count captured by the last Populate.
func (q *TaskQueue) InitialCount() int { return q.initial }

// Targets returns the remaining targets in dispatch order.
func (q *TaskQueue) Targets() []TargetID {
	out := make([]TargetID, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.Target
	}
	return out
}

// Package journal records operation outcomes in a sqlite database. It is an
// orchestrator.Observer: outcome events are buffered without blocking the
// picker and written in order by a background goroutine. Buffered outcomes
// are never discarded; Close waits for all of them. The journal is history for reports and
// export; nothing is ever read back into a picker.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dusk-indust/applekraken/internal/logging"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

// ErrNotFound is returned for an unknown operation ID.
var ErrNotFound = errors.New("journal: operation not found")

var _ orchestrator.Observer = (*Journal)(nil)

// Outcome values stored in task_outcomes.outcome.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00" // fixed width so text order is time order

// Operation is one journaled operation.
type Operation struct {
	ID           string     `json:"id"`
	Effector     string     `json:"effector,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	InitialCount int        `json:"initialCount"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
}

// Outcome is the recorded end of one pick task.
type Outcome struct {
	TaskID     string    `json:"taskId"`
	Target     string    `json:"target"`
	Sequence   int       `json:"sequence"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Journal is safe for concurrent use.
type Journal struct {
	db       *sql.DB
	log      logging.Logger
	effector string

	mu      sync.Mutex
	closed  bool
	pending []orchestrator.Event
	wake    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
}

// Options configures Open.
type Options struct {
	// Effector is stored with every operation.
	Effector string
	Logger   logging.Logger
}

// Open migrates the database at path and starts the background writer.
func Open(path string, opts Options) (*Journal, error) {
	if err := runMigrations(path); err != nil {
		return nil, err
	}
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j := &Journal{
		db:       db,
		log:      logging.OrNoOp(opts.Logger),
		effector: opts.Effector,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go j.writer()
	return j, nil
}

// journaled reports whether Record stores anything for kind.
func journaled(kind orchestrator.EventKind) bool {
	switch kind {
	case orchestrator.EventOperationStarted, orchestrator.EventTaskSucceeded,
		orchestrator.EventTaskFailed, orchestrator.EventOperationDone:
		return true
	}
	return false
}

// Observe buffers ev for the writer. It never blocks on the database and
// never discards an outcome; kinds that Record ignores are skipped here.
// Events observed after Close are counted as dropped.
func (j *Journal) Observe(ev orchestrator.Event) {
	if !journaled(ev.Kind) {
		return
	}
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		j.dropped.Add(1)
		return
	}
	j.pending = append(j.pending, ev)
	j.mu.Unlock()

	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// Dropped returns how many outcome events arrived after Close.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Pending returns how many observed events are not yet written.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

func (j *Journal) writer() {
	defer close(j.done)
	for {
		j.mu.Lock()
		batch := j.pending
		j.pending = nil
		closed := j.closed
		j.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-j.wake
			continue
		}
		for _, ev := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := j.Record(ctx, ev); err != nil {
				j.log.Error("journal: record failed", "kind", ev.Kind, "operation", ev.OperationID, "error", err)
			}
			cancel()
		}
	}
}

// Close writes every buffered event and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	select {
	case j.wake <- struct{}{}:
	default:
	}
	<-j.done
	if n := j.dropped.Load(); n > 0 {
		j.log.Warn("journal: events after close dropped", "count", n)
	}
	return j.db.Close()
}

// Record writes ev synchronously. Events that carry no outcome are ignored.
func (j *Journal) Record(ctx context.Context, ev orchestrator.Event) error {
	at := ev.At.UTC().Format(timeLayout)
	switch ev.Kind {
	case orchestrator.EventOperationStarted:
		_, err := j.db.ExecContext(ctx,
			`INSERT INTO operations (id, effector, started_at, initial_count) VALUES (?, ?, ?, ?)`,
			ev.OperationID, j.effector, at, ev.Initial)
		return err

	case orchestrator.EventTaskSucceeded, orchestrator.EventTaskFailed:
		outcome, counter := OutcomeSucceeded, "succeeded"
		if ev.Kind == orchestrator.EventTaskFailed {
			outcome, counter = OutcomeFailed, "failed"
		}
		return withTx(j.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO task_outcomes (operation_id, task_id, target, sequence, outcome, reason, recorded_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				ev.OperationID, ev.Task.ID, string(ev.Task.Target), ev.Task.Sequence, outcome, ev.Reason, at); err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE operations SET `+counter+` = `+counter+` + 1 WHERE id = ?`, ev.OperationID)
			if err != nil {
				return err
			}
			return requireRow(res, ev.OperationID)
		})

	case orchestrator.EventOperationDone:
		res, err := j.db.ExecContext(ctx,
			`UPDATE operations SET finished_at = ? WHERE id = ?`, at, ev.OperationID)
		if err != nil {
			return err
		}
		return requireRow(res, ev.OperationID)
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Operations lists journaled operations, newest first.
func (j *Journal) Operations(ctx context.Context) ([]Operation, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, effector, started_at, finished_at, initial_count, succeeded, failed
		 FROM operations ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// Operation returns one operation and its outcomes in recording order.
func (j *Journal) Operation(ctx context.Context, id string) (Operation, []Outcome, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, effector, started_at, finished_at, initial_count, succeeded, failed
		 FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Operation{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Operation{}, nil, err
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT task_id, target, sequence, outcome, reason, recorded_at
		 FROM task_outcomes WHERE operation_id = ? ORDER BY id`, id)
	if err != nil {
		return Operation{}, nil, err
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var at string
		if err := rows.Scan(&o.TaskID, &o.Target, &o.Sequence, &o.Outcome, &o.Reason, &at); err != nil {
			return Operation{}, nil, err
		}
		if o.RecordedAt, err = time.Parse(timeLayout, at); err != nil {
			return Operation{}, nil, fmt.Errorf("recorded_at: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return op, outcomes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(s scanner) (Operation, error) {
	var op Operation
	var started string
	var finished sql.NullString
	if err := s.Scan(&op.ID, &op.Effector, &started, &finished, &op.InitialCount, &op.Succeeded, &op.Failed); err != nil {
		return Operation{}, err
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return Operation{}, fmt.Errorf("started_at: %w", err)
	}
	op.StartedAt = t
	if finished.Valid {
		f, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return Operation{}, fmt.Errorf("finished_at: %w", err)
		}
		op.FinishedAt = &f
	}
	return op, nil
}

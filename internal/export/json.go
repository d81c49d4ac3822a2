// Package export turns picker state and journaled operations into
// documents: a Mermaid state diagram and a JSON operation report.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dusk-indust/applekraken/internal/journal"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

// OperationReader reads journaled operations.
type OperationReader interface {
	Operation(ctx context.Context, id string) (journal.Operation, []journal.Outcome, error)
}

// OperationExport is the top-level JSON export structure.
type OperationExport struct {
	ExportedAt string            `json:"exportedAt"`
	Operation  journal.Operation `json:"operation"`
	Progress   float64           `json:"progress"`
	Finished   bool              `json:"finished"`
	Outcomes   []journal.Outcome `json:"outcomes"`
	Failures   map[string]int    `json:"failureReasons,omitempty"`
}

// SnapshotExport is the JSON form of a live picker snapshot.
type SnapshotExport struct {
	OperationID   string   `json:"operationId,omitempty"`
	State         string   `json:"state"`
	EffectorState string   `json:"effectorState"`
	InitialCount  int      `json:"initialCount"`
	Remaining     int      `json:"remaining"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	InFlight      string   `json:"inFlight,omitempty"`
	Pending       []string `json:"pending,omitempty"`
	Progress      float64  `json:"progress"`
	LastFailure   string   `json:"lastFailure,omitempty"`
	ElapsedMillis int64    `json:"elapsedMs"`
}

// ExportOperation builds an OperationExport for one journaled operation.
func ExportOperation(ctx context.Context, r OperationReader, id string) (*OperationExport, error) {
	op, outcomes, err := r.Operation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", id, err)
	}
	if outcomes == nil {
		outcomes = []journal.Outcome{}
	}

	export := &OperationExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Operation:  op,
		Finished:   op.FinishedAt != nil,
		Outcomes:   outcomes,
	}
	export.Progress = journalProgress(op)

	for _, o := range outcomes {
		if o.Outcome != journal.OutcomeFailed {
			continue
		}
		if export.Failures == nil {
			export.Failures = make(map[string]int)
		}
		export.Failures[o.Reason]++
	}
	return export, nil
}

// journalProgress mirrors the picker's progress rule for a recorded
// operation.
func journalProgress(op journal.Operation) float64 {
	if op.FinishedAt != nil {
		return 1
	}
	if op.InitialCount == 0 {
		return 0
	}
	removed := op.Succeeded + op.Failed
	if removed >= op.InitialCount {
		removed = op.InitialCount - 1
	}
	return float64(removed) / float64(op.InitialCount)
}

// ExportSnapshot converts a snapshot to its JSON form.
func ExportSnapshot(s orchestrator.Snapshot) SnapshotExport {
	pending := make([]string, len(s.Pending))
	for i, t := range s.Pending {
		pending[i] = string(t)
	}
	return SnapshotExport{
		OperationID:   s.OperationID,
		State:         string(s.State),
		EffectorState: string(s.EffectorState),
		InitialCount:  s.InitialCount,
		Remaining:     s.Remaining,
		Succeeded:     s.Succeeded,
		Failed:        s.Failed,
		InFlight:      string(s.InFlight),
		Pending:       pending,
		Progress:      s.Progress,
		LastFailure:   s.LastFailure,
		ElapsedMillis: s.Elapsed.Milliseconds(),
	}
}

// MarshalIndent renders v the way the CLI prints it.
func MarshalIndent(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal JSON: %w", err)
	}
	return append(out, '\n'), nil
}

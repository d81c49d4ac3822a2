package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/applekraken/internal/journal"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

type stubReader struct {
	op       journal.Operation
	outcomes []journal.Outcome
	err      error
}

func (s stubReader) Operation(context.Context, string) (journal.Operation, []journal.Outcome, error) {
	return s.op, s.outcomes, s.err
}

func TestGenerateStateDiagram_CoversEveryTransition(t *testing.T) {
	out := GenerateStateDiagram()
	assert.True(t, strings.HasPrefix(out, "stateDiagram-v2\n  [*] --> idle\n"))
	for _, tr := range orchestrator.Transitions() {
		assert.Contains(t, out, string(tr[0])+" --> "+string(tr[1]))
		_, ok := transitionTriggers[tr]
		assert.True(t, ok, "no trigger label for %s -> %s", tr[0], tr[1])
	}
	assert.Contains(t, out, "waiting_for_pick --> waiting_for_retrieval : ApplePicked")
}

func TestExportOperation(t *testing.T) {
	finished := time.Date(2026, 10, 17, 9, 1, 0, 0, time.UTC)
	r := stubReader{
		op: journal.Operation{
			ID: "op-1", InitialCount: 3, Succeeded: 1, Failed: 2,
			StartedAt: finished.Add(-time.Minute), FinishedAt: &finished,
		},
		outcomes: []journal.Outcome{
			{Target: "a", Outcome: journal.OutcomeFailed, Reason: "jam"},
			{Target: "b", Outcome: journal.OutcomeSucceeded},
			{Target: "c", Outcome: journal.OutcomeFailed, Reason: "jam"},
		},
	}

	exp, err := ExportOperation(context.Background(), r, "op-1")
	require.NoError(t, err)
	assert.True(t, exp.Finished)
	assert.Equal(t, 1.0, exp.Progress)
	assert.Equal(t, map[string]int{"jam": 2}, exp.Failures)

	data, err := MarshalIndent(exp)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "outcomes")
	assert.Contains(t, decoded, "failureReasons")
}

func TestExportOperation_InProgressAndErrors(t *testing.T) {
	r := stubReader{op: journal.Operation{ID: "op-2", InitialCount: 4, Succeeded: 1}}
	exp, err := ExportOperation(context.Background(), r, "op-2")
	require.NoError(t, err)
	assert.False(t, exp.Finished)
	assert.Equal(t, 0.25, exp.Progress)
	assert.NotNil(t, exp.Outcomes)
	assert.Nil(t, exp.Failures)

	_, err = ExportOperation(context.Background(), stubReader{err: journal.ErrNotFound}, "nope")
	assert.True(t, errors.Is(err, journal.ErrNotFound))
}

func TestJournalProgress(t *testing.T) {
	assert.Equal(t, 0.0, journalProgress(journal.Operation{}))
	assert.Equal(t, 0.75, journalProgress(journal.Operation{InitialCount: 4, Succeeded: 4}),
		"all removed but not finished stays below 1")
}

func TestExportSnapshot(t *testing.T) {
	s := orchestrator.Snapshot{
		OperationID: "op",
		State:       orchestrator.StateDispatching,
		Pending:     []orchestrator.TargetID{"x", "y"},
		Elapsed:     1500 * time.Millisecond,
	}
	got := ExportSnapshot(s)
	assert.Equal(t, "dispatching", got.State)
	assert.Equal(t, []string{"x", "y"}, got.Pending)
	assert.Equal(t, int64(1500), got.ElapsedMillis)
}

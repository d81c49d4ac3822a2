package mcptools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/applekraken/internal/export"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
	"github.com/dusk-indust/applekraken/internal/status"
)

// PickerService handles MCP tool calls against a running picker.
type PickerService struct {
	picker orchestrator.Controller
}

// NewPickerService creates a PickerService for the given controller.
func NewPickerService(picker orchestrator.Controller) *PickerService {
	return &PickerService{picker: picker}
}

// StartOperation starts an automated operation. A start refused because an
// operation is already running is reported as status "rejected", not as a
// tool error.
func (s *PickerService) StartOperation(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StartOperationInput,
) (*mcp.CallToolResult, StartOperationOutput, error) {
	err := s.picker.StartAutomatedOperation(ctx)
	snap := s.picker.Snapshot()
	out := StartOperationOutput{
		OperationID: snap.OperationID,
		Apples:      snap.InitialCount,
		State:       string(snap.State),
	}
	switch {
	case err == nil:
		out.Status = "started"
		return nil, out, nil
	case errors.Is(err, orchestrator.ErrOperationInProgress),
		errors.Is(err, orchestrator.ErrEffectorBusy):
		out.Status = "rejected"
		out.Message = err.Error()
		return nil, out, nil
	default:
		return nil, StartOperationOutput{Status: "failed", State: out.State, Message: err.Error()}, err
	}
}

// ReportProgress returns the current operation's progress.
func (s *PickerService) ReportProgress(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ReportProgressInput,
) (*mcp.CallToolResult, ReportProgressOutput, error) {
	snap := s.picker.Snapshot()
	return nil, ReportProgressOutput{
		Progress: snap.Progress,
		Percent:  status.WholePercent(snap.Progress),
		State:    string(snap.State),
	}, nil
}

// GetStatus returns a full snapshot of the picker.
func (s *PickerService) GetStatus(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetStatusInput,
) (*mcp.CallToolResult, GetStatusOutput, error) {
	snap := s.picker.Snapshot()
	e := export.ExportSnapshot(snap)

	pending := e.Pending
	if pending == nil {
		pending = []string{}
	}
	if input.MaxPending > 0 && len(pending) > input.MaxPending {
		pending = pending[:input.MaxPending]
	}

	return nil, GetStatusOutput{
		OperationID:   e.OperationID,
		State:         e.State,
		EffectorState: e.EffectorState,
		InitialCount:  e.InitialCount,
		Remaining:     e.Remaining,
		Succeeded:     e.Succeeded,
		Failed:        e.Failed,
		InFlight:      e.InFlight,
		Pending:       pending,
		Progress:      e.Progress,
		LastFailure:   e.LastFailure,
		Summary:       status.Summary(snap),
	}, nil
}

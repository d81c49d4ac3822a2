package mcptools

// --- MCP tool types for the picker server mode (--serve-mcp / --mcp-addr) ---
// These let an agent start an operation and watch it without a terminal.

// StartOperationInput is the input for the start_operation MCP tool.
type StartOperationInput struct{}

// StartOperationOutput is the result of the start_operation MCP tool.
type StartOperationOutput struct {
	Status      string `json:"status"` // "started" or "rejected"
	OperationID string `json:"operationId,omitempty"`
	Apples      int    `json:"apples"`
	State       string `json:"state"`
	Message     string `json:"message,omitempty"`
}

// ReportProgressInput is the input for the report_progress MCP tool.
type ReportProgressInput struct{}

// ReportProgressOutput is the result of the report_progress MCP tool.
type ReportProgressOutput struct {
	Progress float64 `json:"progress" jsonschema:"fraction of the operation completed, 0 to 1"`
	Percent  int     `json:"percent"`
	State    string  `json:"state"`
}

// GetStatusInput is the input for the get_status MCP tool.
type GetStatusInput struct {
	MaxPending int `json:"maxPending,omitempty" jsonschema:"cap on pending targets listed (default: all)"`
}

// GetStatusOutput is the result of the get_status MCP tool.
type GetStatusOutput struct {
	OperationID   string   `json:"operationId,omitempty"`
	State         string   `json:"state"`
	EffectorState string   `json:"effectorState"`
	InitialCount  int      `json:"initialCount"`
	Remaining     int      `json:"remaining"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	InFlight      string   `json:"inFlight,omitempty"`
	Pending       []string `json:"pending"`
	Progress      float64  `json:"progress"`
	LastFailure   string   `json:"lastFailure,omitempty"`
	Summary       string   `json:"summary"`
}

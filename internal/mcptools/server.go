package mcptools

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

// version is set by the linker at build time.
var version = "dev"

// NewPickerMCPServer creates an MCP server with the picker tools registered:
// start_operation, report_progress and get_status.
func NewPickerMCPServer(picker orchestrator.Controller) *mcp.Server {
	svc := NewPickerService(picker)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "applekraken",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_operation",
		Description: "Discover apples in the gathering area and start picking them. Rejected while an operation is already running.",
	}, svc.StartOperation)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "report_progress",
		Description: "Return the fraction of the current operation completed, from 0 to 1. Reads 1 only once the operation is done.",
	}, svc.ReportProgress)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Return the picker state, effector state, counters and the queue of pending apples.",
	}, svc.GetStatus)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP server over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

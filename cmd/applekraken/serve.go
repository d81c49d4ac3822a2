package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/applekraken/internal/host"
	"github.com/dusk-indust/applekraken/internal/mcptools"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

// runServe keeps the picker running and lets MCP clients start operations.
// It returns when ctx is cancelled or, on stdio, when stdin closes.
func runServe(ctx context.Context, flags cliFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	// Stdout is the MCP transport; logs go to stderr.
	log, err := cfg.Logger()
	if err != nil {
		return err
	}

	var observers []orchestrator.Observer
	j, err := openJournal(cfg, log)
	if err != nil {
		return err
	}
	if j != nil {
		defer j.Close()
		observers = append(observers, j)
	}

	sys, err := host.NewSystem(cfg, host.SystemOptions{Logger: log, Observers: observers})
	if err != nil {
		return err
	}
	if err := sys.Start(ctx); err != nil {
		return err
	}
	defer sys.Stop()

	server := mcptools.NewPickerMCPServer(sys.Picker)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sys.Driver.Run(gctx)
	})
	if flags.ServeMCP {
		g.Go(func() error {
			defer cancel()
			return mcptools.RunStdio(gctx, server)
		})
	}
	if flags.MCPAddr != "" {
		log.Info("serving MCP over HTTP", "addr", flags.MCPAddr)
		g.Go(func() error {
			return mcptools.RunHTTP(gctx, server, flags.MCPAddr)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

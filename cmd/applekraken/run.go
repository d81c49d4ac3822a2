package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/applekraken/internal/config"
	"github.com/dusk-indust/applekraken/internal/host"
	"github.com/dusk-indust/applekraken/internal/journal"
	"github.com/dusk-indust/applekraken/internal/logging"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
	"github.com/dusk-indust/applekraken/internal/status"
	"github.com/dusk-indust/applekraken/internal/tui"
)

// runOperation runs one automated operation to completion and prints a
// summary.
func runOperation(ctx context.Context, flags cliFlags, stdout io.Writer) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	var log logging.Logger = logging.NoOpLogger{}
	if !flags.TUI {
		// Logs would tear the interactive view.
		if log, err = cfg.Logger(); err != nil {
			return err
		}
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

	var (
		reporter *orchestrator.ProgressReporter
		printed  sync.WaitGroup
	)
	if !flags.TUI {
		reporter = orchestrator.NewProgressReporter()
		defer reporter.Close()
		observers = append(observers, reporter)
		printed.Add(1)
		go func() {
			defer printed.Done()
			for ev := range reporter.Subscribe() {
				fmt.Fprintln(stdout, orchestrator.FormatProgress(ev))
			}
		}()
	}

	sys, err := host.NewSystem(cfg, host.SystemOptions{Logger: log, Observers: observers})
	if err != nil {
		return err
	}
	if err := sys.Start(ctx); err != nil {
		return err
	}
	defer sys.Stop()

	if err := sys.Picker.StartAutomatedOperation(ctx); err != nil {
		return err
	}
	snap := sys.Picker.Snapshot()
	fmt.Fprintln(stdout, orchestrator.FormatOperationHeader("applekraken", snap.OperationID, snap.InitialCount))

	if flags.TUI {
		err = runWithTUI(ctx, sys)
	} else {
		err = sys.Driver.RunUntil(ctx, sys.Done)
		reporter.Close()
		printed.Wait()
	}
	if err != nil {
		return err
	}

	snap = sys.Picker.Snapshot()
	fmt.Fprintln(stdout)
	fmt.Fprint(stdout, status.Render(snap))
	if snap.State != orchestrator.StateDone {
		return fmt.Errorf("operation %s interrupted in state %s", snap.OperationID, snap.State)
	}
	return nil
}

// runWithTUI drives the system while the progress view is open. Quitting
// the view stops the driver.
func runWithTUI(ctx context.Context, sys *host.System) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sys.Driver.RunUntil(gctx, sys.Done)
	})
	g.Go(func() error {
		defer cancel()
		return tui.Run(sys.Picker, tui.WithQuitOnDone(), tui.WithInterval(sys.Driver.Interval()))
	})
	return g.Wait()
}

// openJournal opens the configured journal, or returns nil when it is
// disabled.
func openJournal(cfg *config.Config, log logging.Logger) (*journal.Journal, error) {
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	j, err := journal.Open(cfg.Journal.Path, journal.Options{Effector: cfg.Effector.ID, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("journal %s: %w", cfg.Journal.Path, err)
	}
	return j, nil
}

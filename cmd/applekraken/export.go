package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dusk-indust/applekraken/internal/export"
	"github.com/dusk-indust/applekraken/internal/journal"
	"github.com/dusk-indust/applekraken/internal/logging"
)

func runExport(ctx context.Context, flags cliFlags, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: applekraken export <operation-id>")
	}
	id := args[0]

	j, err := openExistingJournal(flags)
	if err != nil {
		return err
	}
	defer j.Close()

	data, err := export.ExportOperation(ctx, j, id)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	out, err := export.MarshalIndent(data)
	if err != nil {
		return err
	}
	_, err = stdout.Write(out)
	return err
}

// openExistingJournal opens the configured journal for reading. Unlike a
// run, it refuses to create a new database.
func openExistingJournal(flags cliFlags) (*journal.Journal, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	path := cfg.Journal.Path
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no journal found at %s\nRun 'applekraken --journal %s run' first to record operations", path, path)
	}
	return journal.Open(path, journal.Options{Logger: logging.NoOpLogger{}})
}

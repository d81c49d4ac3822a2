package main

import (
	"context"
	"fmt"
	"io"
)

// runStatus lists journaled operations, newest first.
func runStatus(ctx context.Context, flags cliFlags, stdout io.Writer) error {
	j, err := openExistingJournal(flags)
	if err != nil {
		return err
	}
	defer j.Close()

	ops, err := j.Operations(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Fprintln(stdout, "No operations recorded.")
		fmt.Fprintln(stdout, "Run 'applekraken --journal <path> run' to record one.")
		return nil
	}

	for _, op := range ops {
		label := "unfinished"
		if op.FinishedAt != nil {
			label = "done"
		}
		fmt.Fprintf(stdout, "  %s  %s  %d/%d retrieved, %d failed  [%s]\n",
			op.ID, op.StartedAt.Local().Format("2006-01-02 15:04:05"),
			op.Succeeded, op.InitialCount, op.Failed, label)
	}
	return nil
}

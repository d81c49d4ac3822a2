package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dusk-indust/applekraken/internal/defaults"
)

// runInit writes the embedded default config into dir.
func runInit(dir string, force bool, stdout io.Writer) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving config dir: %w", err)
	}
	dest := filepath.Join(abs, defaults.FileName)

	if !force {
		if _, err := os.Stat(dest); err == nil {
			fmt.Fprintf(stdout, "  skipped %s (exists, use --force to overwrite)\n", dotRelative(abs, dest))
			return nil
		}
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, defaults.Config, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	fmt.Fprintf(stdout, "  created %s\n", dotRelative(abs, dest))
	return nil
}

// dotRelative returns a display path relative to base, prefixed with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}

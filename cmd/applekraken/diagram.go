package main

import (
	"fmt"
	"io"

	"github.com/dusk-indust/applekraken/internal/export"
)

func runDiagram(stdout io.Writer) error {
	_, err := fmt.Fprint(stdout, export.GenerateStateDiagram())
	return err
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/applekraken/internal/config"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigDir string
	Journal   string
	TUI       bool
	Force     bool
	Verbose   bool
	ServeMCP  bool
	MCPAddr   string
	Version   bool
}

// version is set by goreleaser at build time.
var version = "dev"

const usage = `usage: applekraken [flags] [command]

commands:
  run            discover apples and pick them (default)
  init           write the default applekraken.yml
  diagram        print the picker state machine as Mermaid
  status         list journaled operations
  export <id>    print the JSON report of a journaled operation

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var flags cliFlags

	fs := flag.NewFlagSet("applekraken", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&flags.ConfigDir, "config-dir", ".", "directory holding applekraken.yml")
	fs.StringVar(&flags.Journal, "journal", "", "record outcomes to this sqlite file (enables the journal)")
	fs.BoolVar(&flags.TUI, "tui", false, "show the interactive progress view")
	fs.BoolVar(&flags.Force, "force", false, "init: overwrite an existing config file")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "serve the picker MCP tools over stdio")
	fs.StringVar(&flags.MCPAddr, "mcp-addr", "", "serve the picker MCP tools over streamable HTTP on this address")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Fprintln(stdout, version)
		return nil
	}

	command, rest := "run", fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	switch command {
	case "run":
		if flags.ServeMCP || flags.MCPAddr != "" {
			return runServe(ctx, flags)
		}
		return runOperation(ctx, flags, stdout)
	case "init":
		return runInit(flags.ConfigDir, flags.Force, stdout)
	case "diagram":
		return runDiagram(stdout)
	case "status":
		return runStatus(ctx, flags, stdout)
	case "export":
		return runExport(ctx, flags, rest, stdout)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// loadConfig reads the config file, applies environment overrides and the
// command-line flags, and validates the result.
func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if flags.Verbose {
		cfg.Log.Level = "debug"
	}
	if flags.Journal != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = flags.Journal
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

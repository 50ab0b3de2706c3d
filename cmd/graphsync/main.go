// Package main provides the graphsync CLI. In read mode it captures
// mutating graph queries from a live FalkorDB instance into a journal file;
// in write mode it replays that journal against an instance.
//
// Capture and replay must not run against the same journal at the same time.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entrhq/graphsync/pkg/config"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile         string
	URI                string
	File               string
	StartWriteFromLine string
	StartAfterLine     int
	Graphs             []string
	ExcludeGraphs      []string
	RequireMarker      bool
	ContinueOnError    bool
	DryRun             bool
	Verbosity          string
	LogDir             string
	SummaryDir         string
	ConnectRetries     int
}

func main() {
	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go handleShutdown(sigChan, os.Stderr, cancel)

	err := newRootCommand().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

// handleShutdown cancels the run on the first signal and then restores the
// default handlers, so a second signal kills a run stuck in a blocking query.
func handleShutdown(sigChan chan os.Signal, out io.Writer, cancel context.CancelFunc) {
	<-sigChan
	signal.Stop(sigChan)
	fmt.Fprintln(out, "\nShutting down gracefully... (press Ctrl+C again to force quit)")
	cancel()
}

// newRootCommand builds the graphsync command. Only usage and configuration
// errors are returned from RunE; runtime failures are logged by run and
// the process still exits 0.
func newRootCommand() *cobra.Command {
	cli := &CLIConfig{}

	cmd := &cobra.Command{
		Use:   "graphsync <read|write> --uri URI --file PATH",
		Short: "Capture and replay FalkorDB write operations",
		Long: `graphsync copies write operations between FalkorDB instances.

  read   monitor an instance and append every mutating GRAPH.QUERY to --file
  write  replay --file against an instance, in order`,
		Example: `  # Capture writes from production
  graphsync read --uri redis://prod:6379 --file replay.log

  # Replay them into a fresh instance, resuming after a known entry
  graphsync write --uri falkor://staging:6379 --file replay.log \
    --start-write-from-line "CREATE (:Person {name:'a'})"

  # Resume after the last line reported in the run summary
  graphsync write --uri falkor://staging:6379 --file replay.log --start-after-line 1042`,
		Version:       version,
		ValidArgs:     []string{string(config.ModeRead), string(config.ModeWrite)},
		Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, config.Mode(args[0]), cli)
			if err != nil {
				return err
			}
			run(cmd.Context(), cfg)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flags.StringVar(&cli.URI, "uri", "", "The URI of the database")
	flags.StringVar(&cli.File, "file", "", "The file to be read or written to the database")
	flags.StringVar(&cli.StartWriteFromLine, "start-write-from-line", "",
		"Resume replay after the first line containing this value")
	flags.IntVar(&cli.StartAfterLine, "start-after-line", 0,
		"Resume replay after this 1-based line number")
	flags.StringSliceVar(&cli.Graphs, "graph", nil, "Only include graphs matching this glob (repeatable)")
	flags.StringSliceVar(&cli.ExcludeGraphs, "exclude-graph", nil, "Skip graphs matching this glob (repeatable)")
	flags.BoolVar(&cli.RequireMarker, "require-marker", false,
		"Fail when --start-write-from-line is not found instead of warning")
	flags.BoolVar(&cli.ContinueOnError, "continue-on-error", false, "Log failed queries and keep replaying")
	flags.BoolVar(&cli.DryRun, "dry-run", false, "Parse and log the journal without executing queries")
	flags.StringVar(&cli.Verbosity, "verbosity", "", "Logging verbosity: quiet, normal, verbose or debug")
	flags.StringVar(&cli.LogDir, "log-dir", "", "Directory for the per-session log file")
	flags.StringVar(&cli.SummaryDir, "summary-dir", "", "Directory for the run summary")
	flags.IntVar(&cli.ConnectRetries, "connect-retries", 0, "Additional connection attempts after the first")

	return cmd
}

// buildConfig layers explicitly set flags over the file and environment configuration
func buildConfig(cmd *cobra.Command, mode config.Mode, cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.Mode = mode

	flags := cmd.Flags()
	if flags.Changed("uri") {
		cfg.URI = cli.URI
	}
	if flags.Changed("file") {
		cfg.File = cli.File
	}
	if flags.Changed("start-write-from-line") {
		cfg.StartWriteFromLine = cli.StartWriteFromLine
	}
	if flags.Changed("start-after-line") {
		cfg.StartAfterLine = cli.StartAfterLine
	}
	if flags.Changed("graph") {
		cfg.Graphs.Include = cli.Graphs
	}
	if flags.Changed("exclude-graph") {
		cfg.Graphs.Exclude = cli.ExcludeGraphs
	}
	if flags.Changed("require-marker") {
		cfg.RequireMarker = cli.RequireMarker
	}
	if flags.Changed("continue-on-error") {
		cfg.ContinueOnError = cli.ContinueOnError
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = cli.DryRun
	}
	if flags.Changed("verbosity") {
		cfg.Logging.Verbosity = cli.Verbosity
	}
	if flags.Changed("log-dir") {
		cfg.Logging.Dir = cli.LogDir
	}
	if flags.Changed("summary-dir") {
		cfg.SummaryDir = cli.SummaryDir
	}
	if flags.Changed("connect-retries") {
		cfg.Connection.Retries = cli.ConnectRetries
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/graphsync/pkg/capture"
	"github.com/entrhq/graphsync/pkg/config"
	"github.com/entrhq/graphsync/pkg/falkordb"
	"github.com/entrhq/graphsync/pkg/filter"
	"github.com/entrhq/graphsync/pkg/journal"
	"github.com/entrhq/graphsync/pkg/logging"
	"github.com/entrhq/graphsync/pkg/replay"
	"github.com/entrhq/graphsync/pkg/summary"
)

// run executes one capture or replay. Every outcome, including errors and
// interruption, is logged rather than returned.
func run(ctx context.Context, cfg *config.Config) {
	logger, _ := logging.New("graphsync", logging.Options{
		Level: cfg.LogLevel(),
		Dir:   cfg.Logging.Dir,
	})
	defer logger.Close()

	runSummary := &summary.RunSummary{
		RunID:     logger.SessionID(),
		Mode:      string(cfg.Mode),
		File:      cfg.File,
		StartTime: time.Now(),
	}

	err := execute(ctx, cfg, logger, runSummary)

	switch {
	case ctx.Err() != nil:
		logger.Infof("Exiting")
		runSummary.Finish(summary.StatusInterrupted, nil)
	case err != nil:
		logger.Errorf("An error occurred: %v", err)
		runSummary.Finish(summary.StatusFailed, err)
	default:
		runSummary.Finish(summary.StatusSuccess, nil)
	}

	if cfg.SummaryDir != "" {
		if err := summary.NewWriter(cfg.SummaryDir).WriteAll(runSummary); err != nil {
			logger.Warnf("Failed to write run summary: %v", err)
		} else {
			logger.Infof("Run summary written to %s", cfg.SummaryDir)
		}
	}
}

// execute owns the database connection for the duration of the run
func execute(ctx context.Context, cfg *config.Config, logger *logging.Logger, runSummary *summary.RunSummary) error {
	graphs, err := filter.NewGraphMatcher(cfg.Graphs.Include, cfg.Graphs.Exclude)
	if err != nil {
		return err
	}

	if cfg.Mode == config.ModeWrite && cfg.DryRun {
		logger.Infof("Dry run: not connecting to database")
		stats, err := runReplay(ctx, cfg, nil, graphs, logger)
		runSummary.Replay = &stats
		return err
	}

	logger.Infof("Connecting to database")
	db, err := falkordb.Connect(ctx, cfg.URI, falkordb.Options{
		Retries:     cfg.Connection.Retries,
		RetryDelay:  cfg.Connection.RetryDelay,
		DialTimeout: cfg.Connection.DialTimeout,
		Logger:      logger.Named("falkordb"),
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warnf("Failed to close database connection: %v", closeErr)
		}
	}()
	logger.Infof("Connected to database")

	switch cfg.Mode {
	case config.ModeRead:
		source := db.Monitor(ctx)
		defer source.Stop()

		stats, err := runCapture(ctx, cfg, source, graphs, logger)
		runSummary.Capture = &stats
		runSummary.MonitorDropped = source.Dropped()
		if runSummary.MonitorDropped > 0 {
			logger.Warnf("Ignored %d unrecognised monitor replies", runSummary.MonitorDropped)
		}
		return err

	case config.ModeWrite:
		stats, err := runReplay(ctx, cfg, db, graphs, logger)
		runSummary.Replay = &stats
		return err

	default:
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
}

// runCapture appends mutating graph queries from source to the journal
func runCapture(ctx context.Context, cfg *config.Config, source capture.Source, graphs *filter.GraphMatcher, logger *logging.Logger) (capture.Stats, error) {
	w, err := journal.OpenWriter(cfg.File)
	if err != nil {
		return capture.Stats{}, err
	}
	defer w.Close()

	capturer := capture.New(source, w,
		capture.WithGraphFilter(graphs),
		capture.WithLogger(logger.Named("capture")),
	)

	stats, err := capturer.Run(ctx)
	logger.Infof("Captured %d of %d commands into %s", stats.Captured, stats.Seen, cfg.File)
	return stats, err
}

// runReplay dispatches the journal to exec in file order
func runReplay(ctx context.Context, cfg *config.Config, exec replay.Executor, graphs *filter.GraphMatcher, logger *logging.Logger) (replay.Stats, error) {
	replayer := replay.New(exec,
		replay.WithMarker(cfg.StartWriteFromLine),
		replay.WithStartAfterLine(cfg.StartAfterLine),
		replay.WithRequireMarker(cfg.RequireMarker),
		replay.WithContinueOnError(cfg.ContinueOnError),
		replay.WithDryRun(cfg.DryRun),
		replay.WithGraphFilter(graphs),
		replay.WithLogger(logger.Named("replay")),
	)

	return replayer.ReplayFile(ctx, cfg.File)
}

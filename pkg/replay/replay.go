// Package replay re-executes journal entries against a graph database in
// file order, optionally resuming after a marker line.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/entrhq/graphsync/pkg/command"
	"github.com/entrhq/graphsync/pkg/filter"
	"github.com/entrhq/graphsync/pkg/journal"
	"github.com/entrhq/graphsync/pkg/logging"
)

// ErrMarkerNotFound is returned when a required resume marker does not
// appear in the journal.
var ErrMarkerNotFound = errors.New("resume marker not found")

// Executor runs a single query against a graph and blocks until it completes.
type Executor interface {
	Query(ctx context.Context, graph, query string) error
}

// Stats summarises a replay run.
type Stats struct {
	Lines       int
	Skipped     int
	Dispatched  int
	Filtered    int
	Failed      int
	MarkerFound bool

	// LastEntry is the last line dispatched successfully and LastLine its
	// 1-based line number. Journals may repeat an entry, so resume with
	// LastLine rather than using LastEntry as a marker.
	LastEntry string
	LastLine  int
}

// LineError reports the journal line a replay stopped at.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Replayer dispatches journal entries to an Executor.
type Replayer struct {
	executor Executor
	logger   *logging.Logger
	graphs   *filter.GraphMatcher

	marker          string
	startAfter      int
	requireMarker   bool
	continueOnError bool
	dryRun          bool
}

// Option configures a Replayer
type Option func(*Replayer)

// WithMarker resumes replay after the first line containing marker
func WithMarker(marker string) Option {
	return func(r *Replayer) {
		r.marker = marker
	}
}

// WithStartAfterLine skips the first n lines of the journal
func WithStartAfterLine(n int) Option {
	return func(r *Replayer) {
		r.startAfter = n
	}
}

// WithRequireMarker makes a missing resume marker an error instead of a warning
func WithRequireMarker(require bool) Option {
	return func(r *Replayer) {
		r.requireMarker = require
	}
}

// WithContinueOnError logs and counts failed queries instead of stopping
func WithContinueOnError(cont bool) Option {
	return func(r *Replayer) {
		r.continueOnError = cont
	}
}

// WithDryRun logs the queries that would run without executing them
func WithDryRun(dryRun bool) Option {
	return func(r *Replayer) {
		r.dryRun = dryRun
	}
}

// WithGraphFilter restricts replay to graphs the matcher allows
func WithGraphFilter(gm *filter.GraphMatcher) Option {
	return func(r *Replayer) {
		r.graphs = gm
	}
}

// WithLogger sets the logger used for progress reporting
func WithLogger(l *logging.Logger) Option {
	return func(r *Replayer) {
		r.logger = l
	}
}

// New creates a Replayer that sends queries to executor
func New(executor Executor, opts ...Option) *Replayer {
	r := &Replayer{
		executor: executor,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile replays the journal at path.
func (r *Replayer) ReplayFile(ctx context.Context, path string) (Stats, error) {
	rd, err := journal.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer rd.Close()

	return r.replay(ctx, rd)
}

// Run replays journal lines read from in.
func (r *Replayer) Run(ctx context.Context, in io.Reader) (Stats, error) {
	return r.replay(ctx, journal.NewReader(in))
}

func (r *Replayer) replay(ctx context.Context, rd *journal.Reader) (Stats, error) {
	stats := Stats{MarkerFound: r.marker == ""}
	r.logger.Infof("Starting writing to db")

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Infof("Replay interrupted after %d queries", stats.Dispatched)
			return stats, err
		}

		line, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.Lines++

		if rd.LineNumber() <= r.startAfter {
			stats.Skipped++
			continue
		}

		if !stats.MarkerFound {
			stats.Skipped++
			if strings.Contains(line, r.marker) {
				stats.MarkerFound = true
				r.logger.Infof("Found starting line %d: %s", rd.LineNumber(), line)
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			stats.Skipped++
			continue
		}

		if err := r.dispatch(ctx, line, rd.LineNumber(), &stats); err != nil {
			return stats, &LineError{Line: rd.LineNumber(), Err: err}
		}
	}

	if r.startAfter > stats.Lines {
		r.logger.Warnf("Start line %d is past the end of the journal (%d lines); nothing was replayed", r.startAfter, stats.Lines)
	}

	if !stats.MarkerFound {
		if r.requireMarker {
			return stats, fmt.Errorf("%w: %q", ErrMarkerNotFound, r.marker)
		}
		r.logger.Warnf("Resume marker %q not found in %d lines; nothing was replayed", r.marker, stats.Lines)
	}

	r.logger.Infof("Finished writing to db: %d dispatched, %d skipped, %d filtered, %d failed",
		stats.Dispatched, stats.Skipped, stats.Filtered, stats.Failed)
	return stats, nil
}

func (r *Replayer) dispatch(ctx context.Context, line string, lineNo int, stats *Stats) error {
	entry, err := command.ParseEntry(line)
	if err != nil {
		return err
	}
	entry = entry.Normalized()

	if !r.graphs.Allows(entry.Graph) {
		stats.Filtered++
		r.logger.Debugf("Skipping graph %s (filtered)", entry.Graph)
		return nil
	}

	if r.dryRun {
		r.logger.Infof("Would execute query: %s - %s", entry.Graph, entry.Query)
		stats.Dispatched++
		stats.LastEntry, stats.LastLine = line, lineNo
		return nil
	}

	r.logger.Verbosef("Executing query: %s - %s", entry.Graph, entry.Query)
	if err := r.executor.Query(ctx, entry.Graph, entry.Query); err != nil {
		if ctx.Err() != nil || !r.continueOnError {
			return fmt.Errorf("query on graph %s failed: %w", entry.Graph, err)
		}
		stats.Failed++
		r.logger.Errorf("Query on graph %s failed, continuing: %v", entry.Graph, err)
		return nil
	}

	stats.Dispatched++
	stats.LastEntry, stats.LastLine = line, lineNo
	return nil
}

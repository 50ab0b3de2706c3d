// Package capture records mutating graph queries observed on a live command
// stream into a journal.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/entrhq/graphsync/pkg/command"
	"github.com/entrhq/graphsync/pkg/filter"
	"github.com/entrhq/graphsync/pkg/logging"
)

// Source yields raw command strings in arrival order. Next blocks until a
// command arrives, returning io.EOF when the stream ends or ctx.Err() once
// ctx is cancelled.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// Sink receives captured lines. *journal.Writer satisfies it.
type Sink interface {
	Append(line string) error
}

// Stats counts what happened to the commands a capture run observed.
type Stats struct {
	Seen      int
	Captured  int
	Ignored   int
	Filtered  int
	Malformed int
}

// Capturer moves mutating GRAPH.QUERY commands from a Source to a Sink.
type Capturer struct {
	source Source
	sink   Sink
	graphs *filter.GraphMatcher
	logger *logging.Logger

	stats Stats
}

// Option configures a Capturer
type Option func(*Capturer)

// WithGraphFilter restricts capture to graphs the matcher allows
func WithGraphFilter(gm *filter.GraphMatcher) Option {
	return func(c *Capturer) {
		c.graphs = gm
	}
}

// WithLogger sets the logger used for progress and skipped commands
func WithLogger(l *logging.Logger) Option {
	return func(c *Capturer) {
		c.logger = l
	}
}

// New creates a Capturer reading from source and appending to sink
func New(source Source, sink Sink, opts ...Option) *Capturer {
	c := &Capturer{
		source: source,
		sink:   sink,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes commands until the source ends or ctx is cancelled. Both are
// clean terminations and return a nil error. Malformed graph queries are
// logged and skipped. A source or sink failure stops the run.
func (c *Capturer) Run(ctx context.Context) (Stats, error) {
	c.logger.Infof("Monitoring started")

	for {
		raw, err := c.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.logger.Infof("Command stream closed")
				return c.stats, nil
			case ctx.Err() != nil:
				c.logger.Infof("Capture interrupted")
				return c.stats, nil
			default:
				return c.stats, fmt.Errorf("failed to read command stream: %w", err)
			}
		}

		if err := c.handle(raw); err != nil {
			return c.stats, err
		}
	}
}

// Stats returns the counters accumulated so far
func (c *Capturer) Stats() Stats {
	return c.stats
}

func (c *Capturer) handle(raw string) error {
	c.stats.Seen++
	raw = strings.TrimRight(raw, "\r\n")

	if !command.IsGraphQuery(raw) {
		c.stats.Ignored++
		return nil
	}

	entry, err := command.ParseEntry(raw)
	if err == nil && strings.ContainsAny(raw, "\r\n") {
		err = &command.ParseError{Line: raw, Reason: "line break inside command"}
	}
	if err != nil {
		c.stats.Malformed++
		c.logger.Warnf("Skipping unparseable graph query: %v", err)
		return nil
	}

	if !c.graphs.Allows(entry.Graph) {
		c.stats.Filtered++
		c.logger.Debugf("Skipping graph %s (filtered)", entry.Graph)
		return nil
	}

	if !command.IsMutating(entry.Query) {
		c.stats.Ignored++
		return nil
	}

	if err := c.sink.Append(raw); err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	c.stats.Captured++
	c.logger.Verbosef("Writing to file: %s", raw)

	return nil
}

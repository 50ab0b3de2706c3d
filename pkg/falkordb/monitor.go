package falkordb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/entrhq/graphsync/pkg/command"
	"github.com/entrhq/graphsync/pkg/logging"
)

// ErrMonitorClosed is returned by MonitorSource.Next once the server side of
// the MONITOR connection has gone away.
var ErrMonitorClosed = errors.New("monitor connection closed")

// MonitorSource turns raw MONITOR output into textual commands, one per Next
// call. Replies that are not command records are dropped.
type MonitorSource struct {
	lines    <-chan string
	closed   <-chan struct{}
	watch    *connWatch
	stop     func()
	stopOnce sync.Once
	logger   *logging.Logger
	dropped  int
}

func newMonitorSource(lines <-chan string, watch *connWatch, stop func(), logger *logging.Logger) *MonitorSource {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &MonitorSource{lines: lines, watch: watch, stop: stop, logger: logger}
	if watch != nil {
		s.closed = watch.Done()
	}
	return s
}

// Next blocks until the next command arrives. It returns io.EOF if the line
// channel is closed, ctx.Err() once ctx is cancelled and ErrMonitorClosed
// after the connection fails. Commands received before the failure are
// still returned first.
func (s *MonitorSource) Next(ctx context.Context) (string, error) {
	for {
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok = <-s.lines:
		case <-s.closed:
			select {
			case line, ok = <-s.lines:
			default:
				return "", fmt.Errorf("%w: %v", ErrMonitorClosed, s.watch.Err())
			}
		}
		if !ok {
			return "", io.EOF
		}

		rec, err := command.ParseMonitorLine(line)
		if err != nil {
			if line != "OK" {
				s.logger.Debugf("Dropping monitor output %q: %v", line, err)
				s.dropped++
			}
			continue
		}
		return rec.Command(), nil
	}
}

// Dropped returns how many monitor replies were neither command records nor
// the initial OK.
func (s *MonitorSource) Dropped() int {
	return s.dropped
}

// Stop ends monitoring. Safe to call multiple times.
func (s *MonitorSource) Stop() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

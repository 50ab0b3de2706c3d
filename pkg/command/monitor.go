package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotMonitorRecord is returned for MONITOR output that does not describe
// a command, such as the initial OK reply.
var ErrNotMonitorRecord = errors.New("not a monitor record")

// MonitorRecord is one command observed through Redis MONITOR:
//
//	1339518083.107412 [0 127.0.0.1:60866] "GRAPH.QUERY" "g" "CREATE ()" "--compact"
type MonitorRecord struct {
	Timestamp time.Time
	DB        int
	Client    string
	Args      []string
}

// Command returns the record's arguments joined by single spaces.
func (r MonitorRecord) Command() string {
	return strings.Join(r.Args, " ")
}

// ParseMonitorLine tokenises a raw MONITOR line. Inside an argument only \"
// is unescaped; every other escape sequence is kept as written, so the
// resulting command always fits on a single line.
func ParseMonitorLine(line string) (MonitorRecord, error) {
	line = strings.TrimRight(line, "\r\n")

	tsEnd := strings.IndexByte(line, ' ')
	if tsEnd <= 0 {
		return MonitorRecord{}, ErrNotMonitorRecord
	}
	ts, err := parseMonitorTimestamp(line[:tsEnd])
	if err != nil {
		return MonitorRecord{}, ErrNotMonitorRecord
	}

	rest := line[tsEnd+1:]
	if !strings.HasPrefix(rest, "[") {
		return MonitorRecord{}, ErrNotMonitorRecord
	}
	closeIdx := strings.IndexByte(rest, ']')
	if closeIdx < 0 {
		return MonitorRecord{}, ErrNotMonitorRecord
	}

	db, client, ok := strings.Cut(rest[1:closeIdx], " ")
	if !ok {
		return MonitorRecord{}, ErrNotMonitorRecord
	}
	dbIndex, err := strconv.Atoi(db)
	if err != nil {
		return MonitorRecord{}, ErrNotMonitorRecord
	}

	args, err := splitQuotedArgs(rest[closeIdx+1:])
	if err != nil {
		return MonitorRecord{}, fmt.Errorf("%w: %v", ErrNotMonitorRecord, err)
	}
	if len(args) == 0 {
		return MonitorRecord{}, ErrNotMonitorRecord
	}

	return MonitorRecord{
		Timestamp: ts,
		DB:        dbIndex,
		Client:    client,
		Args:      args,
	}, nil
}

// parseMonitorTimestamp parses "<seconds>.<microseconds>".
func parseMonitorTimestamp(s string) (time.Time, error) {
	secStr, fracStr, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var usec int64
	if fracStr != "" {
		if len(fracStr) < 6 {
			fracStr += strings.Repeat("0", 6-len(fracStr))
		}
		fracStr = fracStr[:6]
		if usec, err = strconv.ParseInt(fracStr, 10, 64); err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(sec, usec*int64(time.Microsecond)), nil
}

func splitQuotedArgs(s string) ([]string, error) {
	var args []string
	i := 0
	for i < len(s) {
		if s[i] == ' ' {
			i++
			continue
		}
		if s[i] != '"' {
			return nil, fmt.Errorf("unquoted argument at offset %d", i)
		}

		var b strings.Builder
		i++
		closed := false
		for i < len(s) {
			c := s[i]
			if c == '\\' && i+1 < len(s) {
				if s[i+1] == '"' {
					b.WriteByte('"')
				} else {
					b.WriteByte(c)
					b.WriteByte(s[i+1])
				}
				i += 2
				continue
			}
			if c == '"' {
				closed = true
				i++
				break
			}
			b.WriteByte(c)
			i++
		}
		if !closed {
			return nil, fmt.Errorf("unterminated argument")
		}
		args = append(args, b.String())
	}
	return args, nil
}

// Package command parses the textual GRAPH.QUERY records exchanged between
// the capture and replay paths.
//
// A log entry has the form
//
//	GRAPH.QUERY <graph-name> <query-text> --compact
//
// and is parsed into a typed Entry. Raw Redis MONITOR output is tokenised by
// ParseMonitorLine before it reaches ParseEntry.
package command

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// QueryCommand is the command name every log entry starts with.
	QueryCommand = "GRAPH.QUERY"

	compactFlag = " --compact"

	maxErrorLineLen = 120
)

// mutatingKeywords are matched as case-insensitive substrings of the query text.
var mutatingKeywords = []string{"create", "delete", "set", "remove", "merge"}

// lineBreaks replaces both real and backslash-escaped line breaks. Longer
// sequences come first so "\r\n" collapses to a single space.
var lineBreaks = strings.NewReplacer(
	`\r\n`, " ",
	"\r\n", " ",
	`\n`, " ",
	"\n", " ",
	`\r`, " ",
	"\r", " ",
)

// ErrMalformedEntry is matched by every ParseError.
var ErrMalformedEntry = errors.New("malformed graph query entry")

// ParseError describes a line that does not follow the entry format.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	line := e.Line
	if len(line) > maxErrorLineLen {
		line = line[:maxErrorLineLen] + "..."
	}
	return fmt.Sprintf("malformed entry (%s): %q", e.Reason, line)
}

// Is reports whether target is ErrMalformedEntry.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedEntry
}

// Entry is a single graph query recovered from a log line.
type Entry struct {
	Graph string
	Query string
}

// String formats the entry as a log line, without the trailing newline.
func (e Entry) String() string {
	return QueryCommand + " " + e.Graph + " " + e.Query + compactFlag
}

// Normalized returns a copy of the entry with line breaks in the query
// replaced by single spaces.
func (e Entry) Normalized() Entry {
	return Entry{Graph: e.Graph, Query: NormalizeQuery(e.Query)}
}

// ParseEntry parses a log line. The graph name runs up to the first space
// after the command name; the query runs up to the last " --compact".
// Anything following the final flag is ignored.
func ParseEntry(line string) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")

	n := len(QueryCommand)
	if len(line) <= n || !strings.EqualFold(line[:n], QueryCommand) || line[n] != ' ' {
		return Entry{}, &ParseError{Line: line, Reason: "missing " + QueryCommand + " prefix"}
	}

	rest := line[n+1:]
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return Entry{}, &ParseError{Line: line, Reason: "missing query text"}
	}
	if sp == 0 {
		return Entry{}, &ParseError{Line: line, Reason: "empty graph name"}
	}

	graph := rest[:sp]
	tail := rest[sp:]
	idx := lastIndexFold(tail, compactFlag)
	if idx < 0 {
		return Entry{}, &ParseError{Line: line, Reason: "missing --compact flag"}
	}

	query := ""
	if idx > 0 {
		query = tail[1:idx]
	}
	if strings.TrimSpace(query) == "" {
		return Entry{}, &ParseError{Line: line, Reason: "empty query text"}
	}

	return Entry{Graph: graph, Query: query}, nil
}

// IsGraphQuery reports whether line mentions the GRAPH.QUERY command.
func IsGraphQuery(line string) bool {
	return strings.Contains(strings.ToUpper(line), QueryCommand)
}

// IsMutating reports whether query contains any of the write keywords
// create, delete, set, remove or merge, ignoring case.
func IsMutating(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range mutatingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// NormalizeQuery replaces literal and escaped line breaks with single spaces.
func NormalizeQuery(query string) string {
	return lineBreaks.Replace(query)
}

// lastIndexFold is strings.LastIndex with ASCII case folding on substr.
func lastIndexFold(s, substr string) int {
	for i := len(s) - len(substr); i >= 0; i-- {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

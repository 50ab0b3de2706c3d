package command

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonitorLine(t *testing.T) {
	line := `1339518083.107412 [0 127.0.0.1:60866] "GRAPH.QUERY" "social" "CREATE (:Person {name:\"a\"})" "--compact"`

	rec, err := ParseMonitorLine(line)
	require.NoError(t, err)

	assert.Equal(t, time.Unix(1339518083, 107412000), rec.Timestamp)
	assert.Equal(t, 0, rec.DB)
	assert.Equal(t, "127.0.0.1:60866", rec.Client)
	assert.Equal(t, []string{"GRAPH.QUERY", "social", `CREATE (:Person {name:"a"})`, "--compact"}, rec.Args)
	assert.Equal(t, `GRAPH.QUERY social CREATE (:Person {name:"a"}) --compact`, rec.Command())
}

func TestParseMonitorLine_KeepsOtherEscapes(t *testing.T) {
	line := `1700000000.000001 [3 unix:/tmp/redis.sock] "GRAPH.QUERY" "g" "CREATE (n)\nRETURN n" "--compact"`

	rec, err := ParseMonitorLine(line)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.DB)
	assert.Equal(t, "unix:/tmp/redis.sock", rec.Client)
	assert.Equal(t, `GRAPH.QUERY g CREATE (n)\nRETURN n --compact`, rec.Command())

	entry, err := ParseEntry(rec.Command())
	require.NoError(t, err)
	assert.Equal(t, "CREATE (n) RETURN n", NormalizeQuery(entry.Query))
}

func TestParseMonitorLine_EscapedBackslashBeforeQuote(t *testing.T) {
	line := `1700000000.5 [0 lua] "SET" "k" "a\\" "x"`

	rec, err := ParseMonitorLine(line)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "k", `a\\`, "x"}, rec.Args)
}

func TestParseMonitorLine_Rejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"ok reply", "OK"},
		{"empty", ""},
		{"bad timestamp", `abc [0 127.0.0.1:1] "PING"`},
		{"missing client block", `1700000000.1 "PING"`},
		{"unterminated block", `1700000000.1 [0 127.0.0.1:1 "PING"`},
		{"bad db", `1700000000.1 [x 127.0.0.1:1] "PING"`},
		{"no args", `1700000000.1 [0 127.0.0.1:1]`},
		{"unquoted arg", `1700000000.1 [0 127.0.0.1:1] PING`},
		{"unterminated arg", `1700000000.1 [0 127.0.0.1:1] "PING`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMonitorLine(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotMonitorRecord))
		})
	}
}

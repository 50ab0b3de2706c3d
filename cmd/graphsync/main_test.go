package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/graphsync/pkg/config"
	"github.com/entrhq/graphsync/pkg/filter"
	"github.com/entrhq/graphsync/pkg/logging"
	"github.com/entrhq/graphsync/pkg/summary"
)

func executeCommand(t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func writeJournal(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "replay.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func readSummary(t *testing.T, dir string) summary.RunSummary {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)

	var s summary.RunSummary
	require.NoError(t, json.Unmarshal(data, &s))
	return s
}

func TestHandleShutdown(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		handleShutdown(sigChan, &out, cancel)
		close(done)
	}()

	sigChan <- syscall.SIGTERM

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown handler did not return")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Contains(t, out.String(), "press Ctrl+C again")
}

func TestRootCommand_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no mode", []string{"--uri", "redis://x", "--file", "f"}},
		{"unknown mode", []string{"sync", "--uri", "redis://x", "--file", "f"}},
		{"extra args", []string{"read", "write", "--uri", "redis://x", "--file", "f"}},
		{"missing uri", []string{"read", "--file", "f"}},
		{"missing file", []string{"write", "--uri", "redis://x"}},
		{"marker in read mode", []string{"read", "--uri", "redis://x", "--file", "f", "--start-write-from-line", "m"}},
		{"both resume options", []string{"write", "--uri", "redis://x", "--file", "f", "--start-after-line", "2", "--start-write-from-line", "m"}},
		{"bad verbosity", []string{"write", "--uri", "redis://x", "--file", "f", "--verbosity", "loud"}},
		{"bad graph pattern", []string{"write", "--uri", "redis://x", "--file", "f", "--graph", "[x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, executeCommand(t, tt.args...))
		})
	}
}

func TestRootCommand_DryRunReplay(t *testing.T) {
	journalPath := writeJournal(t, "GRAPH.QUERY g CREATE (a) --compact\nGRAPH.QUERY g CREATE (b) --compact\nGRAPH.QUERY h CREATE (c) --compact\n")
	summaryDir := t.TempDir()

	err := executeCommand(t, "write",
		"--uri", "redis://127.0.0.1:1",
		"--file", journalPath,
		"--dry-run",
		"--start-write-from-line", "CREATE (a)",
		"--exclude-graph", "h",
		"--verbosity", "quiet",
		"--summary-dir", summaryDir,
	)
	require.NoError(t, err)

	s := readSummary(t, summaryDir)
	assert.Equal(t, summary.StatusSuccess, s.Status)
	assert.Equal(t, "write", s.Mode)
	require.NotNil(t, s.Replay)
	assert.Equal(t, 1, s.Replay.Dispatched)
	assert.Equal(t, 1, s.Replay.Filtered)
	assert.True(t, s.Replay.MarkerFound)
}

func TestRootCommand_DryRunResumeByLineWithoutURI(t *testing.T) {
	journalPath := writeJournal(t, "GRAPH.QUERY g CREATE (:N) --compact\nGRAPH.QUERY g CREATE (:N) --compact\nGRAPH.QUERY g CREATE (:M) --compact\n")
	summaryDir := t.TempDir()

	err := executeCommand(t, "write",
		"--file", journalPath,
		"--dry-run",
		"--start-after-line", "2",
		"--verbosity", "quiet",
		"--summary-dir", summaryDir,
	)
	require.NoError(t, err)

	s := readSummary(t, summaryDir)
	assert.Equal(t, summary.StatusSuccess, s.Status)
	require.NotNil(t, s.Replay)
	assert.Equal(t, 1, s.Replay.Dispatched)
	assert.Equal(t, "GRAPH.QUERY g CREATE (:M) --compact", s.Replay.LastEntry)
	assert.Equal(t, 3, s.Replay.LastLine)
}

func TestRootCommand_RuntimeErrorsExitCleanly(t *testing.T) {
	summaryDir := t.TempDir()
	journalPath := writeJournal(t, "GRAPH.QUERY g CREATE (a) --compact\nnot an entry\n")

	err := executeCommand(t, "write",
		"--uri", "redis://127.0.0.1:1",
		"--file", journalPath,
		"--dry-run",
		"--verbosity", "quiet",
		"--summary-dir", summaryDir,
	)
	require.NoError(t, err)

	s := readSummary(t, summaryDir)
	assert.Equal(t, summary.StatusFailed, s.Status)
	assert.Contains(t, s.Error, "line 2")
}

func TestRootCommand_ConfigFileAndFlagOverride(t *testing.T) {
	journalPath := writeJournal(t, "GRAPH.QUERY g CREATE (a) --compact\n")
	summaryDir := t.TempDir()

	configPath := filepath.Join(t.TempDir(), "graphsync.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(
		"uri: redis://127.0.0.1:1\nfile: /does/not/exist.log\ndry_run: true\nlogging:\n  verbosity: quiet\n"), 0600))

	err := executeCommand(t, "write",
		"--config", configPath,
		"--file", journalPath,
		"--summary-dir", summaryDir,
	)
	require.NoError(t, err)

	s := readSummary(t, summaryDir)
	assert.Equal(t, summary.StatusSuccess, s.Status)
	assert.Equal(t, journalPath, s.File)
	require.NotNil(t, s.Replay)
	assert.Equal(t, 1, s.Replay.Dispatched)
}

// fakeSource yields fixed commands and then io.EOF
type fakeSource struct {
	commands []string
}

func (f *fakeSource) Next(ctx context.Context) (string, error) {
	if len(f.commands) == 0 {
		return "", io.EOF
	}
	cmd := f.commands[0]
	f.commands = f.commands[1:]
	return cmd, nil
}

func TestRunCapture_AppendsToJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.log")
	require.NoError(t, os.WriteFile(path, []byte("GRAPH.QUERY g CREATE (old) --compact\n"), 0600))

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeRead
	cfg.File = path

	var console bytes.Buffer
	logger, err := logging.New("test", logging.Options{Console: &console})
	require.NoError(t, err)
	defer logger.Close()

	source := &fakeSource{commands: []string{
		"GRAPH.QUERY g CREATE (new) --compact",
		"GRAPH.QUERY g MATCH (n) RETURN n --compact",
	}}

	stats, err := runCapture(context.Background(), cfg, source, filter.AllowAll(), logger)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Captured)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "GRAPH.QUERY g CREATE (old) --compact\nGRAPH.QUERY g CREATE (new) --compact\n", string(data))
	assert.Contains(t, console.String(), "Captured 1 of 2 commands")
}

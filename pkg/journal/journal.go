// Package journal provides the append and read primitives for the replay
// log file. The file is append-only while capturing and read-only while
// replaying; callers must not run both against the same path at once.
package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Writer appends lines to a journal file.
type Writer struct {
	path      string
	file      *os.File
	mu        sync.Mutex
	closeOnce sync.Once
}

// OpenWriter opens path for appending, creating the file and its parent
// directory if they do not exist.
func OpenWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Writer{path: path, file: file}, nil
}

// Append writes line followed by a newline and flushes it to disk.
func (w *Writer) Append(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("journal line must not contain line breaks")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to journal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	return nil
}

// Path returns the journal file path.
func (w *Writer) Path() string {
	return w.path
}

// Close closes the journal file. Safe to call multiple times.
func (w *Writer) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.file.Close()
	})
	return err
}

// Reader yields journal lines in file order.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	line   int
}

// Open opens the journal at path for reading.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	rd := NewReader(file)
	rd.closer = file
	return rd, nil
}

// NewReader reads journal lines from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next line without its line terminator. It returns io.EOF
// once every line has been read. Lines may be of any length.
func (r *Reader) Next() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read journal: %w", err)
		}
		if line == "" {
			return "", io.EOF
		}
	}
	r.line++
	return strings.TrimRight(line, "\r\n"), nil
}

// LineNumber returns the 1-based number of the last line returned by Next.
func (r *Reader) LineNumber() int {
	return r.line
}

// Close closes the underlying file, if Open created it.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

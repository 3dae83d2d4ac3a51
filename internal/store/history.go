package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// HistoryEntry is one line of the comparison history log, history.jsonl.
type HistoryEntry struct {
	// ReportID links to the stored report, if one was saved
	ReportID string `json:"reportId,omitempty"`

	Expected string  `json:"expected"`
	Actual   string  `json:"actual"`
	Mode     string  `json:"mode"`
	Passed   bool    `json:"passed"`
	Furthest float64 `json:"furthest,omitempty"`
	RMS      float64 `json:"rms,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// HistoryEntryFor summarizes a report as a history line
func HistoryEntryFor(r *Report) HistoryEntry {
	e := HistoryEntry{
		ReportID:  r.ID,
		Expected:  r.Config.Expected,
		Actual:    r.Config.Actual,
		Mode:      r.Config.Mode,
		Passed:    r.Passed,
		Timestamp: r.Timestamp,
	}
	if r.Summary != nil {
		e.Furthest = r.Summary.Furthest
		e.RMS = r.Summary.RMS
	}
	return e
}

func historyPath(baseDir string) string {
	return filepath.Join(baseDir, "history.jsonl")
}

// HistoryWriter appends entries to <baseDir>/history.jsonl.
// It uses buffered I/O and is safe for concurrent use.
type HistoryWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewHistoryWriter opens the history log for appending, creating it if needed.
func NewHistoryWriter(baseDir string) (*HistoryWriter, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	path := historyPath(baseDir)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}

	return &HistoryWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write buffers an entry; it reaches disk on Flush or Close.
func (hw *HistoryWriter) Write(entry HistoryEntry) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	if _, err := hw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write history entry: %w", err)
	}
	if err := hw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (hw *HistoryWriter) Flush() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if err := hw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush history writer: %w", err)
	}
	if err := hw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync history file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the history file.
func (hw *HistoryWriter) Close() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if err := hw.writer.Flush(); err != nil {
		hw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := hw.file.Close(); err != nil {
		return fmt.Errorf("failed to close history file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the history file.
func (hw *HistoryWriter) Path() string {
	return hw.path
}

// HistoryReader reads entries from history.jsonl.
type HistoryReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewHistoryReader opens the history log. A missing log yields ErrNotFound.
func NewHistoryReader(baseDir string) (*HistoryReader, error) {
	file, err := os.Open(historyPath(baseDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: "history"}
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &HistoryReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read returns the next entry, or io.EOF at the end of the log.
func (hr *HistoryReader) Read() (*HistoryEntry, error) {
	if !hr.scanner.Scan() {
		if err := hr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan history line: %w", err)
		}
		return nil, io.EOF
	}

	var entry HistoryEntry
	if err := json.Unmarshal(hr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining entries.
func (hr *HistoryReader) ReadAll() ([]HistoryEntry, error) {
	var entries []HistoryEntry
	for {
		entry, err := hr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the history reader.
func (hr *HistoryReader) Close() error {
	if err := hr.file.Close(); err != nil {
		return fmt.Errorf("failed to close history file: %w", err)
	}
	return nil
}

// DeleteHistory removes the history log. Returns nil if it doesn't exist.
func DeleteHistory(baseDir string) error {
	err := os.Remove(historyPath(baseDir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete history file: %w", err)
	}
	return nil
}

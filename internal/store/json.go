package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"playgraph/internal/logging"
	"playgraph/internal/record"
)

// JSONSink writes one JSON array of records, streamed element by element.
type JSONSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	count  int
	closed bool
}

// NewJSONSink creates the output file and writes the array opening.
func NewJSONSink(path string, force bool) (*JSONSink, error) {
	if err := checkOutput(path, force); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output %s: %w", path, err)
	}
	s := &JSONSink{path: path, file: f, w: bufio.NewWriter(f)}
	if _, err := s.w.WriteString("["); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Write appends records to the array.
func (s *JSONSink) Write(ctx context.Context, records []record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("write to closed sink %s", s.path)
	}

	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.Key(), err)
		}
		sep := ",\n"
		if s.count == 0 {
			sep = "\n"
		}
		if _, err := s.w.WriteString(sep); err != nil {
			return err
		}
		if _, err := s.w.Write(data); err != nil {
			return err
		}
		s.count++
	}
	logging.StoreDebug("wrote %d records to %s (%d total)", len(records), s.path, s.count)
	return nil
}

// Close terminates the array and closes the file.
func (s *JSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	tail := "\n]\n"
	if s.count == 0 {
		tail = "]\n"
	}
	if _, err := s.w.WriteString(tail); err != nil {
		s.file.Close()
		return err
	}
	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// ReadJSON loads a JSON output file.
func ReadJSON(path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []record.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return records, nil
}

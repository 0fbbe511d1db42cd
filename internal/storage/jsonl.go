package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"cdpHistory/internal/model"
)

// StdoutPath selects standard output instead of a file.
const StdoutPath = "-"

// JsonlStorage writes event records as JSON lines, one record per line,
// to a file or to an arbitrary writer.
type JsonlStorage struct {
	path string
	out  io.Writer
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	if path == StdoutPath {
		return NewJsonlWriter(os.Stdout)
	}
	return &JsonlStorage{path: path}
}

// NewJsonlWriter writes to w. Callers own w.
func NewJsonlWriter(w io.Writer) *JsonlStorage {
	return &JsonlStorage{out: w}
}

// PutHistory appends the records of one position.
func (s *JsonlStorage) PutHistory(_ context.Context, _ model.Position, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out != nil {
		return writeRecords(s.out, records)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	return writeRecords(file, records)
}

func writeRecords(w io.Writer, records []model.EventRecord) error {
	writer := bufio.NewWriter(w)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal event record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write event record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

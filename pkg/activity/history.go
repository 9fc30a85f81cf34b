package activity

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one activity lifecycle entry. Records are never mutated.
type Record struct {
	Timestamp time.Time
	Message   string
}

func (r Record) String() string {
	return fmt.Sprintf("%s - %s", r.Timestamp.UTC().Format(time.RFC3339Nano), r.Message)
}

// History is the append-only activity history of one process run.
// Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	records []Record
	mirror  io.Writer
	closer  io.Closer
}

// NewHistory creates an in-memory history.
func NewHistory() *History {
	return &History{}
}

// OpenHistory creates a history that also appends every record, one per
// line, to the file at path.
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure history directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	return &History{mirror: f, closer: f}, nil
}

// Append adds a record.
func (h *History) Append(ts time.Time, message string) {
	rec := Record{Timestamp: ts, Message: message}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	if h.mirror != nil {
		// The mirror is best effort; the in-memory list stays authoritative.
		_, _ = fmt.Fprintln(h.mirror, rec.String())
	}
}

// Records returns a copy of all records in append order.
func (h *History) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Close releases the mirror file, if any.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closer == nil {
		return nil
	}
	err := h.closer.Close()
	h.closer = nil
	h.mirror = nil
	return err
}

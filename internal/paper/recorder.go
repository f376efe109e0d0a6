package paper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"warriorbot-go/internal/execution"
)

// fillLine is one JSONL row; the fill's fields are inlined next to the session tag.
type fillLine struct {
	Session string `json:"session,omitempty"`
	execution.Fill
}

// JSONLRecorder appends fills to a file, one JSON object per line, tagged with
// the replay session that produced them so several runs can share a file.
type JSONLRecorder struct {
	mu      sync.Mutex
	session string
	file    *os.File
	enc     *json.Encoder
	written int
	err     error
}

// NewJSONLRecorder opens path for appending, creating parent directories.
func NewJSONLRecorder(path, session string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("fills dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open fills file: %w", err)
	}
	return &JSONLRecorder{session: session, file: file, enc: json.NewEncoder(file)}, nil
}

// Record implements FillRecorder. The first write error sticks and is
// returned by Close; later fills are dropped.
func (r *JSONLRecorder) Record(fill execution.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil || r.err != nil {
		return
	}
	if err := r.enc.Encode(fillLine{Session: r.session, Fill: fill}); err != nil {
		r.err = fmt.Errorf("write fill %s: %w", fill.ID, err)
		return
	}
	r.written++
}

// Written is the number of fills persisted so far.
func (r *JSONLRecorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Close closes the file and reports any write error seen while recording.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return r.err
	}
	err := r.file.Close()
	r.file = nil
	if r.err != nil {
		return r.err
	}
	return err
}

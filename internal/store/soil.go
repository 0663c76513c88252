package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SoilEntry is the durable trace a node leaves behind when it is dusted:
// enough to know what was forgotten, without keeping the full record.
type SoilEntry struct {
	Date    time.Time
	Title   string
	Topic   string
	NodeID  string
	Summary string
}

const soilDelimiter = "---"

// AppendSoil appends an entry to the soil log (SOIL.md at the store root).
// The log is append-only and human-readable.
func (s *Store) AppendSoil(e SoilEntry) error {
	path := filepath.Join(s.root, "SOIL.md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &WriteError{Op: "open soil", Path: path, Err: err}
	}
	defer f.Close()

	block := fmt.Sprintf("\n## %s — %s\n\n- topic: %s\n- id: %s\n\n%s\n\n%s\n",
		e.Date.Format("2006-01-02"), e.Title, e.Topic, e.NodeID, e.Summary, soilDelimiter)
	if _, err := f.WriteString(block); err != nil {
		return &WriteError{Op: "append soil", Path: path, Err: err}
	}
	return nil
}

// ReadSoil returns the full soil log, or "" when nothing has been reclaimed.
func (s *Store) ReadSoil() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "SOIL.md"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read soil log: %w", err)
	}
	return string(data), nil
}

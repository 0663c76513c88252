// Package store persists memory nodes on disk.
//
// Layout under the root:
//
//	topics/<topic>/<id>/node.json   metadata
//	topics/<topic>/<id>/content.md  L2 body
//	.trash/<topic>_<id>_<ts>/       soft-deleted nodes, recoverable
//	SOIL.md                         append-only log of reclaimed knowledge
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TrashTimeLayout is the timestamp encoded into trash entry names.
const TrashTimeLayout = "20060102_150405"

// WriteError reports a failed durable write. Per-node write failures are
// isolated by callers and must not abort a whole cycle.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Store is a file-backed node store.
type Store struct {
	root string
}

// DefaultRoot returns the default memory root: ~/.essence/memory
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".essence", "memory"), nil
}

// Open creates (if needed) and opens the store rooted at the given path.
func Open(root string) (*Store, error) {
	s := &Store{root: root}
	for _, dir := range []string{s.topicsDir(), s.trashDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return s, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) topicsDir() string { return filepath.Join(s.root, "topics") }
func (s *Store) trashDir() string  { return filepath.Join(s.root, ".trash") }

func (s *Store) nodeDir(topic, id string) string {
	return filepath.Join(s.topicsDir(), topic, id)
}

// Save persists a node's metadata and clears its dirty flag.
func (s *Store) Save(n *Node) error {
	dir := s.nodeDir(n.Topic, n.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Op: "mkdir", Path: dir, Err: err}
	}

	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return &WriteError{Op: "marshal", Path: dir, Err: err}
	}

	metaPath := filepath.Join(dir, "node.json")
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return &WriteError{Op: "write", Path: metaPath, Err: err}
	}

	n.Dirty = false
	return nil
}

// WriteContent stores the node's L2 body and points ContentRef at it.
func (s *Store) WriteContent(n *Node, content string) error {
	dir := s.nodeDir(n.Topic, n.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Op: "mkdir", Path: dir, Err: err}
	}
	path := filepath.Join(dir, "content.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &WriteError{Op: "write", Path: path, Err: err}
	}
	n.ContentRef = path
	return nil
}

// ReadContent returns the node's L2 body, or "" if none exists.
func (s *Store) ReadContent(n *Node) (string, error) {
	path := n.ContentRef
	if path == "" {
		path = filepath.Join(s.nodeDir(n.Topic, n.ID), "content.md")
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read content %s: %w", path, err)
	}
	return string(data), nil
}

// Load returns the node at topic/id, or nil if not found.
func (s *Store) Load(topic, id string) (*Node, error) {
	metaPath := filepath.Join(s.nodeDir(topic, id), "node.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read node %s/%s: %w", topic, id, err)
	}

	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode node %s/%s: %w", topic, id, err)
	}
	if !n.Tier.Valid() {
		return nil, fmt.Errorf("node %s/%s: unknown tier %q", topic, id, n.Tier)
	}
	return &n, nil
}

// ListAll returns every node in the store. Malformed entries are logged and
// skipped so one broken file cannot hide the rest of the corpus.
func (s *Store) ListAll() ([]*Node, error) {
	return s.list("")
}

// ListTopic returns all nodes under one topic.
func (s *Store) ListTopic(topic string) ([]*Node, error) {
	return s.list(topic)
}

func (s *Store) list(topic string) ([]*Node, error) {
	pattern := filepath.Join(s.topicsDir(), "*", "*", "node.json")
	if topic != "" {
		pattern = filepath.Join(s.topicsDir(), topic, "*", "node.json")
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	var nodes []*Node
	for _, metaPath := range matches {
		dir := filepath.Dir(metaPath)
		id := filepath.Base(dir)
		tpc := filepath.Base(filepath.Dir(dir))

		n, err := s.Load(tpc, id)
		if err != nil {
			log.Printf("store: skipping %s: %v", metaPath, err)
			continue
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// Siblings returns the other nodes sharing a node's topic.
func (s *Store) Siblings(n *Node) ([]*Node, error) {
	all, err := s.ListTopic(n.Topic)
	if err != nil {
		return nil, err
	}
	sibs := all[:0]
	for _, other := range all {
		if other.ID != n.ID {
			sibs = append(sibs, other)
		}
	}
	return sibs, nil
}

// MoveToTrash relocates a node's directory into the trash under a
// deterministic timestamped name, then persists its current metadata into
// the trashed copy. The trashed form keeps whatever tier the node carries
// (SOIL after a GC cycle), so a recovered node is identifiable. The rename
// happens first: a failed move leaves the live record exactly as it was,
// and the next cycle retries.
func (s *Store) MoveToTrash(n *Node) error {
	src := s.nodeDir(n.Topic, n.ID)
	name := fmt.Sprintf("%s_%s_%s", n.Topic, n.ID, time.Now().Format(TrashTimeLayout))
	dst := filepath.Join(s.trashDir(), name)

	if err := os.Rename(src, dst); err != nil {
		return &WriteError{Op: "trash", Path: src, Err: err}
	}

	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return &WriteError{Op: "marshal", Path: dst, Err: err}
	}
	metaPath := filepath.Join(dst, "node.json")
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return &WriteError{Op: "write", Path: metaPath, Err: err}
	}
	n.Dirty = false
	return nil
}

// ListTrash returns the names of all trash entries.
func (s *Store) ListTrash() ([]string, error) {
	entries, err := os.ReadDir(s.trashDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// DeleteTrashEntry permanently removes one trash entry.
func (s *Store) DeleteTrashEntry(name string) error {
	path := filepath.Join(s.trashDir(), name)
	if err := os.RemoveAll(path); err != nil {
		return &WriteError{Op: "purge", Path: path, Err: err}
	}
	return nil
}

// ParseTrashTime extracts the deletion timestamp from a trash entry name of
// the form {topic}_{id}_{YYYYMMDD}_{HHMMSS}. Topics and ids may themselves
// contain underscores, so the timestamp is parsed from the tail.
func ParseTrashTime(name string) (time.Time, error) {
	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return time.Time{}, fmt.Errorf("malformed trash entry %q", name)
	}
	ts := parts[len(parts)-2] + "_" + parts[len(parts)-1]
	t, err := time.ParseInLocation(TrashTimeLayout, ts, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed trash entry %q: %w", name, err)
	}
	return t, nil
}

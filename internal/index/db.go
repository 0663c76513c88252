// Package index maintains a local sqlite search index over memory nodes:
// document rows for keyword lookup and embedding vectors for similarity
// search. It is the collaborator the maintenance engine notifies when a
// node is removed, so index state follows store state.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Index wraps a sql.DB connection to the search index database.
type Index struct {
	db       *sql.DB
	path     string
	embedder Embedder
}

// DefaultPath returns the default index location: ~/.essence/index.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".essence", "index.db"), nil
}

// Open opens (or creates) the index at the given path, configures pragmas,
// and runs migrations.
func Open(path string, emb Embedder) (*Index, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path, emb)
}

// OpenMemory opens an in-memory index for testing.
func OpenMemory(emb Embedder) (*Index, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every pooled connection gets its own in-memory database; pin to one.
	sqlDB.SetMaxOpenConns(1)
	return setup(sqlDB, ":memory:", emb)
}

func setup(sqlDB *sql.DB, path string, emb Embedder) (*Index, error) {
	idx := &Index{db: sqlDB, path: path, embedder: emb}
	if err := idx.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := idx.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

// Close releases the underlying database.
func (idx *Index) Close() error { return idx.db.Close() }

// Path returns the database file path.
func (idx *Index) Path() string { return idx.path }

// Embedder returns the configured embedding provider.
func (idx *Index) Embedder() Embedder { return idx.embedder }

func (idx *Index) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := idx.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

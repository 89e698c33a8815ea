// Package sqlite provides a durable checkpoint saver backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stategraph/stategraph/internal/core/checkpoint"
	"github.com/stategraph/stategraph/pkg/serialization"
)

// Saver implements checkpoint.Saver on a SQLite database, one row per
// thread. INSERT OR REPLACE keeps the per-thread snapshot atomic: a
// reader sees either the old row or the new one, never a mix.
type Saver struct {
	db         *sql.DB
	serializer *serialization.Serializer
	tableName  string
}

// Open opens (or creates) the database at path and prepares the
// checkpoint table.
func Open(path string, serializer *serialization.Serializer) (*Saver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	s := NewSaver(db, serializer)
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSaver wraps an existing database handle. A nil serializer defaults
// to the msgpack+zstd pipeline.
func NewSaver(db *sql.DB, serializer *serialization.Serializer) *Saver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &Saver{db: db, serializer: serializer, tableName: "checkpoints"}
}

// WithTableName overrides the default table name. Only alphanumeric and
// underscore are permitted to prevent SQL injection via identifiers.
func (s *Saver) WithTableName(name string) *Saver {
	if isSafeIdent(name) {
		s.tableName = name
	}
	return s
}

// Init creates the checkpoint table if it does not exist.
func (s *Saver) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			thread_id     TEXT PRIMARY KEY,
			graph_name    TEXT NOT NULL,
			step          INTEGER NOT NULL,
			state         BLOB NOT NULL,
			pending_nodes TEXT NOT NULL,
			status        TEXT NOT NULL,
			failure       TEXT NOT NULL DEFAULT '',
			updated_at    INTEGER NOT NULL
		)
	`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// Save stores a checkpoint, replacing the thread's prior row.
func (s *Saver) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrInvalidThreadID
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("%w: %w", checkpoint.ErrSaveFailed, err)
	}

	stateBlob, err := s.serializer.Serialize(cp.State)
	if err != nil {
		return fmt.Errorf("serialize checkpoint state: %w", err)
	}
	pendingJSON, err := json.Marshal(cp.PendingNodes)
	if err != nil {
		return fmt.Errorf("serialize pending nodes: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s
			(thread_id, graph_name, step, state, pending_nodes, status, failure, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		cp.ThreadID, cp.GraphName, cp.Step, stateBlob, string(pendingJSON),
		string(cp.Status), cp.Failure, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %w", checkpoint.ErrSaveFailed, err)
	}
	return nil
}

// Load retrieves the checkpoint for a thread id.
func (s *Saver) Load(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	if threadID == "" {
		return nil, checkpoint.ErrInvalidThreadID
	}

	query := fmt.Sprintf(`
		SELECT thread_id, graph_name, step, state, pending_nodes, status, failure, updated_at
		FROM %s
		WHERE thread_id = ?
	`, s.tableName)

	var (
		cp          checkpoint.Checkpoint
		stateBlob   []byte
		pendingJSON string
		status      string
		updatedAt   int64
	)
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&cp.ThreadID, &cp.GraphName, &cp.Step, &stateBlob, &pendingJSON,
		&status, &cp.Failure, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", checkpoint.ErrLoadFailed, err)
	}

	cp.Status = checkpoint.Status(status)
	cp.UpdatedAt = time.Unix(updatedAt, 0)
	if err := s.serializer.Deserialize(stateBlob, &cp.State); err != nil {
		return nil, fmt.Errorf("deserialize checkpoint state: %w", err)
	}
	if err := json.Unmarshal([]byte(pendingJSON), &cp.PendingNodes); err != nil {
		return nil, fmt.Errorf("deserialize pending nodes: %w", err)
	}
	return &cp, nil
}

// Delete removes the checkpoint for a thread id.
func (s *Saver) Delete(ctx context.Context, threadID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE thread_id = ?`, s.tableName)
	res, err := s.db.ExecContext(ctx, query, threadID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return checkpoint.ErrNotFound
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Saver) Close() error {
	return s.db.Close()
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

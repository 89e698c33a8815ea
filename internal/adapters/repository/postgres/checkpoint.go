// Package postgres provides a durable checkpoint saver backed by PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stategraph/stategraph/internal/core/checkpoint"
	"github.com/stategraph/stategraph/pkg/serialization"
)

// Saver implements checkpoint.Saver on a PostgreSQL pool, one row per
// thread. The upsert runs in a single statement, so readers never
// observe a half-written snapshot.
type Saver struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
}

// NewSaver wraps an existing connection pool. A nil serializer defaults
// to the msgpack+zstd pipeline.
func NewSaver(pool *pgxpool.Pool, serializer *serialization.Serializer) *Saver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &Saver{pool: pool, serializer: serializer}
}

// Init creates the checkpoint table if it does not exist.
func (s *Saver) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id     TEXT PRIMARY KEY,
			graph_name    TEXT NOT NULL,
			step          INTEGER NOT NULL,
			state         BYTEA NOT NULL,
			pending_nodes JSONB NOT NULL,
			status        TEXT NOT NULL,
			failure       TEXT NOT NULL DEFAULT '',
			updated_at    TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// Save upserts the thread's snapshot.
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO checkpoints
			(thread_id, graph_name, step, state, pending_nodes, status, failure, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (thread_id) DO UPDATE SET
			graph_name = EXCLUDED.graph_name,
			step = EXCLUDED.step,
			state = EXCLUDED.state,
			pending_nodes = EXCLUDED.pending_nodes,
			status = EXCLUDED.status,
			failure = EXCLUDED.failure,
			updated_at = EXCLUDED.updated_at
	`, cp.ThreadID, cp.GraphName, cp.Step, stateBlob, pendingJSON,
		string(cp.Status), cp.Failure, time.Now().UTC())
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

	var (
		cp          checkpoint.Checkpoint
		stateBlob   []byte
		pendingJSON []byte
		status      string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT thread_id, graph_name, step, state, pending_nodes, status, failure, updated_at
		FROM checkpoints
		WHERE thread_id = $1
	`, threadID).Scan(
		&cp.ThreadID, &cp.GraphName, &cp.Step, &stateBlob, &pendingJSON,
		&status, &cp.Failure, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", checkpoint.ErrLoadFailed, err)
	}

	cp.Status = checkpoint.Status(status)
	if err := s.serializer.Deserialize(stateBlob, &cp.State); err != nil {
		return nil, fmt.Errorf("deserialize checkpoint state: %w", err)
	}
	if err := json.Unmarshal(pendingJSON, &cp.PendingNodes); err != nil {
		return nil, fmt.Errorf("deserialize pending nodes: %w", err)
	}
	return &cp, nil
}

// Delete removes the checkpoint for a thread id.
func (s *Saver) Delete(ctx context.Context, threadID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE thread_id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return checkpoint.ErrNotFound
	}
	return nil
}

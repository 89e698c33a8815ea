// Package memory provides a process-lifetime checkpoint saver.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/stategraph/stategraph/internal/core/checkpoint"
	"github.com/stategraph/stategraph/pkg/serialization"
)

// Saver implements checkpoint.Saver with thread-safe in-memory storage.
// Snapshots are stored serialized, so a loaded checkpoint never aliases
// the executor's working state. Suitable for the primary single-process
// use case; use the sqlite or postgres saver when resumption must
// survive a restart.
// PRINCIPLES:
// - KISS: One serialized snapshot per thread behind a mutex
// - DIP: Implements checkpoint.Saver
type Saver struct {
	mu         sync.RWMutex
	snapshots  map[string][]byte
	serializer *serialization.Serializer
}

// NewSaver creates an in-memory saver. A nil serializer defaults to the
// msgpack+zstd pipeline.
func NewSaver(serializer *serialization.Serializer) *Saver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &Saver{
		snapshots:  make(map[string][]byte),
		serializer: serializer,
	}
}

// Save replaces the thread's snapshot atomically.
func (s *Saver) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("%w: %w", checkpoint.ErrSaveFailed, err)
	}
	data, err := s.serializer.Serialize(cp)
	if err != nil {
		return fmt.Errorf("%w: %w", checkpoint.ErrSaveFailed, err)
	}

	s.mu.Lock()
	s.snapshots[cp.ThreadID] = data
	s.mu.Unlock()
	return nil
}

// Load retrieves the thread's snapshot.
func (s *Saver) Load(_ context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.snapshots[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, checkpoint.ErrNotFound
	}

	var cp checkpoint.Checkpoint
	if err := s.serializer.Deserialize(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %w", checkpoint.ErrLoadFailed, err)
	}
	return &cp, nil
}

// Delete removes the thread's snapshot.
func (s *Saver) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[threadID]; !ok {
		return checkpoint.ErrNotFound
	}
	delete(s.snapshots, threadID)
	return nil
}

// Len reports the number of stored snapshots (for monitoring).
func (s *Saver) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

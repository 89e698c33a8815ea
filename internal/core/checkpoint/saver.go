// Package checkpoint provides checkpoint persistence interfaces
package checkpoint

import (
	"context"
)

// Saver persists one checkpoint per thread id.
// PRINCIPLES:
// - ISP: Interface segregation with ≤5 methods
// - DIP: Core domain depends on interface, not implementations
//
// Save must replace the thread's snapshot atomically: a concurrent Load
// never observes a half-written checkpoint. Load of an unknown thread
// returns ErrNotFound, which callers treat as "start fresh" rather than
// a failure.
type Saver interface {
	// Save persists the checkpoint, replacing any prior snapshot for
	// the same thread id.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves the checkpoint for a thread id.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// Delete removes the checkpoint for a thread id.
	Delete(ctx context.Context, threadID string) error
}

// Package upload implements the upload admission governor.
//
// The governor decides which of many pending uploads may begin transferring
// bytes. Remote peers are partitioned into priority groups; the governor
// enforces a global concurrency cap, per-group concurrency caps, and a
// per-group ordering strategy (first-in-first-out or round-robin across
// users). It also answers queue position queries without running a
// simulation.
//
// The transfer engine drives the rendezvous: Enqueue registers an upload,
// AwaitStart returns a one-shot token that resolves when the governor
// releases the upload, and Complete returns the borrowed slot. Group
// definitions may change at runtime via Reconfigure without disturbing
// in-flight transfers.
package upload

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Upload is a pending or active transfer, identified by the pair
// (username, filename). Duplicate filenames for the same user are distinct
// queue entries; the engine treats repeats as retries and completes them
// one at a time.
type Upload struct {
	// ID is assigned at enqueue time and used for logging and the
	// management API. It plays no part in scheduling.
	ID uuid.UUID

	Username string
	Filename string

	// EnqueuedAt is set when the upload enters the queue.
	EnqueuedAt time.Time

	// ReadyAt is set when AwaitStart is first called. The upload is
	// eligible for release once ReadyAt is set and StartedAt is not.
	ReadyAt time.Time

	// StartedAt is set when the governor releases the upload.
	StartedAt time.Time

	// PinnedGroup records which group donated the slot. Set together with
	// StartedAt so the slot is returned to the right group at Complete,
	// even if the group table was rebuilt in between.
	PinnedGroup string

	// done is closed exactly once, by the admission loop, outside the
	// governor mutex.
	done chan struct{}
}

// ready reports whether the upload has a blocked awaiter and has not been
// released yet.
func (u *Upload) ready() bool {
	return !u.ReadyAt.IsZero() && u.StartedAt.IsZero()
}

// StartToken is the one-shot handle returned by AwaitStart. It resolves
// when the governor releases the corresponding upload. Waiting does not
// touch the governor mutex, so callers may block arbitrarily long.
type StartToken struct {
	done <-chan struct{}
}

// Wait blocks until the upload is released or the context is cancelled.
//
// A cancelled wait does not withdraw the upload: the governor may still
// release it, and the engine remains responsible for calling Complete to
// return the slot.
func (t *StartToken) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done exposes the underlying channel for callers that select across
// multiple events. The channel is closed when the upload is released.
func (t *StartToken) Done() <-chan struct{} {
	return t.done
}

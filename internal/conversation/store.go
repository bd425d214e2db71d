package conversation

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get for unknown conversation keys.
var ErrNotFound = errors.New("conversation not found")

// Store is the injectable persistence boundary for conversations. The
// engine serializes access per key itself; implementations only need
// whole-value read-modify-write semantics that survive process restarts.
// Conversations returned by Get and List are owned by the caller: an
// implementation that retains state internally (a cache) must hand out
// Clone()s, never aliases of what it keeps — API reads of a thread run
// concurrently with engine writes to it.
type Store interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	Put(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Conversation, error)
}

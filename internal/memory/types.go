package memory

import (
	"context"
	"errors"
	"time"
)

// DefaultInactivityWindow is how long a conversation may sit idle before
// its model-side continuity is dropped.
const DefaultInactivityWindow = 30 * time.Minute

// ErrKeyNotFound is returned by Store.Get for a missing or expired key.
var ErrKeyNotFound = errors.New("key not found")

// ConversationContext carries continuity between successive model calls of
// one conversation.
type ConversationContext struct {
	PreviousResponseID    string    `json:"previous_response_id,omitempty"`
	ConversationStartedAt time.Time `json:"conversation_started_at,omitempty"`
	LastInteractionAt     time.Time `json:"last_interaction_at,omitempty"`
	LastInteractionKind   string    `json:"last_interaction_kind,omitempty"`
}

// Stale reports whether the context is too old to continue: no recorded
// interaction, or the last one is older than window.
func (c ConversationContext) Stale(now time.Time, window time.Duration) bool {
	return c.LastInteractionAt.IsZero() || now.Sub(c.LastInteractionAt) > window
}

// Store defines the key/value storage behind conversation state
// This allows us to swap between Redis and in-process maps
type Store interface {
	// Get returns the value for key or ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, refreshing its TTL
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

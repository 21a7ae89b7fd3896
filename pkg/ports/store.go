package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// ConversationStore persists session transcripts between loop invocations.
// The loop receives prior history as input and returns the updated message
// list; persisting it is the caller's job, through this port.
type ConversationStore interface {
	// Save persists the transcript for a given session ID.
	Save(ctx context.Context, sessionID string, messages []domain.Message) error

	// Load retrieves the transcript for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) ([]domain.Message, error)

	// Delete removes the transcript for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of known sessions.
	List(ctx context.Context) ([]string, error)
}
